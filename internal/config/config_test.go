package config_test

import (
	"errors"
	"testing"

	"github.com/dialcoach/dialcoach/internal/config"
	"github.com/dialcoach/dialcoach/pkg/provider/transcribe"
	"github.com/dialcoach/dialcoach/pkg/provider/transcribe/mock"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should not be valid", l)
		}
	}
}

func TestStorageBackend_IsValid(t *testing.T) {
	t.Parallel()

	valid := []config.StorageBackend{config.StorageMemory, config.StorageSQLite, config.StoragePostgres}
	for _, b := range valid {
		if !b.IsValid() {
			t.Errorf("%q should be valid", b)
		}
	}
	for _, b := range []config.StorageBackend{"", "redis", "SQLite"} {
		if b.IsValid() {
			t.Errorf("%q should not be valid", b)
		}
	}
}

func TestRegistry_CreateTranscribe(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	created := &mock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterTranscribe("mock", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		gotEntry = entry
		return created, nil
	})

	p, err := reg.CreateTranscribe(config.ProviderEntry{Name: "mock", APIKey: "key", SampleRate: 8000})
	if err != nil {
		t.Fatalf("CreateTranscribe: %v", err)
	}
	if p != created {
		t.Error("returned provider is not the one the factory built")
	}
	if gotEntry.APIKey != "key" || gotEntry.SampleRate != 8000 {
		t.Errorf("factory received wrong entry: %+v", gotEntry)
	}
}

func TestRegistry_UnregisteredProvider(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateTranscribe(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	first := &mock.Provider{}
	second := &mock.Provider{}
	reg.RegisterTranscribe("mock", func(config.ProviderEntry) (transcribe.Provider, error) {
		return first, nil
	})
	reg.RegisterTranscribe("mock", func(config.ProviderEntry) (transcribe.Provider, error) {
		return second, nil
	})

	p, err := reg.CreateTranscribe(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateTranscribe: %v", err)
	}
	if p != second {
		t.Error("later registration should win")
	}
}
