package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcription": {"assemblyai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes decodes and validates a YAML config held in memory.
func LoadFromBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Catalog
	if cfg.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StorageSQLite && cfg.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlite_path is required when storage.backend is sqlite"))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}
	if cfg.Storage.Backend == StorageMemory || cfg.Storage.Backend == "" {
		slog.Warn("storage backend is in-memory; opener statistics will be lost on restart")
	}

	// Matching thresholds; zero means "use the default".
	if cfg.Matching.SimilarityThreshold < 0 || cfg.Matching.SimilarityThreshold > 100 {
		errs = append(errs, fmt.Errorf("matching.similarity_threshold %.2f is out of range [0, 100]", cfg.Matching.SimilarityThreshold))
	}
	if cfg.Matching.AmbiguityThreshold < 0 {
		errs = append(errs, fmt.Errorf("matching.ambiguity_threshold %.2f must not be negative", cfg.Matching.AmbiguityThreshold))
	}

	// Recommendation policy; zero means "use the default".
	if cfg.Recommend.MinAttemptsForFairTesting < 0 {
		errs = append(errs, fmt.Errorf("recommend.min_attempts_for_fair_testing %d must not be negative", cfg.Recommend.MinAttemptsForFairTesting))
	}
	if cfg.Recommend.MinAttemptsForConfidence < 0 {
		errs = append(errs, fmt.Errorf("recommend.min_attempts_for_confidence %d must not be negative", cfg.Recommend.MinAttemptsForConfidence))
	}
	if cfg.Recommend.MinAttemptsForConfidence != 0 && cfg.Recommend.MinAttemptsForFairTesting != 0 &&
		cfg.Recommend.MinAttemptsForConfidence < cfg.Recommend.MinAttemptsForFairTesting {
		errs = append(errs, fmt.Errorf("recommend.min_attempts_for_confidence %d must be >= min_attempts_for_fair_testing %d",
			cfg.Recommend.MinAttemptsForConfidence, cfg.Recommend.MinAttemptsForFairTesting))
	}
	if cfg.Recommend.PerformanceDeclineThreshold < 0 || cfg.Recommend.PerformanceDeclineThreshold >= 1 {
		errs = append(errs, fmt.Errorf("recommend.performance_decline_threshold %.2f is out of range [0, 1)", cfg.Recommend.PerformanceDeclineThreshold))
	}

	// Outcome
	if cfg.Outcome.MinStaySeconds < 0 {
		errs = append(errs, fmt.Errorf("outcome.min_stay_seconds %d must not be negative", cfg.Outcome.MinStaySeconds))
	}

	// Transcription
	validateProviderName("transcription", cfg.Transcription.Name)
	if cfg.Transcription.Name != "" && cfg.Transcription.APIKey == "" {
		errs = append(errs, fmt.Errorf("transcription.api_key is required when transcription.name is %q", cfg.Transcription.Name))
	}
	if cfg.Transcription.Name == "" {
		slog.Warn("no transcription provider configured; openers must be selected manually per session")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
