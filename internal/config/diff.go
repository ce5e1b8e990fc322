package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; storage, catalog,
// and transcription changes require a restart.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	MatchingChanged  bool
	RecommendChanged bool
	OutcomeChanged   bool
}

// Any reports whether the diff contains at least one hot-reloadable change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.MatchingChanged || d.RecommendChanged || d.OutcomeChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Matching != new.Matching {
		d.MatchingChanged = true
	}
	if old.Recommend != new.Recommend {
		d.RecommendChanged = true
	}
	if old.Outcome != new.Outcome {
		d.OutcomeChanged = true
	}

	return d
}
