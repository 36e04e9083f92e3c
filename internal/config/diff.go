package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; path and backend
// changes require a restart because they are part of the cross-process
// protocol.
type ConfigDiff struct {
	RecordingChanged bool
	NewRecording     RecordingConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Empty reports whether the diff carries no reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.RecordingChanged && !d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if old.Recording != new.Recording {
		d.RecordingChanged = true
		d.NewRecording = new.Recording
	}

	return d
}
