package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without restarting the process are
// tracked; provider and store changes are reported as RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AudioChanged is set when fade, chime or decode tolerance changed. New
	// values apply to the next session; a running session keeps its own.
	AudioChanged bool
	NewAudio     AudioConfig

	TierChanged bool
	NewTier     string

	// RestartRequired lists top-level sections whose changes are ignored
	// until the process restarts.
	RestartRequired []string
}

// Empty reports whether d carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AudioChanged && !d.TierChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if audioTunablesChanged(old.Audio, new.Audio) {
		d.AudioChanged = true
		d.NewAudio = new.Audio
	}

	if old.Profile.Tier != new.Profile.Tier {
		d.TierChanged = true
		d.NewTier = new.Profile.Tier
	}

	if old.Server.MetricsAddr != new.Server.MetricsAddr {
		d.RestartRequired = append(d.RestartRequired, "server.metrics_addr")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio.Backend != new.Audio.Backend || old.Audio.SampleRate != new.Audio.SampleRate {
		d.RestartRequired = append(d.RestartRequired, "audio.device")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}

	return d
}

// audioTunablesChanged compares the per-session audio settings. Backend and
// sample rate belong to the device and are handled separately.
func audioTunablesChanged(old, new AudioConfig) bool {
	if old.CaptureFrameSize != new.CaptureFrameSize ||
		old.FadeOut != new.FadeOut ||
		old.ChimeDelay != new.ChimeDelay ||
		old.MaxDecodeFailures != new.MaxDecodeFailures {
		return true
	}
	switch {
	case old.Chime == nil && new.Chime == nil:
		return false
	case old.Chime == nil || new.Chime == nil:
		return true
	}
	return *old.Chime != *new.Chime
}
