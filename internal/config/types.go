// Package config resolves, parses, validates, and defaults livesub daemon configuration.
package config

// Config is the fully materialized runtime configuration used by the daemon.
type Config struct {
	Recognizer  RecognizerConfig
	Translation TranslationConfig
	Audio       AudioConfig
	Session     SessionConfig
	Overlay     OverlayConfig
	History     HistoryConfig
	Health      HealthConfig
	Hotplug     HotplugConfig
	Indicator   IndicatorConfig
	SubtitleCmd CommandConfig
}

// RecognizerConfig controls the Deepgram streaming connection.
type RecognizerConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	SmartFormat bool
}

// TranslationConfig controls provider endpoints and the translation cache.
type TranslationConfig struct {
	FreeEndpoint string
	LLMEndpoint  string
	TimeoutMS    int
	CacheSize    int
}

// AudioConfig controls capture defaults and the conditioning chain.
type AudioConfig struct {
	// DefaultSource is used by `livesub start` when no source is given.
	DefaultSource string
	// Autostart lists sources the daemon starts capturing at boot.
	Autostart  []string
	HighpassHz float64
	Gain       float64
}

// SessionConfig controls start and restart pacing.
type SessionConfig struct {
	StartDelayMS       int
	RestartDelaysMS    []int
	MaxRestartFailures int
}

// OverlayConfig controls the local websocket subtitle feed.
type OverlayConfig struct {
	Enable bool
	Listen string
}

// HistoryConfig controls the finals-only subtitle log.
type HistoryConfig struct {
	Enable        bool
	Path          string
	RetentionDays int
}

// HealthConfig controls the gRPC health endpoint.
type HealthConfig struct {
	Enable bool
	Listen string
}

// HotplugConfig controls removal detection for captured sources.
type HotplugConfig struct {
	Enable         bool
	PollIntervalMS int
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	SoundStartFile string
	SoundStopFile  string
	SoundErrorFile string
	ShowSubtitles  bool
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
