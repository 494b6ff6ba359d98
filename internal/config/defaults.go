package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Recognizer: RecognizerConfig{
			Endpoint:    "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		Translation: TranslationConfig{
			FreeEndpoint: "https://translate.googleapis.com/translate_a/single",
			LLMEndpoint:  "https://api.openai.com/v1/chat/completions",
			TimeoutMS:    10000,
			CacheSize:    512,
		},
		Audio: AudioConfig{
			DefaultSource: "default",
			HighpassHz:    80,
			Gain:          1,
		},
		Session: SessionConfig{
			StartDelayMS:       100,
			RestartDelaysMS:    []int{200, 1000, 2000},
			MaxRestartFailures: 3,
		},
		Overlay: OverlayConfig{Enable: true, Listen: "127.0.0.1:7683"},
		History: HistoryConfig{Enable: true, RetentionDays: 30},
		Health:  HealthConfig{Enable: false, Listen: "127.0.0.1:7684"},
		Hotplug: HotplugConfig{Enable: true, PollIntervalMS: 5000},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			DesktopAppName: "livesub",
			SoundEnable:    true,
			ErrorTimeoutMS: 4000,
		},
	}
}
