package config

// Default returns the canonical runtime configuration used when no file is
// present. Hardware values match the ReSpeaker 2-Mic HAT + camera module
// deployment the device ships with.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:          "http://203.162.88.105/pvlm-api",
			TranscribePath:   "/audio/transcribe",
			AnalyzePath:      "/image/analyze-image",
			SynthesizePath:   "/tts/generate",
			TimeoutMS:        30000,
			TranscriptFields: []string{"text", "transcription"},
			AnswerFields:     []string{"description", "analysis", "result"},
			AudioRefFields:   []string{"audio_url", "audio", "audio_base64"},
			PromptField:      "prompt",
		},
		Audio: AudioConfig{
			Input:         "default",
			Fallback:      "default",
			SampleRate:    16000,
			Channels:      2,
			ChunkFrames:   1024,
			StopTimeoutMS: 3000,
		},
		Button: ButtonConfig{
			Chip:           "gpiochip0",
			Pin:            17,
			DebounceMS:     500,
			PollIntervalMS: 10,
		},
		Camera: CameraConfig{
			Tool:      "rpicam-jpeg",
			Width:     1920,
			Height:    1440,
			Quality:   90,
			TimeoutMS: 1000,
		},
		Playback: PlaybackConfig{
			Tool:      "aplay",
			TimeoutMS: 60000,
		},
		LED: LEDConfig{
			Enable:         true,
			Device:         "/dev/spidev0.0",
			Count:          3,
			Brightness:     10,
			ErrorTimeoutMS: 2000,
		},
		Storage: StorageConfig{
			RecordingsDir: "",
			PicturesDir:   "",
			ResponsesDir:  "",
			KeepArtifacts: true,
		},
	}
}
