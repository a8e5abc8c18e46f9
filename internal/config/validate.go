package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	base := strings.TrimSpace(cfg.API.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("api.base_url must not be empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("api.base_url must start with http:// or https://")
	}
	for name, path := range map[string]string{
		"api.transcribe_path": cfg.API.TranscribePath,
		"api.analyze_path":    cfg.API.AnalyzePath,
		"api.synthesize_path": cfg.API.SynthesizePath,
	} {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%s must not be empty", name)
		}
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("%s must start with '/'", name)
		}
	}
	if cfg.API.TimeoutMS <= 0 {
		return nil, fmt.Errorf("api.timeout_ms must be > 0")
	}
	if len(cfg.API.TranscriptFields) == 0 {
		return nil, fmt.Errorf("api.transcript_fields must not be empty")
	}
	if len(cfg.API.AnswerFields) == 0 {
		return nil, fmt.Errorf("api.answer_fields must not be empty")
	}
	if strings.TrimSpace(cfg.API.PromptField) == "" {
		return nil, fmt.Errorf("api.prompt_field must not be empty")
	}

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return nil, fmt.Errorf("audio.channels must be 1 or 2")
	}
	if cfg.Audio.ChunkFrames <= 0 {
		return nil, fmt.Errorf("audio.chunk_frames must be > 0")
	}
	if cfg.Audio.StopTimeoutMS <= 0 {
		return nil, fmt.Errorf("audio.stop_timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Button.Chip) == "" {
		return nil, fmt.Errorf("button.chip must not be empty")
	}
	if cfg.Button.Pin < 0 {
		return nil, fmt.Errorf("button.pin must be >= 0")
	}
	if cfg.Button.DebounceMS <= 0 {
		return nil, fmt.Errorf("button.debounce_ms must be > 0")
	}
	if cfg.Button.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("button.poll_interval_ms must be > 0")
	}
	if cfg.Button.PollIntervalMS >= cfg.Button.DebounceMS {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("button.poll_interval_ms=%d is not shorter than button.debounce_ms=%d; presses may be missed", cfg.Button.PollIntervalMS, cfg.Button.DebounceMS),
		})
	}

	if strings.TrimSpace(cfg.Camera.Tool) == "" {
		return nil, fmt.Errorf("camera.tool must not be empty")
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return nil, fmt.Errorf("camera.width and camera.height must be > 0")
	}
	if cfg.Camera.Quality < 1 || cfg.Camera.Quality > 100 {
		return nil, fmt.Errorf("camera.quality must be between 1 and 100")
	}
	if cfg.Camera.TimeoutMS <= 0 {
		return nil, fmt.Errorf("camera.timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Playback.Tool) == "" {
		return nil, fmt.Errorf("playback.tool must not be empty")
	}
	if cfg.Playback.TimeoutMS <= 0 {
		return nil, fmt.Errorf("playback.timeout_ms must be > 0")
	}

	if cfg.LED.Enable {
		if strings.TrimSpace(cfg.LED.Device) == "" {
			return nil, fmt.Errorf("led.device must not be empty when led.enable=true")
		}
		if cfg.LED.Count <= 0 {
			return nil, fmt.Errorf("led.count must be > 0")
		}
		if cfg.LED.Brightness < 1 || cfg.LED.Brightness > 31 {
			return nil, fmt.Errorf("led.brightness must be between 1 and 31")
		}
	}
	if cfg.LED.ErrorTimeoutMS <= 0 {
		return nil, fmt.Errorf("led.error_timeout_ms must be > 0")
	}

	for name, dir := range map[string]string{
		"storage.recordings_dir": cfg.Storage.RecordingsDir,
		"storage.pictures_dir":   cfg.Storage.PicturesDir,
		"storage.responses_dir":  cfg.Storage.ResponsesDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("%s must not be empty", name)
		}
	}

	return warnings, nil
}
