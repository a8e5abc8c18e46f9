// Package config resolves, parses, validates, and defaults visaid configuration.
package config

// Config is the fully materialized runtime configuration used by visaid.
// It is built once at startup and passed by value to component constructors.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Audio    AudioConfig    `yaml:"audio"`
	Button   ButtonConfig   `yaml:"button"`
	Camera   CameraConfig   `yaml:"camera"`
	Playback PlaybackConfig `yaml:"playback"`
	LED      LEDConfig      `yaml:"led"`
	Storage  StorageConfig  `yaml:"storage"`
}

// APIConfig describes the remote inference service contract. The response
// field names are configurable because the upstream schema is not published;
// the client probes the listed fields in order.
type APIConfig struct {
	BaseURL          string   `yaml:"base_url"`
	TranscribePath   string   `yaml:"transcribe_path"`
	AnalyzePath      string   `yaml:"analyze_path"`
	SynthesizePath   string   `yaml:"synthesize_path"`
	TimeoutMS        int      `yaml:"timeout_ms"`
	TranscriptFields []string `yaml:"transcript_fields"`
	AnswerFields     []string `yaml:"answer_fields"`
	AudioRefFields   []string `yaml:"audio_ref_fields"`
	PromptField      string   `yaml:"prompt_field"`
}

// AudioConfig controls the capture format and input source selection.
type AudioConfig struct {
	Input         string `yaml:"input"`
	Fallback      string `yaml:"fallback"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	ChunkFrames   int    `yaml:"chunk_frames"`
	StopTimeoutMS int    `yaml:"stop_timeout_ms"`
}

// ButtonConfig controls GPIO line selection and debounce behavior.
type ButtonConfig struct {
	Chip           string `yaml:"chip"`
	Pin            int    `yaml:"pin"`
	DebounceMS     int    `yaml:"debounce_ms"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

// CameraConfig controls still-image capture via the external camera tool.
type CameraConfig struct {
	Tool      string `yaml:"tool"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Quality   int    `yaml:"quality"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// PlaybackConfig controls spoken-answer playback.
type PlaybackConfig struct {
	Tool      string `yaml:"tool"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// LEDConfig controls the APA102 status strip.
type LEDConfig struct {
	Enable         bool   `yaml:"enable"`
	Device         string `yaml:"device"`
	Count          int    `yaml:"count"`
	Brightness     int    `yaml:"brightness"`
	ErrorTimeoutMS int    `yaml:"error_timeout_ms"`
}

// StorageConfig controls where session artifacts land and whether they are
// retained after the session ends.
type StorageConfig struct {
	RecordingsDir string `yaml:"recordings_dir"`
	PicturesDir   string `yaml:"pictures_dir"`
	ResponsesDir  string `yaml:"responses_dir"`
	KeepArtifacts bool   `yaml:"keep_artifacts"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
