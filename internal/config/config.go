// Package config provides the configuration structure for the narration service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/annotation"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/book-expert/narration-service/internal/tts/text"
	"github.com/pelletier/go-toml/v2"
)

// Annotation backends.
const (
	AnnotationBackendNone   = ""
	AnnotationBackendOllama = "ollama"
	AnnotationBackendOpenAI = "openai"
)

// Synthesis backends.
const (
	SynthesisBackendTokenHTTP    = "token-http"
	SynthesisBackendWaveformHTTP = "waveform-http"
	SynthesisBackendWaveformExec = "waveform-exec"
)

const (
	defaultRequestSubject   = "narration.requests"
	defaultProgressSubject  = "narration.progress"
	defaultTextBucket       = "TEXT_FILES"
	defaultAudioBucket      = "AUDIO_FILES"
	defaultSynthesisTimeout = 300
	defaultOutputDir        = "output"
	defaultVoicesDir        = "voices"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	RequestSubject    string `toml:"request_subject"`
	ProgressSubject   string `toml:"progress_subject"`
	TextObjectBucket  string `toml:"text_object_store_bucket"`
	AudioObjectBucket string `toml:"audio_object_store_bucket"`
}

// AnnotationConfig selects the remote annotator and the default request settings.
type AnnotationConfig struct {
	Backend         string   `toml:"backend"`
	URL             string   `toml:"url"`
	Model           string   `toml:"model"`
	APIKeyEnv       string   `toml:"api_key_env"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	Temperature     float64  `toml:"temperature"`
	MaxOutputTokens int      `toml:"max_output_tokens"`
	Stop            []string `toml:"stop"`
	ChunkThreshold  int      `toml:"chunk_threshold"`
	Workers         int      `toml:"workers"`

	Defaults core.AnnotationSettings `toml:"defaults"`
}

// SynthesisConfig selects the synthesis backend and its sampling defaults.
type SynthesisConfig struct {
	Backend        string `toml:"backend"`
	URL            string `toml:"url"`
	BinaryPath     string `toml:"binary_path"`
	ModelPath      string `toml:"model_path"`
	CodecModelPath string `toml:"codec_model_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	SampleRate     int    `toml:"sample_rate"`
	SpeakerTags    bool   `toml:"speaker_tags"`

	TokensPerChar int `toml:"tokens_per_char"`
	MinTokens     int `toml:"min_tokens"`
	MaxTokens     int `toml:"max_tokens"`
	ProgressEvery int `toml:"progress_every"`

	GuidanceScale float64 `toml:"guidance_scale"`
	Temperature   float64 `toml:"temperature"`
	TopP          float64 `toml:"top_p"`
	TopK          int     `toml:"top_k"`

	NormalizeText    bool    `toml:"normalize_text"`
	MinScaffoldChars int     `toml:"min_scaffold_chars"`
	FadeIn           float64 `toml:"fade_in"`
	FadeOut          float64 `toml:"fade_out"`
	Volume           float64 `toml:"volume"`
	Normalize        bool    `toml:"normalize"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
	VoicesDir   string `toml:"voices_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Annotation AnnotationConfig `toml:"annotation"`
	Synthesis  SynthesisConfig  `toml:"synthesis"`
	Paths      PathsConfig      `toml:"paths"`
}

// New returns a configuration seeded with the values a file may override field by field.
// Decoding into it keeps explicit false and zero values from the file.
func New() *Config {
	return &Config{
		Annotation: AnnotationConfig{Defaults: core.DefaultAnnotationSettings()},
	}
}

// Load loads the configuration through configurator, fills defaults and validates it.
func Load(log *logger.Logger) (*Config, error) {
	cfg := New()

	err := configurator.Load(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// LoadFile reads configuration from an explicit TOML file, bypassing configurator
// discovery. Defaults are applied and the result validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	cfg := New()

	decodeErr := toml.Unmarshal(data, cfg)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, decodeErr)
	}

	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// ApplyDefaults fills zero values with working defaults. Annotation defaults are
// booleans whose zero value is meaningful, so they are seeded by New instead.
func (c *Config) ApplyDefaults() {
	setDefault(&c.NATS.RequestSubject, defaultRequestSubject)
	setDefault(&c.NATS.ProgressSubject, defaultProgressSubject)
	setDefault(&c.NATS.TextObjectBucket, defaultTextBucket)
	setDefault(&c.NATS.AudioObjectBucket, defaultAudioBucket)

	setDefault(&c.Annotation.TimeoutSeconds, int(annotation.DefaultTimeout/time.Second))
	setDefault(&c.Annotation.Temperature, annotation.DefaultTemperature)
	setDefault(&c.Annotation.MaxOutputTokens, annotation.DefaultMaxOutputTokens)
	setDefault(&c.Annotation.ChunkThreshold, text.DefaultChunkLength)
	setDefault(&c.Annotation.Workers, 1)

	if c.Annotation.Stop == nil {
		c.Annotation.Stop = annotation.DefaultStopSequences()
	}

	setDefault(&c.Synthesis.Backend, SynthesisBackendWaveformHTTP)
	setDefault(&c.Synthesis.TimeoutSeconds, defaultSynthesisTimeout)
	setDefault(&c.Synthesis.SampleRate, audio.DEFAULT_SAMPLE_RATE)
	setDefault(&c.Synthesis.TokensPerChar, tts.DefaultTokensPerChar)
	setDefault(&c.Synthesis.MinTokens, tts.DefaultMinTokens)
	setDefault(&c.Synthesis.MaxTokens, tts.DefaultMaxTokens)
	setDefault(&c.Synthesis.ProgressEvery, tts.DefaultProgressEvery)
	setDefault(&c.Synthesis.GuidanceScale, tts.DefaultGuidanceScale)
	setDefault(&c.Synthesis.Temperature, tts.DefaultTemperature)
	setDefault(&c.Synthesis.TopP, tts.DefaultTopP)
	setDefault(&c.Synthesis.TopK, tts.DefaultTopK)
	setDefault(&c.Synthesis.MinScaffoldChars, text.DefaultMinScaffoldChars)
	setDefault(&c.Synthesis.Volume, 1.0)

	setDefault(&c.Paths.BaseLogsDir, os.TempDir())
	setDefault(&c.Paths.OutputDir, defaultOutputDir)
	setDefault(&c.Paths.VoicesDir, defaultVoicesDir)
}

// Validate rejects settings that can never work.
func (c *Config) Validate() error {
	switch c.Annotation.Backend {
	case AnnotationBackendNone:
	case AnnotationBackendOllama, AnnotationBackendOpenAI:
		if c.Annotation.Model == "" {
			return fmt.Errorf("%w: annotation.model is required for backend %q", ErrInvalidConfig, c.Annotation.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown annotation backend %q", ErrInvalidConfig, c.Annotation.Backend)
	}

	settingsErr := core.ValidateAnnotationSettings(c.Annotation.Defaults)
	if settingsErr != nil {
		return fmt.Errorf("%w: annotation.defaults: %w", ErrInvalidConfig, settingsErr)
	}

	switch c.Synthesis.Backend {
	case SynthesisBackendTokenHTTP, SynthesisBackendWaveformHTTP:
		if c.Synthesis.URL == "" {
			return fmt.Errorf("%w: synthesis.url is required for backend %q", ErrInvalidConfig, c.Synthesis.Backend)
		}
	case SynthesisBackendWaveformExec:
		if c.Synthesis.BinaryPath == "" || c.Synthesis.ModelPath == "" {
			return fmt.Errorf("%w: synthesis.binary_path and synthesis.model_path are required for backend %q",
				ErrInvalidConfig, c.Synthesis.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown synthesis backend %q", ErrInvalidConfig, c.Synthesis.Backend)
	}

	if c.Synthesis.MinTokens > c.Synthesis.MaxTokens {
		return fmt.Errorf("%w: synthesis.min_tokens %d exceeds max_tokens %d",
			ErrInvalidConfig, c.Synthesis.MinTokens, c.Synthesis.MaxTokens)
	}

	quality := c.Effects()

	qualityErr := quality.Validate()
	if qualityErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, qualityErr)
	}

	return nil
}

// APIKey reads the annotation API key from the configured environment variable.
func (c *Config) APIKey() string {
	if c.Annotation.APIKeyEnv == "" {
		return ""
	}

	return os.Getenv(c.Annotation.APIKeyEnv)
}

// RemoteConfig builds the remote annotator configuration.
func (c *Config) RemoteConfig() annotation.RemoteConfig {
	return annotation.RemoteConfig{
		BaseURL:         c.Annotation.URL,
		Model:           c.Annotation.Model,
		APIKey:          c.APIKey(),
		Timeout:         seconds(c.Annotation.TimeoutSeconds),
		Temperature:     c.Annotation.Temperature,
		MaxOutputTokens: c.Annotation.MaxOutputTokens,
		Stop:            c.Annotation.Stop,
	}
}

// EngineConfig builds the annotation engine configuration.
func (c *Config) EngineConfig() annotation.EngineConfig {
	return annotation.EngineConfig{
		ChunkThreshold: c.Annotation.ChunkThreshold,
		Workers:        c.Annotation.Workers,
		Timeout:        seconds(c.Annotation.TimeoutSeconds),
	}
}

// TokenConfig builds the token backend configuration.
func (c *Config) TokenConfig() tts.TokenConfig {
	return tts.TokenConfig{
		Name:          c.Synthesis.Backend,
		SampleRate:    c.Synthesis.SampleRate,
		TokensPerChar: c.Synthesis.TokensPerChar,
		MinTokens:     c.Synthesis.MinTokens,
		MaxTokens:     c.Synthesis.MaxTokens,
		ProgressEvery: c.Synthesis.ProgressEvery,
		GuidanceScale: c.Synthesis.GuidanceScale,
		Temperature:   c.Synthesis.Temperature,
		TopP:          c.Synthesis.TopP,
		TopK:          c.Synthesis.TopK,
		SpeakerTags:   true,
	}
}

// WaveformConfig builds the waveform backend configuration.
func (c *Config) WaveformConfig() tts.WaveformConfig {
	return tts.WaveformConfig{
		Name:        c.Synthesis.Backend,
		SampleRate:  c.Synthesis.SampleRate,
		SpeakerTags: c.Synthesis.SpeakerTags,
	}
}

// ServiceConfig builds the synthesis service configuration.
func (c *Config) ServiceConfig() tts.ServiceConfig {
	return tts.ServiceConfig{
		NormalizeText:    c.Synthesis.NormalizeText,
		MinScaffoldChars: c.Synthesis.MinScaffoldChars,
		Effects:          c.Effects(),
	}
}

// Effects is the post-processing applied to every waveform.
func (c *Config) Effects() audio.Quality {
	quality := audio.NewDefaultQuality()
	quality.SampleRate = c.Synthesis.SampleRate
	quality.FadeIn = c.Synthesis.FadeIn
	quality.FadeOut = c.Synthesis.FadeOut
	quality.Volume = c.Synthesis.Volume
	quality.Normalize = c.Synthesis.Normalize

	return quality
}

// SynthesisTimeout bounds one HTTP synthesis request.
func (c *Config) SynthesisTimeout() time.Duration {
	return seconds(c.Synthesis.TimeoutSeconds)
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
