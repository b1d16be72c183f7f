package tts

import (
	"context"
	"fmt"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
)

// WaveformModel produces samples directly from text.
type WaveformModel interface {
	Generate(ctx context.Context, input string, params Params) (core.Waveform, error)
	Health(ctx context.Context) error
}

// WaveformConfig describes a direct-waveform backend.
type WaveformConfig struct {
	Name        string
	SampleRate  int
	SpeakerTags bool
}

// WaveformBackend adapts a WaveformModel to Backend.
type WaveformBackend struct {
	model  WaveformModel
	config WaveformConfig
}

// NewWaveformBackend creates a backend over model.
func NewWaveformBackend(model WaveformModel, cfg WaveformConfig) *WaveformBackend {
	if cfg.Name == "" {
		cfg.Name = "waveform-model"
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DEFAULT_SAMPLE_RATE
	}

	return &WaveformBackend{model: model, config: cfg}
}

// Info reports the backend capabilities.
func (b *WaveformBackend) Info() BackendInfo {
	return BackendInfo{
		Name:                b.config.Name,
		Family:              FamilyWaveform,
		SampleRate:          b.config.SampleRate,
		RequiresSpeakerTags: b.config.SpeakerTags,
	}
}

// Synthesize generates samples in one call. Waveform models report no intermediate
// progress, so progress is unused.
func (b *WaveformBackend) Synthesize(
	ctx context.Context,
	input string,
	params Params,
	_ ProgressFunc,
) (core.Waveform, error) {
	waveform, err := b.model.Generate(ctx, input, params)
	if err != nil {
		return core.Waveform{}, fmt.Errorf(errFmtStage, core.ErrGenerationFailed, "generate", err)
	}

	if waveform.SampleRate <= 0 {
		waveform.SampleRate = b.config.SampleRate
	}

	return checkWaveform(waveform)
}

// Health delegates to the model.
func (b *WaveformBackend) Health(ctx context.Context) error {
	return b.model.Health(ctx)
}

// Close releases nothing; models own no long-lived resources.
func (b *WaveformBackend) Close() error {
	return nil
}
