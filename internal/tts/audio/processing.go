// Package audio provides waveform post-processing and the WAV container codec for
// narration artifacts.
package audio

import (
	"errors"
	"fmt"
	"math"

	"github.com/book-expert/narration-service/internal/core"
)

// Constants for default audio quality settings.
const (
	DEFAULT_SAMPLE_RATE = 24000 // Native rate of the dialogue synthesis backends.
	DEFAULT_BIT_DEPTH   = 16
	DEFAULT_CHANNELS    = 1
	DEFAULT_PEAK        = 0.95
)

// Constants for supported bit depths.
const (
	BIT_DEPTH_8  = 8
	BIT_DEPTH_16 = 16
	BIT_DEPTH_24 = 24
	BIT_DEPTH_32 = 32
)

// Constants for quality validation limits.
const (
	MAX_SAMPLE_RATE = 192000
	MAX_CHANNELS    = 8
	MAX_VOLUME      = core.MaxVolume
)

// Constants for error messages and formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE     = "%w: sample rate must be between 1 and %d Hz"
	ERR_FMT_BIT_DEPTH_VALUES      = "%w: bit depth must be 8, 16, 24, or 32"
	ERR_FMT_CHANNELS_RANGE        = "%w: channels must be between 1 and %d"
	ERR_FMT_FADE_IN_NON_NEGATIVE  = "%w: fade in must be non-negative"
	ERR_FMT_FADE_OUT_NON_NEGATIVE = "%w: fade out must be non-negative"
	ERR_FMT_VOLUME_RANGE          = "%w: volume must be between 0.0 and %.1f"
)

// Common errors for the audio package.
var (
	ErrInvalidQuality = errors.New("invalid quality settings")
)

// Quality represents container settings and post-processing effects.
type Quality struct {
	SampleRate int     `json:"sampleRate"`
	BitDepth   int     `json:"bitDepth"`
	Channels   int     `json:"channels"`
	Volume     float64 `json:"volume"`
	FadeIn     float64 `json:"fadeIn,omitempty"`
	FadeOut    float64 `json:"fadeOut,omitempty"`
	Normalize  bool    `json:"normalize"`
}

// NewDefaultQuality provides mono 16-bit PCM at the default rate with no effects.
func NewDefaultQuality() Quality {
	return Quality{
		SampleRate: DEFAULT_SAMPLE_RATE,
		BitDepth:   DEFAULT_BIT_DEPTH,
		Channels:   DEFAULT_CHANNELS,
		Volume:     1.0,
		Normalize:  false,
	}
}

// Validate checks if quality settings are within reasonable bounds.
func (q *Quality) Validate() error {
	audioParamsErr := q.validateAudioParams()
	if audioParamsErr != nil {
		return audioParamsErr
	}

	effectParamsErr := q.validateEffectParams()
	if effectParamsErr != nil {
		return effectParamsErr
	}

	return nil
}

// ApplyEffects returns a processed copy of samples. The input slice is not modified.
// Effects run in a fixed order: normalization, volume, fade in, fade out, then a hard
// clip to [-1, 1].
func (q *Quality) ApplyEffects(samples []float32, sampleRate int) []float32 {
	processed := make([]float32, len(samples))
	copy(processed, samples)

	if q.Normalize {
		peakNormalize(processed, DEFAULT_PEAK)
	}

	if q.Volume != 1.0 && q.Volume > 0 {
		applyGain(processed, q.Volume)
	}

	if q.FadeIn > 0 {
		applyFade(processed, fadeLength(q.FadeIn, sampleRate, len(processed)), true)
	}

	if q.FadeOut > 0 {
		applyFade(processed, fadeLength(q.FadeOut, sampleRate, len(processed)), false)
	}

	clip(processed)

	return processed
}

func peakNormalize(samples []float32, target float64) {
	var peak float64

	for _, sample := range samples {
		peak = math.Max(peak, math.Abs(float64(sample)))
	}

	if peak == 0 {
		return
	}

	applyGain(samples, target/peak)
}

func applyGain(samples []float32, gain float64) {
	for index, sample := range samples {
		samples[index] = float32(float64(sample) * gain)
	}
}

func fadeLength(seconds float64, sampleRate, total int) int {
	length := int(seconds * float64(sampleRate))

	return min(max(length, 0), total)
}

// applyFade ramps linearly over length samples at the start (in) or end (out).
func applyFade(samples []float32, length int, fadeIn bool) {
	if length == 0 {
		return
	}

	for step := range length {
		gain := float32(step) / float32(length)
		if fadeIn {
			samples[step] *= gain
		} else {
			samples[len(samples)-1-step] *= gain
		}
	}
}

func clip(samples []float32) {
	for index, sample := range samples {
		samples[index] = max(-1, min(1, sample))
	}
}

func (q *Quality) validateAudioParams() error {
	sampleRateErr := validateSampleRate(q.SampleRate)
	if sampleRateErr != nil {
		return sampleRateErr
	}

	bitDepthErr := validateBitDepth(q.BitDepth)
	if bitDepthErr != nil {
		return bitDepthErr
	}

	channelsErr := validateChannels(q.Channels)
	if channelsErr != nil {
		return channelsErr
	}

	return nil
}

func (q *Quality) validateEffectParams() error {
	volumeErr := validateVolume(q.Volume)
	if volumeErr != nil {
		return volumeErr
	}

	if q.FadeIn < 0.0 {
		return fmt.Errorf(ERR_FMT_FADE_IN_NON_NEGATIVE, ErrInvalidQuality)
	}

	if q.FadeOut < 0.0 {
		return fmt.Errorf(ERR_FMT_FADE_OUT_NON_NEGATIVE, ErrInvalidQuality)
	}

	return nil
}

//
// Validation Helpers
//

func validateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidQuality, MAX_SAMPLE_RATE)
	}

	return nil
}

func validateBitDepth(bitDepth int) error {
	switch bitDepth {
	case BIT_DEPTH_8, BIT_DEPTH_16, BIT_DEPTH_24, BIT_DEPTH_32:
		return nil
	default:
		return fmt.Errorf(ERR_FMT_BIT_DEPTH_VALUES, ErrInvalidQuality)
	}
}

func validateChannels(channels int) error {
	if channels <= 0 || channels > MAX_CHANNELS {
		return fmt.Errorf(ERR_FMT_CHANNELS_RANGE, ErrInvalidQuality, MAX_CHANNELS)
	}

	return nil
}

func validateVolume(volume float64) error {
	if volume < 0.0 || volume > MAX_VOLUME {
		return fmt.Errorf(ERR_FMT_VOLUME_RANGE, ErrInvalidQuality, MAX_VOLUME)
	}

	return nil
}
