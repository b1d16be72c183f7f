package core

import (
	"fmt"
	"math"
	"strings"
)

// MaxVolume is the largest accepted gain multiplier.
const MaxVolume = 10.0

// ValidateText rejects text that must never enter the pipeline.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrValidation)
	}

	return nil
}

// ValidateAnnotationSettings checks that annotation settings are within range.
func ValidateAnnotationSettings(settings AnnotationSettings) error {
	if outOfRange(settings.EmotionIntensity, 0, 1) {
		return fmt.Errorf(
			"%w: emotion intensity must be between 0.0 and 1.0, got %f",
			ErrValidation,
			settings.EmotionIntensity,
		)
	}

	return nil
}

// ValidateSynthesisSettings checks that synthesis settings are within range.
func ValidateSynthesisSettings(settings SynthesisSettings) error {
	if outOfRange(settings.Exaggeration, 0, 1) {
		return fmt.Errorf("%w: exaggeration must be between 0.0 and 1.0, got %f",
			ErrValidation, settings.Exaggeration)
	}

	if outOfRange(settings.CFGWeight, 0, 1) {
		return fmt.Errorf("%w: cfg_weight must be between 0.0 and 1.0, got %f",
			ErrValidation, settings.CFGWeight)
	}

	if outOfRange(settings.TopP, 0, 1) {
		return fmt.Errorf("%w: top_p must be between 0.0 and 1.0, got %f",
			ErrValidation, settings.TopP)
	}

	if outOfRange(settings.Temperature, 0, math.MaxFloat64) {
		return fmt.Errorf("%w: temperature must be >= 0.0, got %f",
			ErrValidation, settings.Temperature)
	}

	if settings.TopK < 0 {
		return fmt.Errorf("%w: top_k must be non-negative, got %d", ErrValidation, settings.TopK)
	}

	// Zero volume means the configured default.
	if outOfRange(settings.Volume, 0, MaxVolume) {
		return fmt.Errorf("%w: volume must be between 0.0 and %.1f, got %f",
			ErrValidation, MaxVolume, settings.Volume)
	}

	return nil
}

// outOfRange reports whether value lies outside [low, high]. NaN is always out of range.
func outOfRange(value, low, high float64) bool {
	return math.IsNaN(value) || value < low || value > high
}
