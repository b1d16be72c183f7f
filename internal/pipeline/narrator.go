// Package pipeline composes annotation, synthesis and persistence into one narration
// call.
package pipeline

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts"
)

const (
	logFmtAnnotated = "Annotated %d characters with %s backend (%d chunks)"
	logFmtNarrated  = "Narrated %d characters into %s"
)

// Annotator enriches text with narration markers.
type Annotator interface {
	Annotate(ctx context.Context, input string, settings core.AnnotationSettings) (core.AnnotationResult, error)
	RemoteAvailable() bool
}

// Synthesizer turns text into a waveform.
type Synthesizer interface {
	Synthesize(ctx context.Context, input string, settings core.SynthesisSettings, progress tts.ProgressFunc) (core.Waveform, error)
	Info() (tts.BackendInfo, bool)
	Health(ctx context.Context) error
	Voices() []core.VoiceProfile
}

// ArtifactWriter persists a waveform.
type ArtifactWriter interface {
	Store(ctx context.Context, waveform core.Waveform, sourceText string) (core.AudioArtifact, error)
}

// NarrationResult is the outcome of one narration request.
type NarrationResult struct {
	Annotation core.AnnotationResult `json:"annotation"`
	Artifact   core.AudioArtifact    `json:"artifact"`
}

// HealthReport is a snapshot of backend availability.
type HealthReport struct {
	RemoteAnnotation bool   `json:"remoteAnnotation"`
	Synthesis        bool   `json:"synthesis"`
	SynthesisBackend string `json:"synthesisBackend,omitempty"`
	SynthesisFamily  string `json:"synthesisFamily,omitempty"`
	SynthesisError   string `json:"synthesisError,omitempty"`
	Voices           int    `json:"voices"`
}

// Narrator runs text through annotation, synthesis and storage.
type Narrator struct {
	annotator   Annotator
	synthesizer Synthesizer
	artifacts   ArtifactWriter
	log         *logger.Logger
}

// NewNarrator creates a narrator.
func NewNarrator(annotator Annotator, synthesizer Synthesizer, artifacts ArtifactWriter, log *logger.Logger) *Narrator {
	return &Narrator{
		annotator:   annotator,
		synthesizer: synthesizer,
		artifacts:   artifacts,
		log:         log,
	}
}

// Annotate runs annotation alone. Only validation errors are returned.
func (n *Narrator) Annotate(ctx context.Context, input string, settings core.AnnotationSettings) (core.AnnotationResult, error) {
	result, err := n.annotator.Annotate(ctx, input, settings)
	if err != nil {
		return core.AnnotationResult{}, err
	}

	n.log.Info(logFmtAnnotated, len(input), result.BackendUsed, result.Chunks)

	return result, nil
}

// Narrate annotates, synthesizes and stores request. Empty text fails before any
// backend is touched. Annotation never fails on backend trouble; synthesis and storage
// failures are returned.
func (n *Narrator) Narrate(ctx context.Context, request core.TextRequest, progress tts.ProgressFunc) (NarrationResult, error) {
	validateErr := core.ValidateText(request.Text)
	if validateErr != nil {
		return NarrationResult{}, validateErr
	}

	settingsErr := core.ValidateSynthesisSettings(request.Synthesis)
	if settingsErr != nil {
		return NarrationResult{}, settingsErr
	}

	annotation, err := n.Annotate(ctx, request.Text, request.Annotation)
	if err != nil {
		return NarrationResult{}, err
	}

	waveform, err := n.synthesizer.Synthesize(ctx, annotation.Annotated, request.Synthesis, progress)
	if err != nil {
		return NarrationResult{}, fmt.Errorf("failed to synthesize narration: %w", err)
	}

	artifact, err := n.artifacts.Store(ctx, waveform, request.Text)
	if err != nil {
		return NarrationResult{}, err
	}

	n.log.Info(logFmtNarrated, len(request.Text), artifact.Filename)

	return NarrationResult{
		Annotation: annotation,
		Artifact:   artifact,
	}, nil
}

// Voices lists the voices the synthesizer can use.
func (n *Narrator) Voices() []core.VoiceProfile {
	return n.synthesizer.Voices()
}

// Health reports which backends are usable.
func (n *Narrator) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		RemoteAnnotation: n.annotator.RemoteAvailable(),
		Voices:           len(n.synthesizer.Voices()),
	}

	info, ok := n.synthesizer.Info()
	if ok {
		report.SynthesisBackend = info.Name
		report.SynthesisFamily = string(info.Family)
	}

	healthErr := n.synthesizer.Health(ctx)
	if healthErr != nil {
		report.SynthesisError = healthErr.Error()

		return report
	}

	report.Synthesis = true

	return report
}
