// Package core defines the domain types, error taxonomy and collaborator interfaces
// shared by the annotation and synthesis pipeline.
package core

import (
	"context"
	"errors"
)

// Error taxonomy. Annotation absorbs everything except ErrValidation; synthesis surfaces
// every error to the caller.
var (
	// ErrValidation indicates a request that can never succeed, such as empty text.
	ErrValidation = errors.New("validation failed")
	// ErrBackendUnavailable indicates that no backend was initialized for the operation.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendDegradedOutput indicates remote annotation output that failed acceptance.
	ErrBackendDegradedOutput = errors.New("backend returned degraded output")
	// ErrGenerationFailed indicates a synthesis backend failure during generation,
	// decoding or saving.
	ErrGenerationFailed = errors.New("generation failed")
)

// DefaultVoice is the voice identifier that never requires reference audio.
const DefaultVoice = "default"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// BackendKind names the annotation strategy that produced an AnnotationResult.
type BackendKind string

const (
	// BackendRuleBased is the deterministic EmotionRuleSet.
	BackendRuleBased BackendKind = "rule-based"
	// BackendRemoteModel is any remote language model backend.
	BackendRemoteModel BackendKind = "remote-model"
)

// AnnotationSettings controls how narration text is enriched before synthesis.
type AnnotationSettings struct {
	AddEmotions      bool    `json:"addEmotions"      toml:"add_emotions"`
	EmotionIntensity float64 `json:"emotionIntensity" toml:"emotion_intensity"`
	AddPauses        bool    `json:"addPauses"        toml:"add_pauses"`
	SpeakerVariation bool    `json:"speakerVariation" toml:"speaker_variation"`
}

// DefaultAnnotationSettings returns the settings used when a request specifies none.
func DefaultAnnotationSettings() AnnotationSettings {
	return AnnotationSettings{
		AddEmotions:      true,
		EmotionIntensity: 0.7,
		AddPauses:        true,
		SpeakerVariation: true,
	}
}

// AnnotationResult is the outcome of annotating one request.
type AnnotationResult struct {
	Original    string             `json:"original"`
	Annotated   string             `json:"annotated"`
	BackendUsed BackendKind        `json:"backendUsed"`
	Chunks      int                `json:"chunks"`
	Settings    AnnotationSettings `json:"settings"`
}

// SynthesisSettings holds per-request synthesis knobs. Zero values mean "use the
// configured backend default".
type SynthesisSettings struct {
	Voice        string  `json:"voice"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	TopK         int     `json:"top_k"`
	Seed         int     `json:"seed"`
	Normalize    bool    `json:"normalize"`
	Volume       float64 `json:"volume"`
}

// TextRequest is a single narration request.
type TextRequest struct {
	Text       string             `json:"text"`
	Annotation AnnotationSettings `json:"annotation"`
	Synthesis  SynthesisSettings  `json:"synthesis"`
}

// VoiceProfile describes a voice discovered in the samples directory.
type VoiceProfile struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	SampleAudioPath string `json:"sampleAudioPath,omitempty"`
	Available       bool   `json:"available"`
}

// Waveform is a complete mono sample buffer paired with its sample rate.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// AudioArtifact is an encoded waveform written to storage. It is never mutated after
// creation.
type AudioArtifact struct {
	Bytes      []byte `json:"-"`
	SampleRate int    `json:"sampleRate"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"sizeBytes"`
}
