// Package tts adapts speech synthesis engines behind one contract and serializes access
// to them.
package tts

import (
	"context"

	"github.com/book-expert/narration-service/internal/core"
)

// Family declares how a backend produces audio.
type Family string

const (
	// FamilyToken backends tokenize, generate audio tokens and decode them.
	FamilyToken Family = "token"
	// FamilyWaveform backends return samples directly from text.
	FamilyWaveform Family = "waveform"
)

// BackendInfo describes a backend's capabilities. It is fixed at construction.
type BackendInfo struct {
	Name                string `json:"name"`
	Family              Family `json:"family"`
	SampleRate          int    `json:"sampleRate"`
	RequiresSpeakerTags bool   `json:"requiresSpeakerTags"`
}

// Params are the resolved per-call synthesis parameters. Zero values select backend
// defaults.
type Params struct {
	Voice          string
	SpeakerRefPath string
	Exaggeration   float64
	CFGWeight      float64
	Temperature    float64
	TopP           float64
	TopK           int
	Seed           int
}

// Backend synthesizes a complete waveform or fails. A returned waveform is never
// partial. progress may be nil.
type Backend interface {
	Info() BackendInfo
	Synthesize(ctx context.Context, text string, params Params, progress ProgressFunc) (core.Waveform, error)
	Health(ctx context.Context) error
	Close() error
}
