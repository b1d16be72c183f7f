package tts

import (
	"context"
	"fmt"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/book-expert/narration-service/internal/tts/text"
)

const (
	logFmtSynthesisStarted  = "Synthesizing %d characters with %s (voice %s)"
	logFmtSynthesisFinished = "Synthesized %d samples at %d Hz"
	logFmtBackendClosed     = "Synthesis backend %s closed"
)

// ServiceConfig tunes text preparation and post-processing.
type ServiceConfig struct {
	// NormalizeText runs the speech normalizer before synthesis.
	NormalizeText bool
	// MinScaffoldChars is the carrier phrase threshold for speaker tagging.
	MinScaffoldChars int
	// Effects is the base post-processing applied to every waveform.
	Effects audio.Quality
}

// Service owns the process-wide synthesis backend. A nil backend is a valid state that
// fails every synthesis with core.ErrBackendUnavailable.
//
// Backend calls are serialized: at most one synthesis runs at a time. Calls run to
// completion even when the caller's context is cancelled. Info and Health never wait for
// an in-flight synthesis.
type Service struct {
	// mu is held for the whole backend invocation.
	mu sync.Mutex
	// stateMu guards backend and is only held briefly.
	stateMu    sync.RWMutex
	backend    Backend
	voices     *VoiceCatalog
	tagger     *text.SpeakerTagger
	normalizer *text.Preprocessor
	config     ServiceConfig
	log        *logger.Logger
}

// NewService creates a service. backend may be nil.
func NewService(backend Backend, voices *VoiceCatalog, cfg ServiceConfig, log *logger.Logger) *Service {
	effects := audio.NewDefaultQuality()
	effects.Normalize = cfg.Effects.Normalize
	effects.FadeIn = cfg.Effects.FadeIn
	effects.FadeOut = cfg.Effects.FadeOut

	if cfg.Effects.Volume > 0 {
		effects.Volume = cfg.Effects.Volume
	}

	cfg.Effects = effects

	return &Service{
		backend:    backend,
		voices:     voices,
		tagger:     text.NewSpeakerTagger(cfg.MinScaffoldChars),
		normalizer: text.NewPreprocessor(),
		config:     cfg,
		log:        log,
	}
}

// Info returns the backend capabilities and whether a backend is present.
func (s *Service) Info() (BackendInfo, bool) {
	backend := s.current()
	if backend == nil {
		return BackendInfo{}, false
	}

	return backend.Info(), true
}

func (s *Service) current() Backend {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	return s.backend
}

// Voices lists the available voices.
func (s *Service) Voices() []core.VoiceProfile {
	return s.voices.List()
}

// Synthesize validates the request, resolves the voice, prepares text for the active
// backend and returns a post-processed waveform.
func (s *Service) Synthesize(
	ctx context.Context,
	input string,
	settings core.SynthesisSettings,
	progress ProgressFunc,
) (core.Waveform, error) {
	validateErr := core.ValidateText(input)
	if validateErr != nil {
		return core.Waveform{}, validateErr
	}

	if !s.tagger.HasSpeech(input) {
		return core.Waveform{}, fmt.Errorf("%w: text contains only speaker markers", core.ErrValidation)
	}

	settingsErr := core.ValidateSynthesisSettings(settings)
	if settingsErr != nil {
		return core.Waveform{}, settingsErr
	}

	voice := s.voices.Resolve(settings.Voice)
	params := Params{
		Voice:          voice.ID,
		SpeakerRefPath: voice.SampleAudioPath,
		Exaggeration:   settings.Exaggeration,
		CFGWeight:      settings.CFGWeight,
		Temperature:    settings.Temperature,
		TopP:           settings.TopP,
		TopK:           settings.TopK,
		Seed:           settings.Seed,
	}

	waveform, err := s.invoke(ctx, input, params, progress)
	if err != nil {
		return core.Waveform{}, err
	}

	effects := s.config.Effects
	effects.SampleRate = waveform.SampleRate

	if settings.Normalize {
		effects.Normalize = true
	}

	if settings.Volume > 0 {
		effects.Volume = settings.Volume
	}

	effectsErr := effects.Validate()
	if effectsErr != nil {
		return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrValidation, effectsErr)
	}

	waveform.Samples = effects.ApplyEffects(waveform.Samples, waveform.SampleRate)

	return waveform, nil
}

// invoke is the critical section around the backend.
func (s *Service) invoke(ctx context.Context, input string, params Params, progress ProgressFunc) (core.Waveform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backend := s.current()
	if backend == nil {
		return core.Waveform{}, core.ErrBackendUnavailable
	}

	info := backend.Info()
	prepared := s.prepare(input, info)

	s.log.Info(logFmtSynthesisStarted, text.RuneLen(prepared), info.Name, params.Voice)

	waveform, err := backend.Synthesize(context.WithoutCancel(ctx), prepared, params, progress)
	if err != nil {
		return core.Waveform{}, err
	}

	s.log.Info(logFmtSynthesisFinished, len(waveform.Samples), waveform.SampleRate)

	return waveform, nil
}

// prepare normalizes text and adds speaker turns only for backends that need them.
func (s *Service) prepare(input string, info BackendInfo) string {
	prepared := input
	if s.config.NormalizeText {
		prepared = s.normalizer.PreprocessText(prepared)
	}

	if info.RequiresSpeakerTags {
		prepared = s.tagger.Normalize(prepared)
	}

	return prepared
}

// Health reports whether the backend is present and healthy.
func (s *Service) Health(ctx context.Context) error {
	backend := s.current()
	if backend == nil {
		return core.ErrBackendUnavailable
	}

	return backend.Health(ctx)
}

// Close waits for an in-flight synthesis and shuts the backend down. Later calls fail
// with core.ErrBackendUnavailable.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateMu.Lock()
	backend := s.backend
	s.backend = nil
	s.stateMu.Unlock()

	if backend == nil {
		return nil
	}

	name := backend.Info().Name
	closeErr := backend.Close()

	if closeErr != nil {
		return fmt.Errorf("failed to close synthesis backend %s: %w", name, closeErr)
	}

	s.log.System(logFmtBackendClosed, name)

	return nil
}
