// Package bootstrap builds the narration components from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/annotation"
	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/pipeline"
	"github.com/book-expert/narration-service/internal/storage"
	"github.com/book-expert/narration-service/internal/tts"
)

const probeTimeout = 5 * time.Second

const (
	logFmtRemoteInitFailed  = "Failed to initialize %s annotator, running rule-based only: %v"
	logFmtBackendInitFailed = "Failed to initialize synthesis backend %s, synthesis is unavailable: %v"
	logFmtBackendReady      = "Synthesis backend %s (%s, %d Hz) initialized"
	logFmtBackendUnhealthy  = "Synthesis backend %s failed its health check: %v"
)

// App holds the constructed components. Close releases the synthesis backend.
type App struct {
	Engine    *annotation.Engine
	Service   *tts.Service
	Artifacts *storage.ArtifactStore
	Narrator  *pipeline.Narrator
}

// New builds every component. A remote annotator or synthesis backend that fails to
// initialize is logged and left absent instead of failing startup. mirror may be nil.
func New(ctx context.Context, cfg *config.Config, mirror core.ObjectStore, log *logger.Logger) (*App, error) {
	remote := annotation.ProbeRemote(ctx, NewRemoteAnnotator(ctx, cfg, log), log)
	engine := annotation.NewEngine(cfg.EngineConfig(), remote, nil, log)

	voices, err := tts.NewVoiceCatalog(cfg.Paths.VoicesDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare voices directory: %w", err)
	}

	backend := NewSynthesisBackend(ctx, cfg, log)
	service := tts.NewService(backend, voices, cfg.ServiceConfig(), log)

	opts := []storage.Option{}
	if mirror != nil {
		opts = append(opts, storage.WithMirror(mirror))
	}

	artifacts, err := storage.NewArtifactStore(cfg.Paths.OutputDir, log, opts...)
	if err != nil {
		_ = service.Close()

		return nil, fmt.Errorf("failed to prepare output directory: %w", err)
	}

	return &App{
		Engine:    engine,
		Service:   service,
		Artifacts: artifacts,
		Narrator:  pipeline.NewNarrator(engine, service, artifacts, log),
	}, nil
}

// Close shuts the synthesis backend down.
func (a *App) Close() error {
	return a.Service.Close()
}

// NewRemoteAnnotator constructs the configured remote annotator, or nil when none is
// configured or construction fails.
func NewRemoteAnnotator(ctx context.Context, cfg *config.Config, log *logger.Logger) annotation.Annotator {
	var (
		remote annotation.Annotator
		err    error
	)

	switch cfg.Annotation.Backend {
	case config.AnnotationBackendOllama:
		remote, err = annotation.NewOllamaAnnotator(cfg.RemoteConfig())
	case config.AnnotationBackendOpenAI:
		remote, err = annotation.NewChatAnnotator(ctx, cfg.RemoteConfig())
	default:
		return nil
	}

	if err != nil {
		log.Warn(logFmtRemoteInitFailed, cfg.Annotation.Backend, err)

		return nil
	}

	return remote
}

// NewSynthesisBackend constructs the configured backend. It returns nil when
// construction fails; the service then reports core.ErrBackendUnavailable.
func NewSynthesisBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) tts.Backend {
	var backend tts.Backend

	switch cfg.Synthesis.Backend {
	case config.SynthesisBackendTokenHTTP:
		client := tts.NewRuntimeClient(cfg.Synthesis.URL, cfg.SynthesisTimeout())
		backend = tts.NewTokenBackend(client, cfg.TokenConfig())
	case config.SynthesisBackendWaveformHTTP:
		client := tts.NewSpeechClient(cfg.Synthesis.URL, cfg.SynthesisTimeout())
		backend = tts.NewWaveformBackend(client, cfg.WaveformConfig())
	case config.SynthesisBackendWaveformExec:
		model, err := tts.NewExecModel(tts.ExecConfig{
			BinaryPath:     cfg.Synthesis.BinaryPath,
			ModelPath:      cfg.Synthesis.ModelPath,
			CodecModelPath: cfg.Synthesis.CodecModelPath,
		}, log)
		if err != nil {
			log.Error(logFmtBackendInitFailed, cfg.Synthesis.Backend, err)

			return nil
		}

		backend = tts.NewWaveformBackend(model, cfg.WaveformConfig())
	default:
		log.Error(logFmtBackendInitFailed, cfg.Synthesis.Backend, config.ErrInvalidConfig)

		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	healthErr := backend.Health(probeCtx)
	if healthErr != nil {
		log.Warn(logFmtBackendUnhealthy, cfg.Synthesis.Backend, healthErr)
	}

	info := backend.Info()
	log.System(logFmtBackendReady, info.Name, info.Family, info.SampleRate)

	return backend
}
