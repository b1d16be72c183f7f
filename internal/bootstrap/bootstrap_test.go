package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/bootstrap"
	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "bootstrap-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func speechServer(t *testing.T) *httptest.Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, audio.WriteWAVFile(path, core.Waveform{Samples: []float32{0.2, -0.2, 0.1}, SampleRate: 24000}))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v1/generate/speech", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(payload)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.New()
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.VoicesDir = filepath.Join(root, "voices")

	return cfg
}

func TestNew_EndToEnd(t *testing.T) {
	t.Parallel()

	deadAnnotator := httptest.NewServer(http.NotFoundHandler())
	deadAnnotator.Close()

	cfg := baseConfig(t)
	cfg.Annotation.Backend = config.AnnotationBackendOllama
	cfg.Annotation.URL = deadAnnotator.URL
	cfg.Annotation.Model = "llama3.2:1b"
	cfg.Synthesis.URL = speechServer(t).URL
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	app, err := bootstrap.New(context.Background(), cfg, nil, newTestLogger(t))
	require.NoError(t, err)

	defer func() { assert.NoError(t, app.Close()) }()

	assert.False(t, app.Engine.RemoteAvailable())
	assert.DirExists(t, cfg.Paths.OutputDir)
	assert.DirExists(t, cfg.Paths.VoicesDir)

	result, err := app.Narrator.Narrate(context.Background(), core.TextRequest{
		Text:       "Wow, that's amazing!",
		Annotation: cfg.Annotation.Defaults,
		Synthesis:  core.SynthesisSettings{Voice: "nonexistent_id"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, core.BackendRuleBased, result.Annotation.BackendUsed)
	assert.FileExists(t, filepath.Join(cfg.Paths.OutputDir, result.Artifact.Filename))

	report := app.Narrator.Health(context.Background())
	assert.True(t, report.Synthesis)
	assert.Equal(t, config.SynthesisBackendWaveformHTTP, report.SynthesisBackend)
}

func TestNew_BackendInitFailureLeavesSynthesisUnavailable(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Synthesis.Backend = config.SynthesisBackendWaveformExec
	cfg.Synthesis.BinaryPath = "/bin/true"
	cfg.Synthesis.ModelPath = filepath.Join(t.TempDir(), "missing.gguf")
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	app, err := bootstrap.New(context.Background(), cfg, nil, newTestLogger(t))
	require.NoError(t, err)

	_, err = app.Narrator.Narrate(context.Background(), core.TextRequest{Text: "Hello."}, nil)
	require.ErrorIs(t, err, core.ErrBackendUnavailable)

	annotated, err := app.Narrator.Annotate(context.Background(), "Hello.", core.DefaultAnnotationSettings())
	require.NoError(t, err)
	assert.Equal(t, "Hello. (pauses)", annotated.Annotated)

	require.NoError(t, app.Close())
}

func TestNewRemoteAnnotator(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	none := baseConfig(t)
	assert.Nil(t, bootstrap.NewRemoteAnnotator(context.Background(), none, log))

	ollama := baseConfig(t)
	ollama.Annotation.Backend = config.AnnotationBackendOllama
	ollama.Annotation.Model = "llama3.2:1b"
	remote := bootstrap.NewRemoteAnnotator(context.Background(), ollama, log)
	require.NotNil(t, remote)
	assert.Equal(t, "ollama:llama3.2:1b", remote.Name())

	openai := baseConfig(t)
	openai.Annotation.Backend = config.AnnotationBackendOpenAI
	openai.Annotation.URL = "http://127.0.0.1:1/v1"
	openai.Annotation.Model = "gpt-4o-mini"
	remote = bootstrap.NewRemoteAnnotator(context.Background(), openai, log)
	require.NotNil(t, remote)
	assert.Equal(t, "openai:gpt-4o-mini", remote.Name())

	missingModel := baseConfig(t)
	missingModel.Annotation.Backend = config.AnnotationBackendOllama
	assert.Nil(t, bootstrap.NewRemoteAnnotator(context.Background(), missingModel, log))
}
