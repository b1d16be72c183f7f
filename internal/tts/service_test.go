package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records every call and tracks how many run at once.
type fakeBackend struct {
	mu          sync.Mutex
	info        tts.BackendInfo
	delay       time.Duration
	gate        chan struct{}
	err         error
	inputs      []string
	params      []tts.Params
	ctxErrs     []error
	inFlight    int
	maxInFlight int
	closed      bool
}

func newFakeBackend(requiresTags bool) *fakeBackend {
	return &fakeBackend{info: tts.BackendInfo{
		Name:                "fake",
		Family:              tts.FamilyWaveform,
		SampleRate:          audio.DEFAULT_SAMPLE_RATE,
		RequiresSpeakerTags: requiresTags,
	}}
}

func (f *fakeBackend) Info() tts.BackendInfo { return f.info }

func (f *fakeBackend) Synthesize(ctx context.Context, input string, params tts.Params, _ tts.ProgressFunc) (core.Waveform, error) {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.inputs = append(f.inputs, input)
	f.params = append(f.params, params)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()

	time.Sleep(f.delay)

	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.err != nil {
		return core.Waveform{}, f.err
	}

	return core.Waveform{Samples: []float32{0.1, 0.2, -0.4, 0.2}, SampleRate: audio.DEFAULT_SAMPLE_RATE}, nil
}

func (f *fakeBackend) Health(context.Context) error { return f.err }

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.inputs)
}

func newTestService(t *testing.T, backend tts.Backend, cfg tts.ServiceConfig) (*tts.Service, string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "voices")
	log := newTestLogger(t)

	voices, err := tts.NewVoiceCatalog(dir, log)
	require.NoError(t, err)

	return tts.NewService(backend, voices, cfg, log), dir
}

func TestService_NoBackend(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t, nil, tts.ServiceConfig{})

	_, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
	require.ErrorIs(t, err, core.ErrBackendUnavailable)

	require.ErrorIs(t, service.Health(context.Background()), core.ErrBackendUnavailable)

	_, ok := service.Info()
	assert.False(t, ok)
}

func TestService_RejectsInvalidRequestsBeforeBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		settings core.SynthesisSettings
	}{
		{name: "empty text", input: ""},
		{name: "whitespace text", input: " \n\t "},
		{name: "markers only", input: "[S1] [S2]"},
		{name: "exaggeration", input: "Hi.", settings: core.SynthesisSettings{Exaggeration: 1.5}},
		{name: "cfg weight", input: "Hi.", settings: core.SynthesisSettings{CFGWeight: -0.1}},
		{name: "top k", input: "Hi.", settings: core.SynthesisSettings{TopK: -1}},
		{name: "volume", input: "Hi.", settings: core.SynthesisSettings{Volume: 50}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			backend := newFakeBackend(false)
			service, _ := newTestService(t, backend, tts.ServiceConfig{})

			_, err := service.Synthesize(context.Background(), testCase.input, testCase.settings, nil)
			require.ErrorIs(t, err, core.ErrValidation)
			assert.Zero(t, backend.calls())
		})
	}
}

func TestService_UnknownVoiceFallsBackToDefault(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	service, _ := newTestService(t, backend, tts.ServiceConfig{})

	waveform, err := service.Synthesize(context.Background(), "Hello there.",
		core.SynthesisSettings{Voice: "nonexistent_voice"}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, waveform.Samples)
	require.Len(t, backend.params, 1)
	assert.Equal(t, core.DefaultVoice, backend.params[0].Voice)
	assert.Empty(t, backend.params[0].SpeakerRefPath)
}

func TestService_KnownVoiceUsesSample(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	service, dir := newTestService(t, backend, tts.ServiceConfig{})

	samplePath := filepath.Join(dir, "warm_narrator.wav")
	require.NoError(t, os.WriteFile(samplePath, []byte("RIFF"), 0o600))

	_, err := service.Synthesize(context.Background(), "Hello there.",
		core.SynthesisSettings{Voice: "warm_narrator", Exaggeration: 0.6, CFGWeight: 0.3, Seed: 42}, nil)
	require.NoError(t, err)

	require.Len(t, backend.params, 1)
	assert.Equal(t, "warm_narrator", backend.params[0].Voice)
	assert.Equal(t, samplePath, backend.params[0].SpeakerRefPath)
	assert.InDelta(t, 0.6, backend.params[0].Exaggeration, 1e-9)
	assert.InDelta(t, 0.3, backend.params[0].CFGWeight, 1e-9)
	assert.Equal(t, 42, backend.params[0].Seed)

	voices := service.Voices()
	require.Len(t, voices, 2)
	assert.Equal(t, core.DefaultVoice, voices[0].ID)
	assert.Equal(t, "Warm Narrator", voices[1].DisplayName)
}

func TestService_SpeakerTagsOnlyWhenRequired(t *testing.T) {
	t.Parallel()

	plain := newFakeBackend(false)
	plainService, _ := newTestService(t, plain, tts.ServiceConfig{})

	_, err := plainService.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello.", plain.inputs[0])

	dialogue := newFakeBackend(true)
	dialogueService, _ := newTestService(t, dialogue, tts.ServiceConfig{})

	_, err = dialogueService.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dialogue.inputs[0], "[S"))
	assert.Contains(t, dialogue.inputs[0], "[S1] Hello. [S2]")
}

func TestService_NormalizesTextWhenConfigured(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	service, _ := newTestService(t, backend, tts.ServiceConfig{NormalizeText: true})

	_, err := service.Synthesize(context.Background(), "Dr. Smith has 3 cats", core.SynthesisSettings{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Doctor Smith has three cats.", backend.inputs[0])
}

func TestService_CancelledContextStillCompletes(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	service, _ := newTestService(t, backend, tts.ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Synthesize(ctx, "Hello.", core.SynthesisSettings{}, nil)
	require.NoError(t, err)
	require.NoError(t, backend.ctxErrs[0])
}

func TestService_SerializesBackendCalls(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	backend.delay = 10 * time.Millisecond
	service, _ := newTestService(t, backend, tts.ServiceConfig{})

	var waitGroup sync.WaitGroup

	for range 4 {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			_, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
			assert.NoError(t, err)
		}()
	}

	waitGroup.Wait()

	assert.Equal(t, 4, backend.calls())
	assert.Equal(t, 1, backend.maxInFlight)
}

func TestService_InfoAndHealthDoNotWaitForSynthesis(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	backend.gate = make(chan struct{})
	service, _ := newTestService(t, backend, tts.ServiceConfig{})

	synthesized := make(chan error, 1)

	go func() {
		_, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
		synthesized <- err
	}()

	require.Eventually(t, func() bool { return backend.calls() == 1 }, time.Second, 5*time.Millisecond)

	answered := make(chan error, 1)

	go func() {
		_, ok := service.Info()
		assert.True(t, ok)
		answered <- service.Health(context.Background())
	}()

	select {
	case err := <-answered:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Info and Health blocked behind an in-flight synthesis")
	}

	close(backend.gate)
	require.NoError(t, <-synthesized)
}

func TestService_AppliesEffects(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	service, _ := newTestService(t, backend, tts.ServiceConfig{})

	raw, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, -0.4, 0.2}, raw.Samples)

	normalized, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{Normalize: true}, nil)
	require.NoError(t, err)
	assert.InDelta(t, -0.95, normalized.Samples[2], 1e-6)

	quieter, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{Volume: 0.5}, nil)
	require.NoError(t, err)
	assert.InDelta(t, -0.2, quieter.Samples[2], 1e-6)
}

func TestService_SurfacesBackendErrors(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	backend.err = core.ErrGenerationFailed
	service, _ := newTestService(t, backend, tts.ServiceConfig{})

	_, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
	require.ErrorIs(t, err, core.ErrGenerationFailed)
}

func TestService_Close(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(false)
	service, _ := newTestService(t, backend, tts.ServiceConfig{})

	info, ok := service.Info()
	require.True(t, ok)
	assert.Equal(t, "fake", info.Name)

	require.NoError(t, service.Close())
	assert.True(t, backend.closed)
	require.NoError(t, service.Close())

	_, err := service.Synthesize(context.Background(), "Hello.", core.SynthesisSettings{}, nil)
	require.ErrorIs(t, err, core.ErrBackendUnavailable)
}
