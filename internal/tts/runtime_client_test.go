package tts_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/narration-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntimeServer(t *testing.T, stream string) *httptest.Server {
	t.Helper()

	payload := wavBytes(t, []float32{0.25, -0.25, 0.5, -0.5}, 44100)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tokenize", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Text string `json:"text"`
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		tokens := make([]int, 0, len(request.Text))
		for _, r := range request.Text {
			tokens = append(tokens, int(r))
		}

		_ = json.NewEncoder(w).Encode(map[string][]int{"tokens": tokens})
	})
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Accept"))

		var params tts.GenerateParams

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.NotEmpty(t, params.PromptTokens)

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = fmt.Fprint(w, stream)
	})
	mux.HandleFunc("/v1/decode", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(payload)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestRuntimeClient_TokenBackend(t *testing.T) {
	t.Parallel()

	stream := "{\"token\":11}\n{\"token\":12}\n\n{\"token\":13}\n{\"done\":true}\n"
	server := newRuntimeServer(t, stream)

	client := tts.NewRuntimeClient(server.URL+"/", 5*time.Second)
	require.NoError(t, client.Health(context.Background()))

	tokens, err := client.Tokenize(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []int{97, 98, 99}, tokens)

	backend := tts.NewTokenBackend(client, tts.TokenConfig{Name: "dia", SampleRate: 44100})

	waveform, err := backend.Synthesize(context.Background(), "[S1] Hello.", tts.Params{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 44100, waveform.SampleRate)
	assert.Len(t, waveform.Samples, 4)
}

func TestRuntimeClient_GenerateStream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stream   string
		expected []int
		message  string
	}{
		{
			name:     "complete",
			stream:   "{\"token\":1}\n{\"token\":2}\n{\"done\":true}\n{\"token\":3}\n",
			expected: []int{1, 2},
		},
		{
			name:     "runtime error frame",
			stream:   "{\"token\":1}\n{\"error\":\"out of memory\"}\n",
			expected: []int{1},
			message:  "out of memory",
		},
		{
			name:     "stream ends early",
			stream:   "{\"token\":1}\n",
			expected: []int{1},
			message:  tts.ErrStreamIncomplete.Error(),
		},
		{
			name:    "malformed frame",
			stream:  "not json\n",
			message: "failed to parse stream frame",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := newRuntimeServer(t, testCase.stream)
			client := tts.NewRuntimeClient(server.URL, 5*time.Second)

			var received []int

			err := client.Generate(context.Background(), tts.GenerateParams{PromptTokens: []int{1}},
				func(token int) error {
					received = append(received, token)

					return nil
				})

			assert.Equal(t, testCase.expected, received)

			if testCase.message == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.message)
		})
	}
}

func TestRuntimeClient_EmitErrorAbortsStream(t *testing.T) {
	t.Parallel()

	server := newRuntimeServer(t, "{\"token\":1}\n{\"token\":2}\n{\"done\":true}\n")
	client := tts.NewRuntimeClient(server.URL, 5*time.Second)

	calls := 0
	err := client.Generate(context.Background(), tts.GenerateParams{PromptTokens: []int{1}}, func(int) error {
		calls++

		return errModel
	})

	require.ErrorIs(t, err, errModel)
	assert.Equal(t, 1, calls)
}

func TestRuntimeClient_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := tts.NewRuntimeClient(server.URL, time.Second)

	_, err := client.Tokenize(context.Background(), "Hello.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")

	require.Error(t, client.Health(context.Background()))
}
