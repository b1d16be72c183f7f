package tts_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

// wavBytes encodes samples as a 16-bit mono WAV payload.
func wavBytes(t *testing.T, samples []float32, sampleRate int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "payload.wav")
	require.NoError(t, audio.WriteWAVFile(path, core.Waveform{Samples: samples, SampleRate: sampleRate}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}
