package tts_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceCatalog_List(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "samples")

	catalog, err := tts.NewVoiceCatalog(dir, newTestLogger(t))
	require.NoError(t, err)
	assert.DirExists(t, dir)

	voices := catalog.List()
	require.Len(t, voices, 1)
	assert.Equal(t, tts.DefaultVoiceProfile(), voices[0])

	for _, name := range []string{"zed.wav", "alice-reads.MP3", "notes.txt", "default.wav"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.wav"), 0o750))

	voices = catalog.List()
	require.Len(t, voices, 3)
	assert.Equal(t, core.DefaultVoice, voices[0].ID)
	assert.Empty(t, voices[0].SampleAudioPath)
	assert.Equal(t, "alice-reads", voices[1].ID)
	assert.Equal(t, "Alice Reads", voices[1].DisplayName)
	assert.Equal(t, filepath.Join(dir, "alice-reads.MP3"), voices[1].SampleAudioPath)
	assert.Equal(t, "zed", voices[2].ID)
	assert.True(t, voices[2].Available)
}

func TestVoiceCatalog_Resolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "narrator.wav"), []byte("x"), 0o600))

	catalog, err := tts.NewVoiceCatalog(dir, newTestLogger(t))
	require.NoError(t, err)

	tests := []struct {
		id       string
		expected string
		sample   string
	}{
		{id: "", expected: core.DefaultVoice},
		{id: core.DefaultVoice, expected: core.DefaultVoice},
		{id: "narrator", expected: "narrator", sample: filepath.Join(dir, "narrator.wav")},
		{id: "nonexistent_voice", expected: core.DefaultVoice},
	}

	for _, testCase := range tests {
		profile := catalog.Resolve(testCase.id)
		assert.Equal(t, testCase.expected, profile.ID, "id=%q", testCase.id)
		assert.Equal(t, testCase.sample, profile.SampleAudioPath, "id=%q", testCase.id)
	}
}

func TestVoiceCatalog_WithoutDirectory(t *testing.T) {
	t.Parallel()

	catalog, err := tts.NewVoiceCatalog("", newTestLogger(t))
	require.NoError(t, err)

	assert.Len(t, catalog.List(), 1)
	assert.Equal(t, core.DefaultVoice, catalog.Resolve("anyone").ID)
}

func TestVoiceCatalog_DirectoryRemovedLater(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "voices")

	catalog, err := tts.NewVoiceCatalog(dir, newTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	assert.Len(t, catalog.List(), 1)
}
