package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts"
	"github.com/book-expert/narration-service/internal/tts/ttsutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinaryScript records its arguments and copies a prepared WAV to --tts_export.
const fakeBinaryScript = `#!/bin/sh
out=""
: > "%[1]s"
while [ $# -gt 0 ]; do
  echo "$1" >> "%[1]s"
  if [ "$1" = "--tts_export" ]; then out="$2"; fi
  shift
done
cp "%[2]s" "$out"
`

func writeFakeBinary(t *testing.T) (binary, argsFile string) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script binary")
	}

	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	source := filepath.Join(dir, "source.wav")
	require.NoError(t, os.WriteFile(source, wavBytes(t, []float32{0.5, -0.5, 0.25}, 24000), 0o600))

	binary = filepath.Join(dir, "chatllm")
	script := strings.NewReplacer("%[1]s", argsFile, "%[2]s", source).Replace(fakeBinaryScript)
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o700)) //nolint:gosec // test executable

	return binary, argsFile
}

func TestExecModel_Generate(t *testing.T) {
	t.Parallel()

	binary, argsFile := writeFakeBinary(t)

	modelPath := filepath.Join(t.TempDir(), "outetts.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("model"), 0o600))

	model, err := tts.NewExecModel(tts.ExecConfig{BinaryPath: binary, ModelPath: modelPath}, newTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, model.Health(context.Background()))

	backend := tts.NewWaveformBackend(model, tts.WaveformConfig{Name: "outetts"})

	waveform, err := backend.Synthesize(context.Background(), "Hello there.",
		tts.Params{Voice: "narrator", Seed: 9, TopP: 0.8}, nil)
	require.NoError(t, err)

	assert.Equal(t, 24000, waveform.SampleRate)
	assert.Len(t, waveform.Samples, 3)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)

	args := strings.Split(strings.TrimSpace(string(recorded)), "\n")
	assert.Contains(t, args, "{narrator}: Hello there.")
	assert.Contains(t, args, modelPath)
	assert.Contains(t, args, "0.80")
	assert.NotContains(t, args, "--snac_model")
	assert.NotContains(t, args, "--temp")
}

func TestExecModel_DefaultVoicePromptIsPlain(t *testing.T) {
	t.Parallel()

	binary, argsFile := writeFakeBinary(t)

	modelPath := filepath.Join(t.TempDir(), "outetts.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("model"), 0o600))

	model, err := tts.NewExecModel(tts.ExecConfig{BinaryPath: binary, ModelPath: modelPath}, newTestLogger(t))
	require.NoError(t, err)

	_, err = model.Generate(context.Background(), "Plain text.", tts.Params{Voice: core.DefaultVoice})
	require.NoError(t, err)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, strings.Split(string(recorded), "\n"), "Plain text.")
}

func TestNewExecModel_Errors(t *testing.T) {
	t.Parallel()

	_, err := tts.NewExecModel(tts.ExecConfig{}, newTestLogger(t))
	require.ErrorIs(t, err, tts.ErrBinaryPathEmpty)

	_, err = tts.NewExecModel(tts.ExecConfig{
		BinaryPath: "/bin/true",
		ModelPath:  filepath.Join(t.TempDir(), "missing.gguf"),
	}, newTestLogger(t))
	require.ErrorIs(t, err, ttsutils.ErrModelNotFound)
}

func TestExecModel_FailingBinary(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("shell script binary")
	}

	dir := t.TempDir()
	binary := filepath.Join(dir, "broken")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\necho kaput\nexit 3\n"), 0o700)) //nolint:gosec // test executable

	modelPath := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("model"), 0o600))

	model, err := tts.NewExecModel(tts.ExecConfig{BinaryPath: binary, ModelPath: modelPath}, newTestLogger(t))
	require.NoError(t, err)

	backend := tts.NewWaveformBackend(model, tts.WaveformConfig{})

	_, err = backend.Synthesize(context.Background(), "Hello.", tts.Params{}, nil)
	require.ErrorIs(t, err, core.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "kaput")
}
