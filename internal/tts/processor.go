package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/book-expert/narration-service/internal/tts/ttsutils"
)

// ErrBinaryPathEmpty is returned when no synthesis binary is configured.
var ErrBinaryPathEmpty = errors.New("synthesis binary path cannot be empty")

// ExecConfig locates an external synthesis binary and its model files.
type ExecConfig struct {
	BinaryPath     string
	ModelPath      string
	CodecModelPath string
}

// ExecModel implements WaveformModel by running an external binary that exports a WAV
// file, for example chatllm with an OuteTTS model and a SNAC codec.
type ExecModel struct {
	config ExecConfig
	log    *logger.Logger
}

// NewExecModel resolves model paths and creates the model.
func NewExecModel(cfg ExecConfig, log *logger.Logger) (*ExecModel, error) {
	if cfg.BinaryPath == "" {
		return nil, ErrBinaryPathEmpty
	}

	modelPath, err := ttsutils.GetModelPath(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model: %w", err)
	}

	cfg.ModelPath = modelPath

	if cfg.CodecModelPath != "" {
		codecPath, codecErr := ttsutils.GetModelPath(cfg.CodecModelPath)
		if codecErr != nil {
			return nil, fmt.Errorf("failed to resolve codec model: %w", codecErr)
		}

		cfg.CodecModelPath = codecPath
	}

	return &ExecModel{
		config: cfg,
		log:    log,
	}, nil
}

// Generate runs the binary and decodes the WAV it exports.
func (m *ExecModel) Generate(ctx context.Context, input string, params Params) (core.Waveform, error) {
	tempFile, err := os.CreateTemp("", "narration-output-*.wav")
	if err != nil {
		return core.Waveform{}, fmt.Errorf("failed to create temp file for synthesis output: %w", err)
	}

	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			m.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	// #nosec G204 -- binary comes from configuration, text is passed as a single argument
	cmd := exec.CommandContext(ctx, m.config.BinaryPath, m.args(input, params, tempFile.Name())...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return core.Waveform{}, fmt.Errorf("synthesis binary execution failed: %w - output: %s", err, string(output))
	}

	return audio.ReadWAVFile(tempFile.Name())
}

// Health checks that the binary can be started.
func (m *ExecModel) Health(context.Context) error {
	_, err := exec.LookPath(m.config.BinaryPath)
	if err != nil {
		return fmt.Errorf("synthesis binary not found: %w", err)
	}

	return nil
}

func (m *ExecModel) args(input string, params Params, outputPath string) []string {
	prompt := input
	if params.Voice != "" && params.Voice != core.DefaultVoice {
		prompt = fmt.Sprintf("{%s}: %s", params.Voice, input)
	}

	args := []string{
		"-m", m.config.ModelPath,
		"-p", prompt,
		"--tts_export", outputPath,
		"--seed", strconv.Itoa(params.Seed),
	}

	if m.config.CodecModelPath != "" {
		args = append(args, "--snac_model", m.config.CodecModelPath)
	}

	if params.TopP > 0 {
		args = append(args, "--top_p", fmt.Sprintf("%.2f", params.TopP))
	}

	if params.Temperature > 0 {
		args = append(args, "--temp", fmt.Sprintf("%.2f", params.Temperature))
	}

	return args
}
