package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/bootstrap"
	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/objectstore"
	"github.com/book-expert/narration-service/internal/tts"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagConfig       = "config"
	flagVerbose      = "verbose"
	flagText         = "text"
	flagFile         = "file"
	flagChunks       = "chunks"
	flagIntensity    = "intensity"
	flagNoEmotions   = "no-emotions"
	flagNoPauses     = "no-pauses"
	flagVoice        = "voice"
	flagExaggeration = "exaggeration"
	flagCFGWeight    = "cfg-weight"
	flagSeed         = "seed"
	flagUpload       = "upload"
	flagJSON         = "json"
)

// Flag descriptions.
const (
	flagConfigDesc       = "Path to a TOML configuration file (defaults to configurator discovery)"
	flagVerboseDesc      = "Write a verbose log file"
	flagTextDesc         = "Text to narrate"
	flagFileDesc         = "Read the text from a file"
	flagChunksDesc       = "JSON file containing an array of text chunks to narrate in order"
	flagIntensityDesc    = "Emotion intensity between 0.0 and 1.0 (defaults to configuration)"
	flagNoEmotionsDesc   = "Do not add emotion markers"
	flagNoPausesDesc     = "Do not add pause markers"
	flagVoiceDesc        = "Voice id from the voices directory"
	flagExaggerationDesc = "Emotion exaggeration between 0.0 and 1.0"
	flagCFGWeightDesc    = "Classifier-free guidance weight between 0.0 and 1.0"
	flagSeedDesc         = "Sampling seed"
	flagUploadDesc       = "Mirror artifacts to the NATS audio object store"
	flagJSONDesc         = "Print results as JSON"
)

// Log files.
const (
	logFileNameDefault = "narrate.log"
	logFileNameVerbose = "narrate-verbose.log"
)

const healthTimeout = 10 * time.Second

var (
	errNoInput            = errors.New("one of --text, --file or --chunks must be provided")
	errTooManyInputs      = errors.New("only one of --text, --file or --chunks may be provided")
	errSynthesisUnhealthy = errors.New("synthesis backend is not healthy")
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
}

// inputOptions select where narration text comes from.
type inputOptions struct {
	text   string
	file   string
	chunks string
}

// annotationOptions override configured annotation defaults.
type annotationOptions struct {
	intensity  float64
	noEmotions bool
	noPauses   bool
}

// session holds what a command needs after setup.
type session struct {
	cfg *config.Config
	log *logger.Logger
	app *bootstrap.App
	nc  *nats.Conn
}

func (s *session) close() {
	if s.app != nil {
		_ = s.app.Close()
	}

	if s.nc != nil {
		s.nc.Close()
	}

	_ = s.log.Close()
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "narrate",
		Short:         "Annotate and synthesize audiobook narration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)
	root.PersistentFlags().BoolVar(&opts.verbose, flagVerbose, false, flagVerboseDesc)

	root.AddCommand(
		newAnnotateCommand(opts),
		newSynthesizeCommand(opts),
		newVoicesCommand(opts),
		newHealthCommand(opts),
	)

	return root
}

// setup loads configuration, creates the logger and builds the pipeline.
func setup(ctx context.Context, opts *rootOptions, upload bool) (*session, error) {
	bootstrapLog, err := logger.New(os.TempDir(), logFileNameDefault)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := loadConfig(opts.configPath, bootstrapLog)

	_ = bootstrapLog.Close()

	if err != nil {
		return nil, err
	}

	logFileName := logFileNameDefault
	if opts.verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	current := &session{cfg: cfg, log: log}

	var mirror core.ObjectStore

	if upload {
		mirror, err = current.connectMirror(ctx)
		if err != nil {
			current.close()

			return nil, err
		}
	}

	current.app, err = bootstrap.New(ctx, cfg, mirror, log)
	if err != nil {
		current.close()

		return nil, err
	}

	return current, nil
}

func loadConfig(path string, log *logger.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load(log)
}

func (s *session) connectMirror(ctx context.Context) (core.ObjectStore, error) {
	nc, err := nats.Connect(s.cfg.NATS.URL, nats.Name("narrate-cli"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", s.cfg.NATS.URL, err)
	}

	s.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return objectstore.New(ctx, js, s.cfg.NATS.AudioObjectBucket)
}

func addInputFlags(cmd *cobra.Command, input *inputOptions, withChunks bool) {
	cmd.Flags().StringVar(&input.text, flagText, "", flagTextDesc)
	cmd.Flags().StringVar(&input.file, flagFile, "", flagFileDesc)

	if withChunks {
		cmd.Flags().StringVar(&input.chunks, flagChunks, "", flagChunksDesc)
	}
}

func addAnnotationFlags(cmd *cobra.Command, annotation *annotationOptions) {
	cmd.Flags().Float64Var(&annotation.intensity, flagIntensity, -1, flagIntensityDesc)
	cmd.Flags().BoolVar(&annotation.noEmotions, flagNoEmotions, false, flagNoEmotionsDesc)
	cmd.Flags().BoolVar(&annotation.noPauses, flagNoPauses, false, flagNoPausesDesc)
}

// readInputs returns the texts to process, validating that exactly one source is set.
func readInputs(input inputOptions) ([]string, error) {
	set := 0

	for _, value := range []string{input.text, input.file, input.chunks} {
		if value != "" {
			set++
		}
	}

	switch {
	case set == 0:
		return nil, errNoInput
	case set > 1:
		return nil, errTooManyInputs
	case input.text != "":
		return []string{input.text}, nil
	case input.file != "":
		data, err := os.ReadFile(input.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", input.file, err)
		}

		return []string{string(data)}, nil
	default:
		return readChunks(input.chunks)
	}
}

func readChunks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks file %s: %w", path, err)
	}

	var chunks []string

	unmarshalErr := json.Unmarshal(data, &chunks)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse chunks file %s: %w", path, unmarshalErr)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s contains no chunks", errNoInput, path)
	}

	return chunks, nil
}

func annotationSettings(defaults core.AnnotationSettings, opts annotationOptions) core.AnnotationSettings {
	settings := defaults
	if opts.intensity >= 0 {
		settings.EmotionIntensity = opts.intensity
	}

	if opts.noEmotions {
		settings.AddEmotions = false
	}

	if opts.noPauses {
		settings.AddPauses = false
	}

	return settings
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	return nil
}

func newAnnotateCommand(root *rootOptions) *cobra.Command {
	var (
		input      inputOptions
		annotation annotationOptions
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Add emotion and pause markers to text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			texts, err := readInputs(input)
			if err != nil {
				return err
			}

			current, err := setup(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer current.close()

			settings := annotationSettings(current.cfg.Annotation.Defaults, annotation)

			result, err := current.app.Narrator.Annotate(cmd.Context(), texts[0], settings)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Annotated)

			return err
		},
	}

	addInputFlags(cmd, &input, false)
	addAnnotationFlags(cmd, &annotation)
	cmd.Flags().BoolVar(&asJSON, flagJSON, false, flagJSONDesc)

	return cmd
}

func newSynthesizeCommand(root *rootOptions) *cobra.Command {
	var (
		input      inputOptions
		annotation annotationOptions
		synthesis  core.SynthesisSettings
		upload     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Narrate text into WAV files in the output directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			texts, err := readInputs(input)
			if err != nil {
				return err
			}

			current, err := setup(cmd.Context(), root, upload)
			if err != nil {
				return err
			}
			defer current.close()

			request := core.TextRequest{
				Annotation: annotationSettings(current.cfg.Annotation.Defaults, annotation),
				Synthesis:  synthesis,
			}
			progress := tts.Tee(tts.ProgressLogger(current.log), progressPrinter(cmd.ErrOrStderr()))

			for index, text := range texts {
				request.Text = text

				result, narrateErr := current.app.Narrator.Narrate(cmd.Context(), request, progress)
				if narrateErr != nil {
					return fmt.Errorf("chunk %d: %w", index+1, narrateErr)
				}

				if asJSON {
					printErr := printJSON(cmd.OutOrStdout(), result)
					if printErr != nil {
						return printErr
					}

					continue
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s\n",
					filepath.Join(current.app.Artifacts.Dir(), result.Artifact.Filename))
				if err != nil {
					return err
				}
			}

			return nil
		},
	}

	addInputFlags(cmd, &input, true)
	addAnnotationFlags(cmd, &annotation)
	cmd.Flags().StringVar(&synthesis.Voice, flagVoice, core.DefaultVoice, flagVoiceDesc)
	cmd.Flags().Float64Var(&synthesis.Exaggeration, flagExaggeration, 0, flagExaggerationDesc)
	cmd.Flags().Float64Var(&synthesis.CFGWeight, flagCFGWeight, 0, flagCFGWeightDesc)
	cmd.Flags().IntVar(&synthesis.Seed, flagSeed, 0, flagSeedDesc)
	cmd.Flags().BoolVar(&upload, flagUpload, false, flagUploadDesc)
	cmd.Flags().BoolVar(&asJSON, flagJSON, false, flagJSONDesc)

	return cmd
}

func progressPrinter(out io.Writer) tts.ProgressFunc {
	return func(progress tts.Progress) {
		_, _ = fmt.Fprintf(out, "\rGenerated %d/%d tokens", progress.Generated, progress.Budget)
	}
}

func newVoicesCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List available voices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := setup(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer current.close()

			voices := current.app.Narrator.Voices()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), voices)
			}

			for _, voice := range voices {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", voice.ID, voice.DisplayName)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, flagJSON, false, flagJSONDesc)

	return cmd
}

func newHealthCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report annotation and synthesis backend health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := setup(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer current.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			report := current.app.Narrator.Health(ctx)

			printErr := printJSON(cmd.OutOrStdout(), report)
			if printErr != nil {
				return printErr
			}

			if !report.Synthesis {
				return errSynthesisUnhealthy
			}

			return nil
		},
	}
}
