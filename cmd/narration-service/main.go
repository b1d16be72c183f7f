// main package for the narration-service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/bootstrap"
	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/objectstore"
	"github.com/book-expert/narration-service/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	bootstrapLogFile = "narration-service-bootstrap.log"
	serviceLogFile   = "narration-service.log"
)

var errNATSURLEmpty = errors.New("nats.url must be set for the service")

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve connects to NATS, builds the pipeline and runs the worker until ctx ends.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.NATS.URL == "" {
		return errNATSURLEmpty
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("narration-service"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	texts, err := objectstore.New(ctx, js, cfg.NATS.TextObjectBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(ctx, js, cfg.NATS.AudioObjectBucket)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg, nil, log)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			log.Error("Failed to close synthesis backend: %v", closeErr)
		}
	}()

	narrationWorker := worker.NewNatsWorker(natsConnection, worker.Config{
		Subject:         cfg.NATS.RequestSubject,
		ProgressSubject: cfg.NATS.ProgressSubject,
		Timeout:         cfg.SynthesisTimeout() + cfg.EngineConfig().Timeout,
		Annotation:      cfg.Annotation.Defaults,
	}, texts, audioStore, app.Narrator, log)

	log.System("Narration service initialized. Listening for jobs on subject: %s", cfg.NATS.RequestSubject)

	runErr := narrationWorker.Run(ctx)

	log.System("Narration service shutting down.")

	return runErr
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
