// Package worker provides a NATS worker that turns text events into narrated audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/pipeline"
	"github.com/book-expert/narration-service/internal/tts"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// QueueGroup lets several workers share one request subject.
	QueueGroup = "narration-workers"

	// HeaderError carries the failure reason on error replies.
	HeaderError = "Nats-Service-Error"
	// HeaderErrorCode carries an HTTP-like status code on error replies.
	HeaderErrorCode = "Nats-Service-Error-Code"

	defaultHandleTimeout = 5 * time.Minute
	codeBadRequest       = "400"
	codeInternal         = "500"
)

const (
	logFmtJobStarted   = "Narrating %s (page %d/%d, %d bytes)"
	logFmtJobFinished  = "Uploaded %s for workflow %s"
	logFmtJobRejected  = "Rejected job for workflow %s: %v"
	logFmtJobFailed    = "Failed to process narration job for workflow %s: %v"
	logFmtReplyFailed  = "Failed to publish reply for workflow %s: %v"
	logFmtProgressFail = "Failed to publish progress for workflow %s: %v"
)

var (
	// ErrTextKeyEmpty indicates an event without a text object key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrWorkflowIDEmpty indicates an event without a workflow id.
	ErrWorkflowIDEmpty = errors.New("workflow id cannot be empty")
)

// Narrator is the pipeline the worker drives.
type Narrator interface {
	Narrate(ctx context.Context, request core.TextRequest, progress tts.ProgressFunc) (pipeline.NarrationResult, error)
}

// Config wires the worker to its subjects and stores.
type Config struct {
	Subject         string
	ProgressSubject string
	Timeout         time.Duration
	Annotation      core.AnnotationSettings
}

// ProgressEvent is published on the progress subject while tokens are generated.
type ProgressEvent struct {
	WorkflowID string       `json:"workflow_id"`
	PageNumber int          `json:"page_number"`
	Progress   tts.Progress `json:"progress"`
}

// NatsWorker listens for TextProcessedEvent requests and replies with
// AudioChunkCreatedEvent.
type NatsWorker struct {
	natsConnection *nats.Conn
	config         Config
	texts          core.ObjectStore
	audio          core.ObjectStore
	narrator       Narrator
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. texts holds the incoming text
// objects and audio receives the WAV artifacts; they may be the same store.
func NewNatsWorker(
	natsConnection *nats.Conn,
	cfg Config,
	texts core.ObjectStore,
	audio core.ObjectStore,
	narrator Narrator,
	log *logger.Logger,
) *NatsWorker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		config:         cfg,
		texts:          texts,
		audio:          audio,
		narrator:       narrator,
		log:            log,
	}
}

// Run subscribes and processes messages until ctx is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.config.Subject, QueueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.config.Subject, err)
	}

	flushErr := w.natsConnection.Flush()
	if flushErr != nil {
		return fmt.Errorf("failed to flush subscription: %w", flushErr)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Warn(logFmtJobRejected, "unknown", err)
		w.respondError(msg, "unknown", codeBadRequest, err)

		return
	}

	workflowID := event.Header.WorkflowID

	audioKey, err := w.processJob(ctx, event)
	if err != nil {
		code := codeInternal
		if errors.Is(err, core.ErrValidation) {
			code = codeBadRequest

			w.log.Warn(logFmtJobRejected, workflowID, err)
		} else {
			w.log.Error(logFmtJobFailed, workflowID, err)
		}

		w.respondError(msg, workflowID, code, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error(logFmtReplyFailed, workflowID, err)
	}
}

// processJob downloads the text, narrates it and uploads the WAV artifact.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.texts.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	w.log.Info(logFmtJobStarted, event.Header.WorkflowID, event.PageNumber, event.TotalPages, len(textData))

	request := core.TextRequest{
		Text:       string(textData),
		Annotation: w.config.Annotation,
		Synthesis:  synthesisSettings(event),
	}

	result, err := w.narrator.Narrate(ctx, request, w.progressPublisher(event))
	if err != nil {
		return "", err
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.audio.Upload(ctx, audioKey, result.Artifact.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info(logFmtJobFinished, audioKey, event.Header.WorkflowID)

	return audioKey, nil
}

// synthesisSettings maps the event's sampling fields. Fields with no counterpart in
// the synthesis backends (NGL, RepetitionPenalty) are ignored.
func synthesisSettings(event *events.TextProcessedEvent) core.SynthesisSettings {
	return core.SynthesisSettings{
		Voice:       event.Voice,
		Seed:        event.Seed,
		TopP:        event.TopP,
		Temperature: event.Temperature,
	}
}

func (w *NatsWorker) progressPublisher(event *events.TextProcessedEvent) tts.ProgressFunc {
	if w.config.ProgressSubject == "" {
		return nil
	}

	return func(progress tts.Progress) {
		data, err := json.Marshal(ProgressEvent{
			WorkflowID: event.Header.WorkflowID,
			PageNumber: event.PageNumber,
			Progress:   progress,
		})
		if err == nil {
			err = w.natsConnection.Publish(w.config.ProgressSubject, data)
		}

		if err != nil {
			w.log.Warn(logFmtProgressFail, event.Header.WorkflowID, err)
		}
	}
}

// respondError replies with an empty body and the failure in headers.
func (w *NatsWorker) respondError(msg *nats.Msg, workflowID, code string, cause error) {
	if msg.Reply == "" {
		return
	}

	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderError, cause.Error())
	reply.Header.Set(HeaderErrorCode, code)

	err := msg.RespondMsg(reply)
	if err != nil {
		w.log.Error(logFmtReplyFailed, workflowID, err)
	}
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal event: %w", core.ErrValidation, err)
	}

	if event.Header.WorkflowID == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrWorkflowIDEmpty)
	}

	if event.TextKey == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrTextKeyEmpty)
	}

	return &event, nil
}
