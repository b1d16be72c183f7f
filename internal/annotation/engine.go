package annotation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/text"
)

// MinAcceptedRatio is the minimum length of remote output relative to its input.
const MinAcceptedRatio = 0.8

const (
	logFmtRemoteFailed   = "Remote annotation via %s failed, using rules: %v"
	logFmtRemoteRejected = "Remote annotation via %s rejected, using rules: %v"
	logFmtProbeFailed    = "Remote annotator %s is unreachable, running rule-based only: %v"
	logFmtProbeOK        = "Remote annotator %s is available"
	logFmtChunked        = "Annotating %d characters in %d chunks"
	errFmtShortOutput    = "%w: output has %d characters, need at least %d"
	errFmtEmptyOutput    = "%w: output is empty"
)

// Annotator is a remote annotation backend. It returns the raw model answer.
type Annotator interface {
	Name() string
	Annotate(ctx context.Context, text string, intensity float64) (string, error)
}

// Prober is implemented by annotators that can check reachability up front.
type Prober interface {
	Probe(ctx context.Context) error
}

// EngineConfig tunes chunking, concurrency and the remote call bound.
type EngineConfig struct {
	ChunkThreshold int
	Workers        int
	Timeout        time.Duration
}

// Engine runs the annotation fallback chain: the remote annotator when present and
// accepted, otherwise the RuleSet.
type Engine struct {
	remote Annotator
	rules  *RuleSet
	config EngineConfig
	logger *logger.Logger
}

// ProbeRemote returns remote when it is reachable and nil otherwise. A nil result
// means the engine runs rule-based only.
func ProbeRemote(ctx context.Context, remote Annotator, log *logger.Logger) Annotator {
	if remote == nil {
		return nil
	}

	prober, ok := remote.(Prober)
	if !ok {
		return remote
	}

	probeErr := prober.Probe(ctx)
	if probeErr != nil {
		log.Warn(logFmtProbeFailed, remote.Name(), probeErr)

		return nil
	}

	log.System(logFmtProbeOK, remote.Name())

	return remote
}

// NewEngine creates an engine. remote may be nil.
func NewEngine(cfg EngineConfig, remote Annotator, rules *RuleSet, log *logger.Logger) *Engine {
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = text.DefaultChunkLength
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if rules == nil {
		rules = NewRuleSet(nil)
	}

	return &Engine{
		remote: remote,
		rules:  rules,
		config: cfg,
		logger: log,
	}
}

// RemoteAvailable reports whether a remote annotator is configured.
func (e *Engine) RemoteAvailable() bool {
	return e.remote != nil
}

// Annotate enriches input according to settings. Only validation errors are returned;
// every backend failure falls back to the rule set.
func (e *Engine) Annotate(ctx context.Context, input string, settings core.AnnotationSettings) (core.AnnotationResult, error) {
	validateErr := core.ValidateText(input)
	if validateErr != nil {
		return core.AnnotationResult{}, validateErr
	}

	settingsErr := core.ValidateAnnotationSettings(settings)
	if settingsErr != nil {
		return core.AnnotationResult{}, settingsErr
	}

	result := core.AnnotationResult{
		Original:    input,
		Annotated:   input,
		BackendUsed: core.BackendRuleBased,
		Chunks:      0,
		Settings:    settings,
	}

	if settings.AddEmotions {
		chunks := e.split(input)
		annotated, backend := e.annotateChunks(ctx, chunks, settings.EmotionIntensity)

		result.Annotated = annotated
		result.BackendUsed = backend
		result.Chunks = len(chunks)
	}

	if settings.AddPauses {
		result.Annotated = InsertPauses(result.Annotated, true, true)
	}

	return result, nil
}

func (e *Engine) split(input string) []string {
	if text.RuneLen(input) <= e.config.ChunkThreshold {
		return []string{input}
	}

	chunks := text.SplitChunks(input, e.config.ChunkThreshold)
	e.logger.Info(logFmtChunked, text.RuneLen(input), len(chunks))

	return chunks
}

// annotateChunks annotates chunks on a bounded pool and rejoins them in order. The
// backend is remote only when every chunk was accepted from the remote annotator.
func (e *Engine) annotateChunks(ctx context.Context, chunks []string, intensity float64) (string, core.BackendKind) {
	if len(chunks) == 1 {
		annotated, backend := e.annotateChunk(ctx, chunks[0], intensity)

		return annotated, backend
	}

	var waitGroup sync.WaitGroup

	results := make([]string, len(chunks))
	backends := make([]core.BackendKind, len(chunks))
	workerPool := make(chan struct{}, e.config.Workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, segment string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			results[index], backends[index] = e.annotateChunk(ctx, segment, intensity)
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()

	backend := core.BackendRemoteModel
	for _, used := range backends {
		if used != core.BackendRemoteModel {
			backend = core.BackendRuleBased

			break
		}
	}

	return text.JoinChunks(results), backend
}

func (e *Engine) annotateChunk(ctx context.Context, chunk string, intensity float64) (string, core.BackendKind) {
	if e.remote == nil {
		return e.rules.Apply(chunk, intensity), core.BackendRuleBased
	}

	remoteCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	answer, remoteErr := e.remote.Annotate(remoteCtx, chunk, intensity)
	if remoteErr != nil {
		e.logger.Warn(logFmtRemoteFailed, e.remote.Name(), remoteErr)

		return e.rules.Apply(chunk, intensity), core.BackendRuleBased
	}

	cleaned := CleanResponse(answer, chunk)

	acceptErr := accept(cleaned, chunk)
	if acceptErr != nil {
		e.logger.Warn(logFmtRemoteRejected, e.remote.Name(), acceptErr)

		return e.rules.Apply(chunk, intensity), core.BackendRuleBased
	}

	return cleaned, core.BackendRemoteModel
}

// accept enforces the acceptance criteria for remote output.
func accept(annotated, original string) error {
	if annotated == "" {
		return fmt.Errorf(errFmtEmptyOutput, core.ErrBackendDegradedOutput)
	}

	have := text.RuneLen(annotated)
	need := MinAcceptedRatio * float64(text.RuneLen(original))

	if float64(have) < need {
		return fmt.Errorf(errFmtShortOutput, core.ErrBackendDegradedOutput, have, int(math.Ceil(need)))
	}

	return nil
}
