package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/book-expert/narration-service/internal/tts/text"
)

// Token budget and sampling defaults for dialogue token models.
const (
	DefaultTokensPerChar = 25
	DefaultMinTokens     = 1536
	DefaultMaxTokens     = 3072
	DefaultProgressEvery = 50
	DefaultGuidanceScale = 3.0
	DefaultTemperature   = 1.8
	DefaultTopP          = 0.90
	DefaultTopK          = 45
)

// Static errors.
var (
	ErrNoTokens       = errors.New("model generated no tokens")
	ErrEmptyPrompt    = errors.New("tokenizer returned no tokens")
	ErrEmptyWaveform  = errors.New("backend returned an empty waveform")
	ErrBadSampleRate  = errors.New("backend returned a non-positive sample rate")
	ErrBudgetExceeded = errors.New("model exceeded the token budget")
)

const errFmtStage = "%w: %s: %w"

// GenerateParams are the sampling inputs of one token generation.
type GenerateParams struct {
	PromptTokens  []int   `json:"prompt_tokens"`
	MaxNewTokens  int     `json:"max_new_tokens"`
	GuidanceScale float64 `json:"guidance_scale"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	Seed          int     `json:"seed,omitempty"`
}

// TokenModel is an audio-token language model with its codec.
type TokenModel interface {
	Tokenize(ctx context.Context, input string) ([]int, error)
	// Generate calls emit once per generated token, in order.
	Generate(ctx context.Context, params GenerateParams, emit func(token int) error) error
	Decode(ctx context.Context, tokens []int) (core.Waveform, error)
	Health(ctx context.Context) error
}

// TokenConfig tunes budgeting, progress cadence and sampling.
type TokenConfig struct {
	Name          string
	SampleRate    int
	TokensPerChar int
	MinTokens     int
	MaxTokens     int
	ProgressEvery int
	GuidanceScale float64
	Temperature   float64
	TopP          float64
	TopK          int
	// SpeakerTags is set for dialogue models conditioned on [S1]/[S2] turns.
	SpeakerTags bool
}

func (c TokenConfig) withDefaults() TokenConfig {
	if c.Name == "" {
		c.Name = "token-model"
	}

	if c.SampleRate <= 0 {
		c.SampleRate = audio.DEFAULT_SAMPLE_RATE
	}

	if c.TokensPerChar <= 0 {
		c.TokensPerChar = DefaultTokensPerChar
	}

	if c.MinTokens <= 0 {
		c.MinTokens = DefaultMinTokens
	}

	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}

	c.MaxTokens = max(c.MaxTokens, c.MinTokens)

	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}

	if c.GuidanceScale <= 0 {
		c.GuidanceScale = DefaultGuidanceScale
	}

	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}

	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}

	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}

	return c
}

// TokenBudget returns clamp(charCount*ratio, minTokens, maxTokens).
func TokenBudget(charCount, ratio, minTokens, maxTokens int) int {
	return min(max(charCount*ratio, minTokens), maxTokens)
}

// TokenBackend drives a TokenModel through tokenize, budgeted generation and decode.
type TokenBackend struct {
	model  TokenModel
	config TokenConfig
	now    func() time.Time
}

// NewTokenBackend creates a backend over model.
func NewTokenBackend(model TokenModel, cfg TokenConfig) *TokenBackend {
	return &TokenBackend{
		model:  model,
		config: cfg.withDefaults(),
		now:    time.Now,
	}
}

// Info reports the backend capabilities.
func (b *TokenBackend) Info() BackendInfo {
	return BackendInfo{
		Name:                b.config.Name,
		Family:              FamilyToken,
		SampleRate:          b.config.SampleRate,
		RequiresSpeakerTags: b.config.SpeakerTags,
	}
}

// Budget is the adaptive token budget for input.
func (b *TokenBackend) Budget(input string) int {
	return TokenBudget(text.RuneLen(input), b.config.TokensPerChar, b.config.MinTokens, b.config.MaxTokens)
}

// Synthesize tokenizes input, generates within the budget and decodes the result.
// Guidance comes from configuration; the request's sampling knobs override the rest.
func (b *TokenBackend) Synthesize(
	ctx context.Context,
	input string,
	params Params,
	progress ProgressFunc,
) (core.Waveform, error) {
	promptTokens, err := b.model.Tokenize(ctx, input)
	if err != nil {
		return core.Waveform{}, fmt.Errorf(errFmtStage, core.ErrGenerationFailed, "tokenize", err)
	}

	if len(promptTokens) == 0 {
		return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrGenerationFailed, ErrEmptyPrompt)
	}

	generateParams := b.generateParams(promptTokens, b.Budget(input), params)

	tokens, err := b.generate(ctx, generateParams, progress)
	if err != nil {
		return core.Waveform{}, fmt.Errorf(errFmtStage, core.ErrGenerationFailed, "generate", err)
	}

	waveform, err := b.model.Decode(ctx, tokens)
	if err != nil {
		return core.Waveform{}, fmt.Errorf(errFmtStage, core.ErrGenerationFailed, "decode", err)
	}

	if waveform.SampleRate <= 0 {
		waveform.SampleRate = b.config.SampleRate
	}

	return checkWaveform(waveform)
}

// Health delegates to the model.
func (b *TokenBackend) Health(ctx context.Context) error {
	return b.model.Health(ctx)
}

// Close releases nothing; the model runtime owns its resources.
func (b *TokenBackend) Close() error {
	return nil
}

func (b *TokenBackend) generateParams(promptTokens []int, budget int, params Params) GenerateParams {
	generateParams := GenerateParams{
		PromptTokens:  promptTokens,
		MaxNewTokens:  budget,
		GuidanceScale: b.config.GuidanceScale,
		Temperature:   b.config.Temperature,
		TopP:          b.config.TopP,
		TopK:          b.config.TopK,
		Seed:          params.Seed,
	}

	if params.Temperature > 0 {
		generateParams.Temperature = params.Temperature
	}

	if params.TopP > 0 {
		generateParams.TopP = params.TopP
	}

	if params.TopK > 0 {
		generateParams.TopK = params.TopK
	}

	return generateParams
}

// generate collects tokens and fires progress every ProgressEvery tokens. The observer
// is a plain parameter, so nothing about the model changes for the duration of the call.
func (b *TokenBackend) generate(ctx context.Context, params GenerateParams, progress ProgressFunc) ([]int, error) {
	tokens := make([]int, 0, params.MaxNewTokens)
	started := b.now()

	emit := func(token int) error {
		if len(tokens) >= params.MaxNewTokens {
			return ErrBudgetExceeded
		}

		tokens = append(tokens, token)

		if progress != nil && len(tokens)%b.config.ProgressEvery == 0 {
			progress(newProgress(len(tokens), params.MaxNewTokens, b.now().Sub(started)))
		}

		return nil
	}

	err := b.model.Generate(ctx, params, emit)
	if err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	return tokens, nil
}

// checkWaveform enforces the post-conditions shared by every backend.
func checkWaveform(waveform core.Waveform) (core.Waveform, error) {
	if len(waveform.Samples) == 0 {
		return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrGenerationFailed, ErrEmptyWaveform)
	}

	if waveform.SampleRate <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrGenerationFailed, ErrBadSampleRate)
	}

	return waveform, nil
}
