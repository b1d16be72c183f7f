package annotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	systemInstruction = "You insert emotion cues in parentheses into audiobook text. " +
		"You never change, remove or reorder the original words."
	probeMessage = "Reply with OK."
)

// ErrEmptyAnswer is returned when the chat model answers without content.
var ErrEmptyAnswer = errors.New("chat model returned an empty answer")

// ChatGenerator is the subset of an eino chat model used for annotation.
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatAnnotator annotates through an OpenAI-compatible chat completion endpoint.
type ChatAnnotator struct {
	generator ChatGenerator
	config    RemoteConfig
}

// NewChatAnnotator connects an eino OpenAI chat model using cfg.
func NewChatAnnotator(ctx context.Context, cfg RemoteConfig) (*ChatAnnotator, error) {
	if cfg.Model == "" {
		return nil, ErrEmptyModel
	}

	cfg = cfg.withDefaults()
	temperature := float32(cfg.Temperature)
	maxTokens := cfg.MaxOutputTokens

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Timeout:     cfg.Timeout,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Stop:        cfg.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewChatAnnotatorWithGenerator(chatModel, cfg), nil
}

// NewChatAnnotatorWithGenerator wraps an existing generator.
func NewChatAnnotatorWithGenerator(generator ChatGenerator, cfg RemoteConfig) *ChatAnnotator {
	return &ChatAnnotator{
		generator: generator,
		config:    cfg.withDefaults(),
	}
}

// Name identifies the backend in logs.
func (a *ChatAnnotator) Name() string {
	return "openai:" + a.config.Model
}

// Annotate sends the annotation prompt as a single user turn.
func (a *ChatAnnotator) Annotate(ctx context.Context, text string, intensity float64) (string, error) {
	answer, err := a.generator.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemInstruction),
		schema.UserMessage(BuildPrompt(text, intensity)),
	}, model.WithMaxTokens(a.config.numPredict(text)))
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}

	if answer == nil || answer.Content == "" {
		return "", ErrEmptyAnswer
	}

	return answer.Content, nil
}

// Probe performs a minimal completion to confirm the endpoint and credentials work.
func (a *ChatAnnotator) Probe(ctx context.Context) error {
	_, err := a.generator.Generate(ctx, []*schema.Message{
		schema.UserMessage(probeMessage),
	}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("probe failed for %s: %w", a.Name(), err)
	}

	return nil
}
