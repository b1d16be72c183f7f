package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API endpoints.
const (
	apiGenerate = "/api/generate"
	apiTags     = "/api/tags"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	// DefaultTimeout bounds a single remote annotation call.
	DefaultTimeout = 30 * time.Second
	// DefaultTemperature keeps remote annotation close to the source text.
	DefaultTemperature = 0.3
	// DefaultMaxOutputTokens caps the model answer.
	DefaultMaxOutputTokens = 150

	outputTokenHeadroom = 50
)

// DefaultStopSequences end generation before the model starts commenting.
func DefaultStopSequences() []string {
	return []string{"\n", "Text:", "Original:", "Note:"}
}

const (
	errFmtStatus = "annotation service returned non-OK status: %s, body: %s"
)

// ErrEmptyModel is returned when a remote annotator is built without a model name.
var ErrEmptyModel = errors.New("model name cannot be empty")

// GenerateOptions are the sampling options sent with each generate request.
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	Stop        []string `json:"stop,omitempty"`
}

// GenerateRequest is the non-streaming request body of the generate endpoint.
type GenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

// GenerateResponse carries the generated text.
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// RemoteConfig configures a remote language model annotator.
type RemoteConfig struct {
	BaseURL         string
	Model           string
	APIKey          string
	Timeout         time.Duration
	Temperature     float64
	MaxOutputTokens int
	Stop            []string
}

func (c RemoteConfig) withDefaults() RemoteConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}

	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}

	if c.Stop == nil {
		c.Stop = DefaultStopSequences()
	}

	return c
}

// numPredict bounds output tokens to the input length plus headroom.
func (c RemoteConfig) numPredict(text string) int {
	return min(len(text)+outputTokenHeadroom, c.MaxOutputTokens)
}

// OllamaAnnotator calls an Ollama-compatible generate endpoint.
type OllamaAnnotator struct {
	httpClient *http.Client
	config     RemoteConfig
}

// NewOllamaAnnotator creates an annotator for the server at cfg.BaseURL.
func NewOllamaAnnotator(cfg RemoteConfig) (*OllamaAnnotator, error) {
	if cfg.Model == "" {
		return nil, ErrEmptyModel
	}

	cfg = cfg.withDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OllamaAnnotator{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}, nil
}

// Name identifies the backend in logs.
func (a *OllamaAnnotator) Name() string {
	return "ollama:" + a.config.Model
}

// Annotate asks the model to add emotion cues to text. The raw answer is returned;
// cleanup and acceptance are the engine's job.
func (a *OllamaAnnotator) Annotate(ctx context.Context, text string, intensity float64) (string, error) {
	payload := GenerateRequest{
		Model:  a.config.Model,
		Prompt: BuildPrompt(text, intensity),
		Stream: false,
		Options: GenerateOptions{
			Temperature: a.config.Temperature,
			NumPredict:  a.config.numPredict(text),
			Stop:        a.config.Stop,
		},
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.config.BaseURL+apiGenerate,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request to %s: %w", a.config.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return "", fmt.Errorf(errFmtStatus, resp.Status, string(body))
	}

	var result GenerateResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return result.Response, nil
}

// Probe checks that the server answers and lists models.
func (a *OllamaAnnotator) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+apiTags, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed for %s: %w", a.config.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe failed with status: %s", resp.Status)
	}

	return nil
}
