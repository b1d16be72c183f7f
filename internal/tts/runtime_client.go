package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
)

// Model runtime endpoints.
const (
	apiTokenize = "/v1/tokenize"
	apiGenerate = "/v1/generate"
	apiDecode   = "/v1/decode"
)

const (
	contentTypeNDJSON = "application/x-ndjson"
	maxStreamLine     = 1 << 20
)

// ErrStreamIncomplete is returned when a token stream ends without a done frame.
var ErrStreamIncomplete = errors.New("token stream ended before completion")

type tokenizeRequest struct {
	Text string `json:"text"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// generateFrame is one line of the NDJSON token stream.
type generateFrame struct {
	Token *int   `json:"token,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

type decodeRequest struct {
	Tokens []int `json:"tokens"`
}

// RuntimeClient talks to a model runtime serving an audio-token model over HTTP. Token
// generation is streamed as newline-delimited JSON frames.
type RuntimeClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewRuntimeClient creates a client for the runtime at baseURL. The timeout bounds each
// request including the full token stream.
func NewRuntimeClient(baseURL string, timeout time.Duration) *RuntimeClient {
	return &RuntimeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Tokenize converts text to prompt tokens.
func (c *RuntimeClient) Tokenize(ctx context.Context, input string) ([]int, error) {
	var response tokenizeResponse

	err := c.postJSON(ctx, apiTokenize, tokenizeRequest{Text: input}, &response)
	if err != nil {
		return nil, err
	}

	return response.Tokens, nil
}

// Generate streams generated tokens to emit. An emit error aborts the stream.
func (c *RuntimeClient) Generate(ctx context.Context, params GenerateParams, emit func(token int) error) error {
	resp, err := c.post(ctx, apiGenerate, params, contentTypeNDJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame generateFrame

		unmarshalErr := json.Unmarshal(line, &frame)
		if unmarshalErr != nil {
			return fmt.Errorf("failed to parse stream frame: %w", unmarshalErr)
		}

		switch {
		case frame.Error != "":
			return fmt.Errorf("runtime error: %s", frame.Error)
		case frame.Done:
			return nil
		case frame.Token != nil:
			emitErr := emit(*frame.Token)
			if emitErr != nil {
				return emitErr
			}
		}
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return fmt.Errorf("failed to read token stream: %w", scanErr)
	}

	return ErrStreamIncomplete
}

// Decode converts audio tokens into a waveform. The runtime answers with a WAV body.
func (c *RuntimeClient) Decode(ctx context.Context, tokens []int) (core.Waveform, error) {
	resp, err := c.post(ctx, apiDecode, decodeRequest{Tokens: tokens}, contentTypeWAV)
	if err != nil {
		return core.Waveform{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("failed to read decoded audio: %w", err)
	}

	return audio.DecodeWAV(data)
}

// Health checks the runtime health endpoint.
func (c *RuntimeClient) Health(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL)
}

func (c *RuntimeClient) postJSON(ctx context.Context, path string, payload, target any) error {
	resp, err := c.post(ctx, path, payload, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	decodeErr := json.NewDecoder(resp.Body).Decode(target)
	if decodeErr != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, decodeErr)
	}

	return nil
}

// post sends payload as JSON and returns a 200 response. The caller closes the body.
func (c *RuntimeClient) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to model runtime at %s: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp, nil
}
