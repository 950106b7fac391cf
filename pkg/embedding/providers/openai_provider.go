package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIProvider implements Provider against an OpenAI-compatible
// embeddings endpoint. Any service exposing POST {base_url}/embeddings
// with the OpenAI wire format works, which covers the hosted API as well
// as self-hosted inference gateways.
type OpenAIProvider struct {
	config     ProviderConfig
	httpClient *http.Client
}

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIProvider creates a new OpenAI-compatible provider
func NewOpenAIProvider(config ProviderConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.Dimensions <= 0 {
		return nil, errors.New("openai: dimensions must be positive")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &OpenAIProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string { return "openai" }

// Dimensions returns the configured output dimensionality
func (p *OpenAIProvider) Dimensions() int { return p.config.Dimensions }

// Embed generates embeddings for the given texts in one batched API call
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	dims := p.config.Dimensions
	reqBody := openAIRequest{
		Input:      texts,
		Model:      p.config.Model,
		Dimensions: &dims,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("openai: request deadline exceeded: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("openai: request failed: %v: %w", err, ErrUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to read response: %v: %w", err, ErrUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr openAIErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("openai: status %d (%s): %w", resp.StatusCode, apiErr.Error.Message, ErrUnavailable)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openai: malformed response: %v: %w", err, ErrUnavailable)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d: %w", len(texts), len(parsed.Data), ErrUnavailable)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range: %w", d.Index, ErrUnavailable)
		}
		if len(d.Embedding) != p.config.Dimensions {
			return nil, fmt.Errorf("openai: embedding has %d dimensions, expected %d: %w",
				len(d.Embedding), p.config.Dimensions, ErrUnavailable)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("openai: missing embedding for input %d: %w", i, ErrUnavailable)
		}
	}

	return vectors, nil
}

// Close implements Provider.Close
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
