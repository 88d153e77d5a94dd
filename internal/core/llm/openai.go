package llm

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

// OpenAI talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, DeepSeek, OpenRouter, vLLM, Ollama and so on).
type OpenAI struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

type OpenAIConfig struct {
	Endpoint   string // base URL, e.g. https://api.deepseek.com/v1
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("llm/openai: endpoint is empty")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAI{
		endpoint: strings.TrimRight(cfg.Endpoint, "/") + "/chat/completions",
		apiKey:   cfg.APIKey,
		http:     client,
	}, nil
}

func (p *OpenAI) Name() string { return "openai" }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	wire := openaiRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	wire.Messages = append(wire.Messages, openaiMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("llm/openai: marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm/openai: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &BackendError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &BackendError{Provider: p.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, &BackendError{Provider: p.Name(), Err: errors.New("response has no content")}
	}
	return &Response{Text: out.Choices[0].Message.Content, Model: out.Model}, nil
}
