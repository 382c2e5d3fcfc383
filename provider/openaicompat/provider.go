// Package openaicompat implements tenun.LLMProvider and
// tenun.EmbeddingProvider for any OpenAI-compatible API.
//
// Works with OpenAI, OpenRouter, Groq, Together, Fireworks, DeepSeek,
// Mistral, Ollama, vLLM, LM Studio, Azure OpenAI, and any other provider
// that implements the OpenAI chat completions and embeddings APIs.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	tenun "github.com/antaredja/tenun"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// Option configures a Provider or an Embedding.
type Option func(*settings)

type settings struct {
	client *http.Client
	name   string
	logger *slog.Logger
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithName overrides the provider name reported in errors and metadata.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// Provider implements tenun.LLMProvider against the chat completions
// endpoint of an OpenAI-compatible API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	logger  *slog.Logger
}

var _ tenun.LLMProvider = (*Provider)(nil)

// New creates a chat provider from configuration. Recognized keys:
// "api_key", "model" (default "gpt-4o-mini") and "base_url" (default
// "https://api.openai.com/v1"). The /chat/completions path is appended
// automatically.
func New(cfg tenun.Config, opts ...Option) *Provider {
	s := settings{client: &http.Client{}, name: "openai", logger: tenun.NopLogger()}
	for _, o := range opts {
		o(&s)
	}
	return &Provider{
		apiKey:  cfg.String("api_key", ""),
		model:   cfg.String("model", defaultModel),
		baseURL: strings.TrimRight(cfg.String("base_url", defaultBaseURL), "/"),
		client:  s.client,
		name:    s.name,
		logger:  s.logger,
	}
}

// Name returns the provider name (default "openai").
func (p *Provider) Name() string { return p.name }

// CountTokens estimates the token count of text. OpenAI-compatible APIs
// expose no local tokenizer, so this uses the common four-characters-per-
// token approximation.
func (p *Provider) CountTokens(text string) int {
	return len(text) / 4
}

// Generate sends a non-streaming chat request and returns the complete
// response. Settings override provider defaults per request: "model",
// "temperature", "max_tokens" and "top_p" are recognized.
func (p *Provider) Generate(ctx context.Context, messages []tenun.ChatMessage, settings tenun.Config) (tenun.LLMResponse, error) {
	body := p.buildBody(messages, settings)

	resp, err := p.sendHTTP(ctx, "/chat/completions", body)
	if err != nil {
		return tenun.LLMResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tenun.LLMResponse{}, p.httpErr(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return tenun.LLMResponse{}, &tenun.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(chatResp.Choices) == 0 {
		return tenun.LLMResponse{}, &tenun.ErrLLM{Provider: p.name, Message: "response contains no choices"}
	}

	out := tenun.LLMResponse{
		Content: chatResp.Choices[0].Message.Content,
		Model:   chatResp.Model,
	}
	if out.Model == "" {
		out.Model = body.Model
	}
	if chatResp.Usage != nil {
		out.Usage = tenun.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// GenerateStream streams text deltas into ch and returns the accumulated
// response. The channel is closed when streaming completes or on error.
func (p *Provider) GenerateStream(ctx context.Context, messages []tenun.ChatMessage, settings tenun.Config, ch chan<- string) (tenun.LLMResponse, error) {
	body := p.buildBody(messages, settings)
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := p.sendHTTP(ctx, "/chat/completions", body)
	if err != nil {
		close(ch)
		return tenun.LLMResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return tenun.LLMResponse{}, p.httpErr(resp)
	}

	return p.streamSSE(ctx, resp.Body, body.Model, ch)
}

// streamSSE reads an SSE stream, forwards text deltas to ch, and returns
// the fully accumulated response. Closes ch when done.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func (p *Provider) streamSSE(ctx context.Context, body io.Reader, model string, ch chan<- string) (tenun.LLMResponse, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var full strings.Builder
	var usage tenun.Usage

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		// Usage-only chunk (some providers send this last).
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}

		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			select {
			case ch <- delta:
			case <-ctx.Done():
				return tenun.LLMResponse{}, ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return tenun.LLMResponse{}, &tenun.ErrLLM{Provider: p.name, Message: fmt.Sprintf("read stream: %v", err)}
	}

	return tenun.LLMResponse{Content: full.String(), Model: model, Usage: usage}, nil
}

// buildBody merges per-request settings over the provider defaults.
func (p *Provider) buildBody(messages []tenun.ChatMessage, settings tenun.Config) chatRequest {
	body := chatRequest{Model: p.model}
	for _, m := range messages {
		body.Messages = append(body.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	if settings == nil {
		return body
	}
	if model := settings.String("model", ""); model != "" {
		body.Model = model
	}
	if _, ok := settings["temperature"]; ok {
		t := settings.Float("temperature", 0)
		body.Temperature = &t
	}
	if _, ok := settings["top_p"]; ok {
		t := settings.Float("top_p", 0)
		body.TopP = &t
	}
	if maxTokens := settings.Int("max_tokens", 0); maxTokens > 0 {
		body.MaxTokens = &maxTokens
	}
	return body
}

// sendHTTP marshals body and posts it to the given API path.
func (p *Provider) sendHTTP(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &tenun.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &tenun.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	return p.client.Do(httpReq)
}

// httpErr reads the response body and returns an ErrHTTP.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &tenun.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
}

// Wire types for the chat completions endpoint.

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []choice   `json:"choices"`
	Usage   *wireUsage `json:"usage"`
}

type choice struct {
	Message      wireMessage  `json:"message"`
	Delta        *wireMessage `json:"delta"`
	FinishReason string       `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
