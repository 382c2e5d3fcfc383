package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tenun "github.com/antaredja/tenun"
)

// Embedding implements tenun.EmbeddingProvider against the embeddings
// endpoint of an OpenAI-compatible API.
type Embedding struct {
	apiKey  string
	model   string
	baseURL string
	dims    int
	client  *http.Client
	name    string
	logger  *slog.Logger
}

var _ tenun.EmbeddingProvider = (*Embedding)(nil)

// NewEmbedding creates an embedding provider from configuration.
// Recognized keys: "api_key", "model" (default "text-embedding-3-small"),
// "base_url" and "dimensions" (default 1536).
func NewEmbedding(cfg tenun.Config, opts ...Option) *Embedding {
	s := settings{client: &http.Client{}, name: "openai", logger: tenun.NopLogger()}
	for _, o := range opts {
		o(&s)
	}
	return &Embedding{
		apiKey:  cfg.String("api_key", ""),
		model:   cfg.String("model", defaultEmbeddingModel),
		baseURL: strings.TrimRight(cfg.String("base_url", defaultBaseURL), "/"),
		dims:    cfg.Int("dimensions", 1536),
		client:  s.client,
		name:    s.name,
		logger:  s.logger,
	}
}

// Name returns the provider name (default "openai").
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

// EmbedText embeds a single text.
func (e *Embedding) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedDocuments embeds texts in a single batched request.
func (e *Embedding) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	body := embeddingRequest{Model: e.model, Input: texts}

	p := &Provider{apiKey: e.apiKey, baseURL: e.baseURL, client: e.client, name: e.name}
	resp, err := p.sendHTTP(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.httpErr(resp)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &tenun.ErrLLM{Provider: e.name, Message: fmt.Sprintf("decode embeddings: %v", err)}
	}
	if len(embResp.Data) != len(texts) {
		return nil, &tenun.ErrLLM{
			Provider: e.name,
			Message:  fmt.Sprintf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(embResp.Data)),
		}
	}

	// The API may return vectors out of order; the index field is
	// authoritative.
	out := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &tenun.ErrLLM{Provider: e.name, Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}
