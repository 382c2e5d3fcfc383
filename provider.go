package tenun

import "context"

// LLMProvider abstracts a chat-completion model.
type LLMProvider interface {
	// Generate produces a completion for the given conversation. settings
	// is passed through to the backend opaquely (temperature, max_tokens,
	// and so on); unknown keys are ignored.
	Generate(ctx context.Context, messages []ChatMessage, settings Config) (LLMResponse, error)

	// GenerateStream streams response text into ch as it arrives, then
	// returns the final accumulated response. The channel is closed when
	// streaming completes or fails.
	GenerateStream(ctx context.Context, messages []ChatMessage, settings Config, ch chan<- string) (LLMResponse, error)

	// CountTokens estimates the token count of text. Implementations may
	// use a heuristic.
	CountTokens(text string) int

	Name() string
}

// EmbeddingProvider abstracts a text-embedding model.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}
