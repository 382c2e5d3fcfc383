package tenun

import "time"

// --- Conversation types ---

// ChatMessage is a single message in a conversation. The same shape is used
// for stored history and for the LLM wire protocol.
type ChatMessage struct {
	Role      string         `json:"role"` // "system", "user", "assistant"
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session describes one conversation held by a memory backend.
type Session struct {
	ID           string         `json:"session_id"`
	AgentType    string         `json:"agent_type"`
	UserID       string         `json:"user_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActive   time.Time      `json:"last_active"`
	MessageCount int            `json:"message_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// --- Agent response types ---

// AgentResponse is the result of one agent turn.
type AgentResponse struct {
	Content   string         `json:"response"`
	Sources   []Source       `json:"sources"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// Source attributes part of a response to a retrieved document.
// Content holds a preview, not the full document text.
type Source struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
	URL      string         `json:"url,omitempty"`
	Title    string         `json:"title,omitempty"`
}

// RetrievedContext is the retrieval bundle assembled for a single turn.
// It is transient and never persisted.
type RetrievedContext struct {
	Context    string   `json:"context"`
	Sources    []Source `json:"sources"`
	NumSources int      `json:"num_sources"`
}

// --- Storage types ---

// Document is a unit of content held by a vector store.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// StoredDocument is a document-store record. ContentHash is the SHA-256 of
// the content, used for deduplication.
type StoredDocument struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	FilePath    string         `json:"file_path,omitempty"`
	ContentHash string         `json:"content_hash"`
	CreatedAt   time.Time      `json:"created_at"`
}

// --- LLM types ---

// LLMResponse is a completed generation from an LLM provider.
type LLMResponse struct {
	Content  string         `json:"content"`
	Model    string         `json:"model"`
	Usage    Usage          `json:"usage"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text, Timestamp: time.Now()}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text, Timestamp: time.Now()}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text, Timestamp: time.Now()}
}
