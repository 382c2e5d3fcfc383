package tenun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultTopK                = 5
	defaultSimilarityThreshold = 0.7
	defaultMaxHistoryMessages  = 10

	// generateFallback is returned when the LLM provider fails.
	generateFallback = "I apologize, but I'm having trouble generating a response right now. Please try again."
	// turnFallback is returned when the turn itself fails unexpectedly.
	turnFallback = "I apologize, but I encountered an error processing your request. Please try again."
)

// QueryRequest carries one user query into ProcessQuery.
type QueryRequest struct {
	Query     string
	SessionID string // empty means start a new session
	UserID    string
	Context   map[string]any // additional per-request context for the prompt
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets a structured logger for the agent. If not set, no logs
// are emitted.
func WithLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// WithPromptBuilder sets the system-prompt strategy for this agent type.
func WithPromptBuilder(b PromptBuilder) AgentOption {
	return func(a *Agent) { a.prompt = b }
}

// Agent orchestrates one retrieval-augmented generation pipeline: history
// load, context retrieval, LLM generation, and conversation persistence.
// Per-turn state is local, so a single Agent is safe for concurrent use as
// long as its components are.
type Agent struct {
	agentType string
	cfg       Config // the "agents.<type>" section

	vectors  VectorStore
	docs     DocumentStore
	memory   MemoryBackend
	llm      LLMProvider
	embedder EmbeddingProvider
	tools    *ToolRegistry

	prompt PromptBuilder
	logger *slog.Logger
}

// New builds an agent of the given type, resolving every component through
// the catalog from the corresponding config sections. The embedding
// provider is created first because the vector store depends on it. Any
// component failure aborts construction.
func New(ctx context.Context, agentType string, provider ConfigProvider, catalog *Catalog, opts ...AgentOption) (*Agent, error) {
	a := &Agent{
		agentType: agentType,
		cfg:       provider.GetSection("agents." + agentType),
		prompt:    DefaultPromptBuilder,
		logger:    NopLogger(),
	}
	for _, o := range opts {
		o(a)
	}

	var err error
	a.embedder, err = catalog.CreateEmbeddingProvider(provider.GetSection("embedding"))
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	a.vectors, err = catalog.CreateVectorStore(provider.GetSection("vector_store"), a.embedder)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	a.docs, err = catalog.CreateDocumentStore(provider.GetSection("document_store"))
	if err != nil {
		return nil, fmt.Errorf("create document store: %w", err)
	}
	a.memory, err = catalog.CreateMemoryBackend(provider.GetSection("memory"))
	if err != nil {
		return nil, fmt.Errorf("create memory backend: %w", err)
	}
	a.llm, err = catalog.CreateLLMProvider(provider.GetSection("llm"))
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}

	// Tools resolve leniently: a bad tool entry is skipped, never fatal.
	var toolCfgs []Config
	for _, name := range a.cfg.StringSlice("tools") {
		tc := provider.GetSection("tools." + name)
		tc["type"] = name
		toolCfgs = append(toolCfgs, tc)
	}
	a.tools = catalog.CreateToolRegistry(ctx, toolCfgs)

	a.logger.InfoContext(ctx, "agent initialized", "agent_type", agentType, "tools", len(a.tools.List()))
	return a, nil
}

// Type returns the agent type identifier.
func (a *Agent) Type() string { return a.agentType }

// ProcessQuery runs one conversational turn. It never returns an error:
// every internal failure degrades to an apologetic response so one bad
// component cannot take down the conversation surface.
func (a *Agent) ProcessQuery(ctx context.Context, req QueryRequest) (resp AgentResponse) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = NewSessionID(a.agentType)
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "query processing panicked", "agent_type", a.agentType, "panic", r)
			resp = AgentResponse{
				Content:   turnFallback,
				Sources:   []Source{},
				Metadata:  map[string]any{"error": fmt.Sprint(r), "agent_type": a.agentType},
				SessionID: sessionID,
				Timestamp: time.Now(),
			}
		}
	}()

	history := a.loadHistory(ctx, sessionID)
	retrieved := a.retrieveContext(ctx, req.Query)
	llmResp := a.generateResponse(ctx, req.Query, history, retrieved, req.Context)
	a.saveTurn(ctx, sessionID, req.Query, llmResp.Content, req.UserID)

	return AgentResponse{
		Content: llmResp.Content,
		Sources: retrieved.Sources,
		Metadata: map[string]any{
			"model":           llmResp.Model,
			"usage":           llmResp.Usage,
			"context_sources": len(retrieved.Sources),
			"agent_type":      a.agentType,
		},
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// loadHistory returns the session's messages, or empty on any failure.
func (a *Agent) loadHistory(ctx context.Context, sessionID string) []ChatMessage {
	messages, ok, err := a.memory.LoadSession(ctx, sessionID)
	if err != nil {
		// degrade gracefully
		a.logger.WarnContext(ctx, "failed to load conversation history", "session_id", sessionID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return messages
}

// retrieveContext searches the knowledge base and assembles the retrieval
// bundle for this turn. Any failure yields an empty bundle.
func (a *Agent) retrieveContext(ctx context.Context, query string) RetrievedContext {
	rag := a.cfg.Sub("rag_settings")
	topK := rag.Int("top_k", defaultTopK)
	threshold := rag.Float("similarity_threshold", defaultSimilarityThreshold)

	results, err := a.vectors.SimilaritySearch(ctx, query, topK, map[string]string{"agent_type": a.agentType})
	if err != nil {
		// degrade gracefully
		a.logger.WarnContext(ctx, "failed to retrieve context", "agent_type", a.agentType, "error", err)
		return RetrievedContext{Sources: []Source{}}
	}

	var contextParts []string
	sources := []Source{}
	for _, r := range results {
		if r.Score < threshold { // boundary score passes
			continue
		}
		contextParts = append(contextParts, r.Document.Content)

		src := Source{
			Content:  previewContent(r.Document.Content),
			Score:    r.Score,
			Metadata: r.Document.Metadata,
		}
		if url, ok := r.Document.Metadata["source_url"].(string); ok {
			src.URL = url
			src.Title = "Web Document"
			if t, ok := r.Document.Metadata["original_title"].(string); ok {
				src.Title = t
			}
		}
		sources = append(sources, src)
	}

	return RetrievedContext{
		Context:    strings.Join(contextParts, "\n\n"),
		Sources:    sources,
		NumSources: len(sources),
	}
}

// generateResponse builds the LLM message list and calls the provider.
// Provider failure yields a fixed fallback response with Model "fallback".
func (a *Agent) generateResponse(ctx context.Context, query string, history []ChatMessage, retrieved RetrievedContext, reqContext map[string]any) LLMResponse {
	systemPrompt := a.prompt(PromptInput{
		SystemPrompt: a.cfg.String("system_prompt", ""),
		Tools:        a.tools.List(),
		Retrieved:    retrieved,
		Request:      reqContext,
	})

	messages := []ChatMessage{SystemMessage(systemPrompt)}

	maxHistory := a.cfg.Int("max_history_messages", defaultMaxHistoryMessages)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	for _, msg := range history {
		// System and tool messages from storage are not replayed.
		if msg.Role == "user" || msg.Role == "assistant" {
			messages = append(messages, ChatMessage{Role: msg.Role, Content: msg.Content})
		}
	}
	messages = append(messages, UserMessage(query))

	resp, err := a.llm.Generate(ctx, messages, a.cfg.Sub("llm_settings"))
	if err != nil {
		// degrade gracefully
		a.logger.ErrorContext(ctx, "failed to generate response", "agent_type", a.agentType, "error", err)
		return LLMResponse{
			Content:  generateFallback,
			Model:    "fallback",
			Metadata: map[string]any{"error": err.Error()},
		}
	}
	return resp
}

// saveTurn appends the user and assistant messages with a shared timestamp.
// Persistence failure is logged, never surfaced.
func (a *Agent) saveTurn(ctx context.Context, sessionID, userText, assistantText, userID string) {
	now := time.Now()
	userMsg := ChatMessage{Role: "user", Content: userText, Timestamp: now}
	assistantMsg := ChatMessage{Role: "assistant", Content: assistantText, Timestamp: now}

	if err := a.memory.AppendMessage(ctx, sessionID, userMsg, a.agentType); err != nil {
		a.logger.WarnContext(ctx, "failed to save conversation turn", "session_id", sessionID, "error", err)
		return
	}
	if err := a.memory.AppendMessage(ctx, sessionID, assistantMsg, a.agentType); err != nil {
		a.logger.WarnContext(ctx, "failed to save conversation turn", "session_id", sessionID, "error", err)
	}
	_ = userID // attached on explicit SaveSession only
}

// AddDocument stores content in the document store and indexes it in the
// vector store, tagged with this agent's type. Unlike querying, ingestion
// failures propagate: a silently missing document would poison every later
// retrieval.
func (a *Agent) AddDocument(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error) {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["agent_type"] = a.agentType
	metadata["added_at"] = time.Now().Format(time.RFC3339)

	docID, err := a.docs.StoreDocument(ctx, content, metadata, filePath)
	if err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}

	embedding, err := a.embedder.EmbedText(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed document: %w", err)
	}

	doc := Document{ID: docID, Content: content, Metadata: metadata, Embedding: embedding}
	if _, err := a.vectors.AddDocuments(ctx, []Document{doc}); err != nil {
		return "", fmt.Errorf("index document: %w", err)
	}

	a.logger.InfoContext(ctx, "document added", "agent_type", a.agentType, "doc_id", docID)
	return docID, nil
}

// GetSessionHistory returns session info and messages. The bool reports
// whether the session exists.
func (a *Agent) GetSessionHistory(ctx context.Context, sessionID string) (Session, []ChatMessage, bool) {
	info, ok, err := a.memory.GetSessionInfo(ctx, sessionID)
	if err != nil || !ok {
		if err != nil {
			a.logger.WarnContext(ctx, "failed to get session history", "session_id", sessionID, "error", err)
		}
		return Session{}, nil, false
	}
	messages, _, err := a.memory.LoadSession(ctx, sessionID)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to load session messages", "session_id", sessionID, "error", err)
		return info, nil, true
	}
	return info, messages, true
}

// DeleteSession removes a session. Missing sessions count as success.
func (a *Agent) DeleteSession(ctx context.Context, sessionID string) bool {
	ok, err := a.memory.DeleteSession(ctx, sessionID)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to delete session", "session_id", sessionID, "error", err)
		return false
	}
	return ok
}

// ListSessions returns this agent's sessions, most recently active first.
func (a *Agent) ListSessions(ctx context.Context, userID string, limit, offset int) ([]Session, error) {
	return a.memory.ListSessions(ctx, SessionFilter{
		UserID:    userID,
		AgentType: a.agentType,
		Limit:     limit,
		Offset:    offset,
	})
}

// ListTools returns the names of this agent's tools.
func (a *Agent) ListTools() []string { return a.tools.List() }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// ExecuteTool runs one of this agent's tools by name.
func (a *Agent) ExecuteTool(ctx context.Context, name, input string, params map[string]any) ToolResult {
	return a.tools.Execute(ctx, name, input, params)
}

// Info describes the agent's configuration and components.
func (a *Agent) Info() map[string]any {
	return map[string]any{
		"agent_type":    a.agentType,
		"system_prompt": a.cfg.String("system_prompt", ""),
		"tools":         a.ListTools(),
		"rag_settings":  map[string]any(a.cfg.Sub("rag_settings")),
		"llm_settings":  map[string]any(a.cfg.Sub("llm_settings")),
		"component_info": map[string]any{
			"llm_provider":       a.llm.Name(),
			"embedding_provider": a.embedder.Name(),
		},
	}
}

// previewContent truncates content to 200 characters for source listings.
// Truncation counts runes so a multibyte character is never split.
func previewContent(content string) string {
	const maxPreview = 200
	if utf8.RuneCountInString(content) <= maxPreview {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxPreview]) + "..."
}
