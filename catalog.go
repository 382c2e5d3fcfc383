package tenun

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Constructor function types. Vector stores additionally receive the
// embedding provider they should use for query and document embedding.
type (
	VectorStoreFunc       func(cfg Config, embedder EmbeddingProvider) (VectorStore, error)
	DocumentStoreFunc     func(cfg Config) (DocumentStore, error)
	MemoryBackendFunc     func(cfg Config) (MemoryBackend, error)
	LLMProviderFunc       func(cfg Config) (LLMProvider, error)
	EmbeddingProviderFunc func(cfg Config) (EmbeddingProvider, error)
	ToolFunc              func(cfg Config) (Tool, error)
)

// Default component types used when a config section has no "type" key.
const (
	DefaultVectorStoreType       = "sqlite"
	DefaultDocumentStoreType     = "sqlite"
	DefaultMemoryBackendType     = "inmem"
	DefaultLLMProviderType       = "openai"
	DefaultEmbeddingProviderType = "openai"
)

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = l }
}

// Catalog maps component type names to constructors. Registration is
// expected at startup; creation may happen concurrently afterwards. The
// last registration for a name wins, which lets tests swap in doubles.
type Catalog struct {
	mu         sync.RWMutex
	vectors    map[string]VectorStoreFunc
	documents  map[string]DocumentStoreFunc
	memories   map[string]MemoryBackendFunc
	llms       map[string]LLMProviderFunc
	embeddings map[string]EmbeddingProviderFunc
	tools      map[string]ToolFunc
	logger     *slog.Logger
}

func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		vectors:    make(map[string]VectorStoreFunc),
		documents:  make(map[string]DocumentStoreFunc),
		memories:   make(map[string]MemoryBackendFunc),
		llms:       make(map[string]LLMProviderFunc),
		embeddings: make(map[string]EmbeddingProviderFunc),
		tools:      make(map[string]ToolFunc),
		logger:     NopLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Catalog) RegisterVectorStore(name string, fn VectorStoreFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[name] = fn
}

func (c *Catalog) RegisterDocumentStore(name string, fn DocumentStoreFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documents[name] = fn
}

func (c *Catalog) RegisterMemoryBackend(name string, fn MemoryBackendFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memories[name] = fn
}

func (c *Catalog) RegisterLLMProvider(name string, fn LLMProviderFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llms[name] = fn
}

func (c *Catalog) RegisterEmbeddingProvider(name string, fn EmbeddingProviderFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddings[name] = fn
}

func (c *Catalog) RegisterTool(name string, fn ToolFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[name] = fn
}

// CreateVectorStore builds a vector store from cfg["type"], falling back to
// the default type. Unknown types yield *UnknownTypeError and no partial
// object.
func (c *Catalog) CreateVectorStore(cfg Config, embedder EmbeddingProvider) (VectorStore, error) {
	name := cfg.String("type", DefaultVectorStoreType)
	c.mu.RLock()
	fn, ok := c.vectors[name]
	c.mu.RUnlock()
	if !ok {
		return nil, c.unknown("vector_store", name, keysOf(c.vectors, &c.mu))
	}
	return fn(cfg, embedder)
}

func (c *Catalog) CreateDocumentStore(cfg Config) (DocumentStore, error) {
	name := cfg.String("type", DefaultDocumentStoreType)
	c.mu.RLock()
	fn, ok := c.documents[name]
	c.mu.RUnlock()
	if !ok {
		return nil, c.unknown("document_store", name, keysOf(c.documents, &c.mu))
	}
	return fn(cfg)
}

func (c *Catalog) CreateMemoryBackend(cfg Config) (MemoryBackend, error) {
	name := cfg.String("type", DefaultMemoryBackendType)
	c.mu.RLock()
	fn, ok := c.memories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, c.unknown("memory_backend", name, keysOf(c.memories, &c.mu))
	}
	return fn(cfg)
}

func (c *Catalog) CreateLLMProvider(cfg Config) (LLMProvider, error) {
	name := cfg.String("type", DefaultLLMProviderType)
	c.mu.RLock()
	fn, ok := c.llms[name]
	c.mu.RUnlock()
	if !ok {
		return nil, c.unknown("llm_provider", name, keysOf(c.llms, &c.mu))
	}
	return fn(cfg)
}

func (c *Catalog) CreateEmbeddingProvider(cfg Config) (EmbeddingProvider, error) {
	name := cfg.String("type", DefaultEmbeddingProviderType)
	c.mu.RLock()
	fn, ok := c.embeddings[name]
	c.mu.RUnlock()
	if !ok {
		return nil, c.unknown("embedding_provider", name, keysOf(c.embeddings, &c.mu))
	}
	return fn(cfg)
}

// CreateToolRegistry builds a registry from a list of tool config sections.
// Tools that fail to resolve or construct are skipped with a warning; a bad
// tool entry never prevents agent startup.
func (c *Catalog) CreateToolRegistry(ctx context.Context, toolCfgs []Config) *ToolRegistry {
	reg := NewToolRegistry()
	for _, cfg := range toolCfgs {
		name := cfg.String("type", "")
		if name == "" {
			c.logger.WarnContext(ctx, "tool config missing type, skipped")
			continue
		}
		c.mu.RLock()
		fn, ok := c.tools[name]
		c.mu.RUnlock()
		if !ok {
			c.logger.WarnContext(ctx, "unknown tool type, skipped", "type", name)
			continue
		}
		t, err := fn(cfg)
		if err != nil {
			c.logger.WarnContext(ctx, "tool construction failed, skipped", "type", name, "error", err)
			continue
		}
		reg.Register(t)
	}
	return reg
}

func (c *Catalog) unknown(category, requested string, available []string) error {
	c.logger.Error("unknown component type", "category", category, "type", requested)
	return &UnknownTypeError{Category: category, Requested: requested, Available: available}
}

func keysOf[T any](m map[string]T, mu *sync.RWMutex) []string {
	mu.RLock()
	defer mu.RUnlock()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
