// Package app wires the built-in component implementations into a catalog
// and constructs the agent set. It is shared by the server and CLI
// entrypoints.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	tenun "github.com/antaredja/tenun"
	"github.com/antaredja/tenun/agents"
	"github.com/antaredja/tenun/memory/inmem"
	memsqlite "github.com/antaredja/tenun/memory/sqlite"
	"github.com/antaredja/tenun/observer"
	"github.com/antaredja/tenun/provider/openaicompat"
	"github.com/antaredja/tenun/store/postgres"
	"github.com/antaredja/tenun/store/sqlite"
)

// Options configures catalog construction.
type Options struct {
	Logger *slog.Logger
	// Instruments, when set, wraps LLM and embedding providers with OTEL
	// instrumentation.
	Instruments *observer.Instruments
}

// BuildCatalog registers every built-in implementation: sqlite and
// postgres stores, in-memory and sqlite memory backends, and the
// OpenAI-compatible LLM and embedding providers.
func BuildCatalog(opts Options) *tenun.Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = tenun.NopLogger()
	}
	c := tenun.NewCatalog(tenun.WithCatalogLogger(logger))

	c.RegisterVectorStore("sqlite", func(cfg tenun.Config, embedder tenun.EmbeddingProvider) (tenun.VectorStore, error) {
		s := sqlite.NewVectorStore(cfg, embedder, sqlite.WithVectorLogger(logger))
		if err := s.Init(context.Background()); err != nil {
			return nil, err
		}
		return s, nil
	})
	c.RegisterDocumentStore("sqlite", func(cfg tenun.Config) (tenun.DocumentStore, error) {
		s := sqlite.NewDocumentStore(cfg, sqlite.WithDocumentLogger(logger))
		if err := s.Init(context.Background()); err != nil {
			return nil, err
		}
		return s, nil
	})

	c.RegisterVectorStore("postgres", func(cfg tenun.Config, embedder tenun.EmbeddingProvider) (tenun.VectorStore, error) {
		pool, err := connectPostgres(cfg)
		if err != nil {
			return nil, err
		}
		s := postgres.NewVectorStore(pool, embedder)
		if err := s.Init(context.Background()); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	})
	c.RegisterDocumentStore("postgres", func(cfg tenun.Config) (tenun.DocumentStore, error) {
		pool, err := connectPostgres(cfg)
		if err != nil {
			return nil, err
		}
		s := postgres.NewDocumentStore(pool)
		if err := s.Init(context.Background()); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	})

	c.RegisterMemoryBackend("inmem", func(cfg tenun.Config) (tenun.MemoryBackend, error) {
		return inmem.New(cfg, inmem.WithLogger(logger)), nil
	})
	c.RegisterMemoryBackend("sqlite", func(cfg tenun.Config) (tenun.MemoryBackend, error) {
		b, err := memsqlite.New(cfg, memsqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := b.Init(context.Background()); err != nil {
			return nil, err
		}
		return b, nil
	})

	c.RegisterLLMProvider("openai", func(cfg tenun.Config) (tenun.LLMProvider, error) {
		var p tenun.LLMProvider = openaicompat.New(cfg, openaicompat.WithLogger(logger))
		if opts.Instruments != nil {
			p = observer.WrapLLM(p, opts.Instruments)
		}
		return p, nil
	})
	c.RegisterEmbeddingProvider("openai", func(cfg tenun.Config) (tenun.EmbeddingProvider, error) {
		var e tenun.EmbeddingProvider = openaicompat.NewEmbedding(cfg, openaicompat.WithLogger(logger))
		if opts.Instruments != nil {
			e = observer.WrapEmbedding(e, opts.Instruments)
		}
		return e, nil
	})

	return c
}

// BuildAgents constructs every built-in agent type. An agent that fails to
// initialize is logged and skipped so one bad section cannot take down the
// rest.
func BuildAgents(ctx context.Context, provider tenun.ConfigProvider, catalog *tenun.Catalog, logger *slog.Logger) map[string]*tenun.Agent {
	if logger == nil {
		logger = tenun.NopLogger()
	}
	out := make(map[string]*tenun.Agent)
	for _, agentType := range agents.Types() {
		agent, err := agents.New(ctx, agentType, provider, catalog, tenun.WithLogger(logger))
		if err != nil {
			logger.ErrorContext(ctx, "failed to initialize agent", "agent_type", agentType, "error", err)
			continue
		}
		out[agentType] = agent
		logger.InfoContext(ctx, "initialized agent", "agent_type", agentType)
	}
	return out
}

func connectPostgres(cfg tenun.Config) (*pgxpool.Pool, error) {
	dsn := cfg.String("dsn", "")
	if dsn == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
