// Command tenun is a local client for the agent framework: an interactive
// chat loop, a document ingestion pipeline, and session inspection, all
// running against the same configuration as the server.
//
// Usage:
//
//	tenun chat [-agent general] [-user id]
//	tenun ingest [-agent document_qa] [-max-tokens 512] [-overlap 50] file...
//	tenun sessions [-agent general] [-user id] [-limit 50]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tenun "github.com/antaredja/tenun"
	"github.com/antaredja/tenun/agents"
	"github.com/antaredja/tenun/config"
	"github.com/antaredja/tenun/ingest"
	"github.com/antaredja/tenun/internal/app"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(os.Args[2:], logger)
	case "ingest":
		err = runIngest(os.Args[2:], logger)
	case "sessions":
		err = runSessions(os.Args[2:], logger)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tenun <chat|ingest|sessions> [flags]")
}

// buildAgent loads configuration and constructs a single agent.
func buildAgent(ctx context.Context, agentType string, logger *slog.Logger) (*tenun.Agent, error) {
	provider, err := loadConfig()
	if err != nil {
		return nil, err
	}
	catalog := app.BuildCatalog(app.Options{Logger: logger})
	return agents.New(ctx, agentType, provider, catalog, tenun.WithLogger(logger))
}

func runChat(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	agentType := fs.String("agent", agents.TypeGeneral, "agent type")
	userID := fs.String("user", "", "user id attached to the session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	agent, err := buildAgent(ctx, *agentType, logger)
	if err != nil {
		return err
	}

	fmt.Printf("chatting with %s (empty line or Ctrl-D to exit)\n", *agentType)

	var sessionID string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		resp := agent.ProcessQuery(ctx, tenun.QueryRequest{
			Query:     line,
			SessionID: sessionID,
			UserID:    *userID,
		})
		sessionID = resp.SessionID

		fmt.Println(resp.Content)
		for _, src := range resp.Sources {
			label := src.Title
			if label == "" {
				label = src.Content
			}
			fmt.Printf("  [source] %s\n", label)
		}
	}
	if sessionID != "" {
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}
	return scanner.Err()
}

func runIngest(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	agentType := fs.String("agent", agents.TypeDocumentQA, "agent type")
	maxTokens := fs.Int("max-tokens", 512, "max tokens per chunk")
	overlap := fs.Int("overlap", 50, "overlap tokens between chunks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("ingest requires at least one file")
	}

	ctx := context.Background()
	agent, err := buildAgent(ctx, *agentType, logger)
	if err != nil {
		return err
	}

	chunker := ingest.NewRecursiveChunker(
		ingest.WithMaxTokens(*maxTokens),
		ingest.WithOverlapTokens(*overlap),
	)

	for _, path := range fs.Args() {
		text, err := ingest.ExtractFile(path)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}

		chunks := chunker.Chunk(text)
		for i, chunk := range chunks {
			metadata := map[string]any{
				"title":       filepath.Base(path),
				"chunk_index": i,
				"chunk_count": len(chunks),
			}
			if _, err := agent.AddDocument(ctx, chunk, metadata, path); err != nil {
				return fmt.Errorf("store chunk %d of %s: %w", i, path, err)
			}
		}
		fmt.Printf("ingested %s: %d chunks\n", path, len(chunks))
	}
	return nil
}

func runSessions(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	agentType := fs.String("agent", agents.TypeGeneral, "agent type")
	userID := fs.String("user", "", "filter by user id")
	limit := fs.Int("limit", 50, "max sessions to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	agent, err := buildAgent(ctx, *agentType, logger)
	if err != nil {
		return err
	}

	sessions, err := agent.ListSessions(ctx, *userID, *limit, 0)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s\t%d messages\tlast active %s\n",
			s.ID, s.MessageCount, s.LastActive.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// loadConfig layers environment variables over an optional TOML file over
// built-in defaults, matching the server.
func loadConfig() (tenun.ConfigProvider, error) {
	providers := []tenun.ConfigProvider{config.NewEnv()}

	path := os.Getenv("TENUN_CONFIG")
	if path == "" {
		if _, err := os.Stat("config.toml"); err == nil {
			path = "config.toml"
		}
	}
	if path != "" {
		toml, err := config.LoadTOML(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		providers = append(providers, toml)
	}

	providers = append(providers, config.NewStatic(map[string]any{
		"llm":            map[string]any{"type": "openai"},
		"embedding":      map[string]any{"type": "openai"},
		"vector_store":   map[string]any{"type": "sqlite"},
		"document_store": map[string]any{"type": "sqlite"},
		"memory":         map[string]any{"type": "sqlite"},
	}))
	return config.NewComposite(providers...), nil
}
