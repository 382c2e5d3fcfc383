// Command tenun-server runs the HTTP API for the agent framework.
//
// Configuration is read from a TOML file (TENUN_CONFIG, default
// config.toml when present) with TENUN_* environment variables taking
// precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tenun "github.com/antaredja/tenun"
	"github.com/antaredja/tenun/config"
	"github.com/antaredja/tenun/internal/app"
	"github.com/antaredja/tenun/internal/httpapi"
	"github.com/antaredja/tenun/observer"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	provider, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	opts := app.Options{Logger: logger}
	var shutdownObserver func(context.Context) error
	if provider.GetSection("observability").Bool("enabled", false) {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("init observability: %w", err)
		}
		opts.Instruments = inst
		shutdownObserver = shutdown
	}

	catalog := app.BuildCatalog(opts)
	agents := app.BuildAgents(ctx, provider, catalog, logger)
	if len(agents) == 0 {
		return errors.New("no agents could be initialized; check configuration")
	}

	server := httpapi.New(provider, agents, httpapi.WithLogger(logger))

	apiCfg := provider.GetSection("api")
	addr := fmt.Sprintf("%s:%d", apiCfg.String("host", "0.0.0.0"), apiCfg.Int("port", 8000))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("server started", "addr", addr, "agents", len(agents))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if shutdownObserver != nil {
		if err := shutdownObserver(shutdownCtx); err != nil {
			logger.Warn("observability shutdown", "error", err)
		}
	}
	return nil
}

// loadConfig layers environment variables over an optional TOML file over
// built-in defaults.
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

	providers = append(providers, config.NewStatic(defaultConfig()))
	return config.NewComposite(providers...), nil
}

func defaultConfig() map[string]any {
	return map[string]any{
		"llm":            map[string]any{"type": "openai"},
		"embedding":      map[string]any{"type": "openai"},
		"vector_store":   map[string]any{"type": "sqlite"},
		"document_store": map[string]any{"type": "sqlite"},
		"memory":         map[string]any{"type": "sqlite"},
		"api":            map[string]any{"host": "0.0.0.0", "port": 8000},
	}
}
