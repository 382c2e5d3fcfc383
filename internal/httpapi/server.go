// Package httpapi exposes the agent framework over HTTP. One server hosts
// a set of agents keyed by type; every agent-scoped route resolves the
// agent first and reports the available types when it cannot.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	tenun "github.com/antaredja/tenun"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger for the server.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server hosts a set of agents over HTTP.
type Server struct {
	echo   *echo.Echo
	cfg    tenun.ConfigProvider
	agents map[string]*tenun.Agent
	logger *slog.Logger
}

// New creates a server for the given agents. CORS is enabled unless the
// "api" config section sets cors_enabled = false.
func New(cfg tenun.ConfigProvider, agents map[string]*tenun.Agent, opts ...Option) *Server {
	s := &Server{
		echo:   echo.New(),
		cfg:    cfg,
		agents: agents,
		logger: tenun.NopLogger(),
	}
	for _, o := range opts {
		o(s)
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	if cfg.GetSection("api").Bool("cors_enabled", true) {
		s.echo.Use(middleware.CORS())
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/agents", s.listAgents)
	s.echo.GET("/config", s.getConfig)

	g := s.echo.Group("/agents/:agent_type")
	g.POST("/chat", s.chat)
	g.GET("/sessions", s.listSessions)
	g.GET("/sessions/:session_id", s.getSession)
	g.DELETE("/sessions/:session_id", s.deleteSession)
	g.POST("/documents", s.addDocument)
	g.GET("/tools", s.listTools)
	g.POST("/tools/:tool_name", s.executeTool)
}

// Start begins serving on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// agentTypes returns the hosted agent types, sorted.
func (s *Server) agentTypes() []string {
	types := make([]string, 0, len(s.agents))
	for t := range s.agents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// agentFor resolves the agent for the route, or writes a 404 listing the
// available types and returns false.
func (s *Server) agentFor(c echo.Context) (*tenun.Agent, bool) {
	agentType := c.Param("agent_type")
	agent, ok := s.agents[agentType]
	if !ok {
		_ = c.JSON(http.StatusNotFound, map[string]any{
			"error":            fmt.Sprintf("Agent type %q not found", agentType),
			"available_agents": s.agentTypes(),
		})
		return nil, false
	}
	return agent, true
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"agents":    s.agentTypes(),
	})
}

func (s *Server) listAgents(c echo.Context) error {
	info := make(map[string]any, len(s.agents))
	for agentType, agent := range s.agents {
		info[agentType] = agent.Info()
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": info, "count": len(info)})
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Context   map[string]any `json:"context"`
}

func (s *Server) chat(c echo.Context) error {
	agent, ok := s.agentFor(c)
	if !ok {
		return nil
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No JSON data provided"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	// ProcessQuery degrades internally; a chat request is never a 5xx.
	resp := agent.ProcessQuery(c.Request().Context(), tenun.QueryRequest{
		Query:     req.Message,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Context:   req.Context,
	})
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getSession(c echo.Context) error {
	agent, ok := s.agentFor(c)
	if !ok {
		return nil
	}

	sessionID := c.Param("session_id")
	info, messages, found := agent.GetSessionHistory(c.Request().Context(), sessionID)
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}
	if messages == nil {
		messages = []tenun.ChatMessage{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"session_id":    info.ID,
		"agent_type":    info.AgentType,
		"created_at":    info.CreatedAt.Format(time.RFC3339),
		"last_active":   info.LastActive.Format(time.RFC3339),
		"message_count": info.MessageCount,
		"user_id":       info.UserID,
		"metadata":      info.Metadata,
		"messages":      messages,
	})
}

func (s *Server) deleteSession(c echo.Context) error {
	agent, ok := s.agentFor(c)
	if !ok {
		return nil
	}

	if !agent.DeleteSession(c.Request().Context(), c.Param("session_id")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found or could not be deleted"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

func (s *Server) listSessions(c echo.Context) error {
	agent, ok := s.agentFor(c)
	if !ok {
		return nil
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	userID := c.QueryParam("user_id")

	sessions, err := agent.ListSessions(c.Request().Context(), userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list sessions", "agent_type", agent.Type(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if sessions == nil {
		sessions = []tenun.Session{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
		"limit":    limit,
		"offset":   offset,
	})
}

type documentRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	FilePath string         `json:"file_path"`
}

func (s *Server) addDocument(c echo.Context) error {
	agent, ok := s.agentFor(c)
	if !ok {
		return nil
	}

	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No JSON data provided"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Content is required"})
	}

	docID, err := agent.AddDocument(c.Request().Context(), req.Content, req.Metadata, req.FilePath)
	if err != nil {
		s.logger.Error("failed to add document", "agent_type", agent.Type(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"document_id": docID,
		"message":     "Document added successfully",
	})
}

func (s *Server) listTools(c echo.Context) error {
	agent, ok := s.agentFor(c)
	if !ok {
		return nil
	}

	names := agent.ListTools()
	details := make(map[string]any, len(names))
	for _, name := range names {
		if tool, found := agent.Tools().Get(name); found {
			details[name] = map[string]string{
				"name":        tool.Name(),
				"description": tool.Description(),
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tools":        names,
		"tool_details": details,
		"count":        len(names),
	})
}

type toolRequest struct {
	Input      string         `json:"input"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) executeTool(c echo.Context) error {
	agent, ok := s.agentFor(c)
	if !ok {
		return nil
	}

	var req toolRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No JSON data provided"})
	}
	if req.Input == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Input is required"})
	}

	result := agent.ExecuteTool(c.Request().Context(), c.Param("tool_name"), req.Input, req.Parameters)
	return c.JSON(http.StatusOK, result)
}

// getConfig returns a sanitized view of the configuration: component types
// and models only, never credentials.
func (s *Server) getConfig(c echo.Context) error {
	vectorCfg := s.cfg.GetSection("vector_store")
	memoryCfg := s.cfg.GetSection("memory")
	llmCfg := s.cfg.GetSection("llm")

	return c.JSON(http.StatusOK, map[string]any{
		"vector_store": map[string]any{
			"type": vectorCfg.String("type", tenun.DefaultVectorStoreType),
			"path": vectorCfg.String("path", ""),
		},
		"memory": map[string]any{
			"type": memoryCfg.String("type", tenun.DefaultMemoryBackendType),
		},
		"llm": map[string]any{
			"type":  llmCfg.String("type", tenun.DefaultLLMProviderType),
			"model": llmCfg.String("model", ""),
		},
		"api":    map[string]any(sanitizeAPI(s.cfg.GetSection("api"))),
		"agents": s.agentTypes(),
	})
}

// sanitizeAPI drops credential-looking keys from the api section.
func sanitizeAPI(cfg tenun.Config) tenun.Config {
	out := make(tenun.Config, len(cfg))
	for k, v := range cfg {
		switch k {
		case "api_key", "secret", "token":
			continue
		}
		out[k] = v
	}
	return out
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
