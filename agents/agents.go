// Package agents provides the built-in agent types: a general-purpose
// assistant, a research assistant, a code assistant, and a document Q&A
// assistant. Each supplies its own system-prompt strategy on top of the
// shared turn pipeline.
package agents

import (
	"context"

	tenun "github.com/antaredja/tenun"
)

// Built-in agent type identifiers.
const (
	TypeGeneral       = "general"
	TypeResearch      = "research_agent"
	TypeCodeAssistant = "code_assistant"
	TypeDocumentQA    = "document_qa"
)

// Types returns the built-in agent type identifiers in a stable order.
func Types() []string {
	return []string{TypeGeneral, TypeResearch, TypeCodeAssistant, TypeDocumentQA}
}

// New builds a built-in agent by type identifier.
func New(ctx context.Context, agentType string, provider tenun.ConfigProvider, catalog *tenun.Catalog, opts ...tenun.AgentOption) (*tenun.Agent, error) {
	switch agentType {
	case TypeGeneral:
		return NewGeneral(ctx, provider, catalog, opts...)
	case TypeResearch:
		return NewResearch(ctx, provider, catalog, opts...)
	case TypeCodeAssistant:
		return NewCodeAssistant(ctx, provider, catalog, opts...)
	case TypeDocumentQA:
		return NewDocumentQA(ctx, provider, catalog, opts...)
	default:
		return nil, &tenun.UnknownTypeError{Category: "agent", Requested: agentType, Available: Types()}
	}
}

func newAgent(ctx context.Context, agentType string, provider tenun.ConfigProvider, catalog *tenun.Catalog, builder tenun.PromptBuilder, opts []tenun.AgentOption) (*tenun.Agent, error) {
	// Caller options come last so they can override the builder.
	all := append([]tenun.AgentOption{tenun.WithPromptBuilder(builder)}, opts...)
	return tenun.New(ctx, agentType, provider, catalog, all...)
}
