package agents

import (
	"context"

	tenun "github.com/antaredja/tenun"
)

const defaultGeneralPrompt = "You are a helpful AI assistant that can answer questions and help with various tasks."

// NewGeneral builds a general-purpose conversational agent.
func NewGeneral(ctx context.Context, provider tenun.ConfigProvider, catalog *tenun.Catalog, opts ...tenun.AgentOption) (*tenun.Agent, error) {
	return newAgent(ctx, TypeGeneral, provider, catalog, GeneralPromptBuilder, opts)
}

// GeneralPromptBuilder assembles the system prompt for the general agent.
func GeneralPromptBuilder(in tenun.PromptInput) string {
	if in.SystemPrompt == "" {
		in.SystemPrompt = defaultGeneralPrompt
	}
	return tenun.DefaultPromptBuilder(in)
}
