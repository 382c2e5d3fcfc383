package agents

import (
	"context"
	"slices"
	"strings"

	tenun "github.com/antaredja/tenun"
)

const defaultResearchPrompt = "You are a research assistant that finds credible sources, " +
	"summarizes complex topics, and provides citations."

// NewResearch builds a research agent specialized for information
// gathering and analysis.
func NewResearch(ctx context.Context, provider tenun.ConfigProvider, catalog *tenun.Catalog, opts ...tenun.AgentOption) (*tenun.Agent, error) {
	return newAgent(ctx, TypeResearch, provider, catalog, ResearchPromptBuilder, opts)
}

// ResearchPromptBuilder assembles the system prompt for the research agent.
func ResearchPromptBuilder(in tenun.PromptInput) string {
	base := in.SystemPrompt
	if base == "" {
		base = defaultResearchPrompt
	}
	parts := []string{base}

	if in.Retrieved.Context != "" {
		parts = append(parts, "\nRelevant research and information from knowledge base:\n"+in.Retrieved.Context)
	}

	parts = append(parts,
		"\nResearch Guidelines:\n"+
			"- Prioritize credible, authoritative sources\n"+
			"- Provide balanced perspectives on controversial topics\n"+
			"- Distinguish between facts, opinions, and speculation\n"+
			"- Note the date and relevance of information\n"+
			"- Acknowledge limitations in available data\n"+
			"- Suggest additional research directions when appropriate")

	if slices.Contains(in.Tools, "web_search") {
		parts = append(parts,
			"\nWeb Search Usage:\n"+
				"- Use web search to find current, credible information\n"+
				"- Look for academic papers, government sources, and reputable organizations\n"+
				"- Cross-reference information from multiple sources\n"+
				"- Note the publication date and source credibility")
	}

	parts = append(parts,
		"\nSource Evaluation Criteria:\n"+
			"- Authority: Who is the author/organization?\n"+
			"- Accuracy: Is the information verifiable?\n"+
			"- Objectivity: Is there potential bias?\n"+
			"- Currency: How recent is the information?\n"+
			"- Coverage: Is the topic treated comprehensively?")

	parts = append(parts,
		"\nCitation Requirements:\n"+
			"- Always provide sources for factual claims\n"+
			"- Include publication dates when available\n"+
			"- Use a consistent citation format\n"+
			"- Distinguish between primary and secondary sources\n"+
			"- Note when information is preliminary or disputed")

	parts = append(parts,
		"\nResponse Structure:\n"+
			"- Begin with a clear summary of key findings\n"+
			"- Organize information logically by topic or theme\n"+
			"- Use headings and bullet points for clarity\n"+
			"- Include a 'Sources' section at the end\n"+
			"- Note any gaps in available information")

	if len(in.Retrieved.Sources) > 0 {
		parts = append(parts,
			"\nAvailable Sources from Knowledge Base:\n"+
				"Use and cite the provided sources appropriately. "+
				"Supplement with additional research as needed.")
	}

	return strings.Join(parts, "\n")
}
