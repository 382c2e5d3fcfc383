package tenun

import "strings"

// PromptInput is everything a PromptBuilder may draw on when assembling the
// system prompt for a turn.
type PromptInput struct {
	// SystemPrompt is the base prompt from agent configuration, already
	// defaulted by the agent constructor.
	SystemPrompt string
	// Tools lists the names of the tools available to the agent.
	Tools []string
	// Retrieved is the retrieval bundle for this turn. May be empty.
	Retrieved RetrievedContext
	// Request is the caller-supplied per-request context. May be nil.
	Request map[string]any
}

// PromptBuilder assembles the system prompt for one turn. Each agent type
// supplies its own builder; DefaultPromptBuilder serves general-purpose
// assistants.
type PromptBuilder func(in PromptInput) string

// DefaultPromptBuilder builds a system prompt for a general-purpose
// conversational agent.
func DefaultPromptBuilder(in PromptInput) string {
	parts := []string{in.SystemPrompt}

	if in.Retrieved.Context != "" {
		parts = append(parts, "\nRelevant information from knowledge base:\n"+in.Retrieved.Context)
	}
	if len(in.Retrieved.Sources) > 0 {
		parts = append(parts, "\nWhen referencing information from the knowledge base, "+
			"please cite your sources appropriately.")
	}
	if len(in.Tools) > 0 {
		parts = append(parts, "\nYou have access to the following tools: "+strings.Join(in.Tools, ", ")+". "+
			"Use them when they would be helpful for answering the user's question.")
	}
	parts = append(parts,
		"\nGuidelines:\n"+
			"- Be helpful, accurate, and concise\n"+
			"- If you're unsure about something, say so\n"+
			"- Use the provided context when relevant\n"+
			"- Cite sources when using external information")

	return strings.Join(parts, "\n")
}
