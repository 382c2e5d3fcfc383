package agents

import (
	"context"
	"strings"

	tenun "github.com/antaredja/tenun"
)

const defaultCodeAssistantPrompt = "You are an expert code assistant that helps developers write clean, " +
	"efficient code following best practices."

// NewCodeAssistant builds a code assistant agent specialized for
// programming help.
func NewCodeAssistant(ctx context.Context, provider tenun.ConfigProvider, catalog *tenun.Catalog, opts ...tenun.AgentOption) (*tenun.Agent, error) {
	return newAgent(ctx, TypeCodeAssistant, provider, catalog, CodeAssistantPromptBuilder, opts)
}

// CodeAssistantPromptBuilder assembles the system prompt for the code
// assistant agent.
func CodeAssistantPromptBuilder(in tenun.PromptInput) string {
	base := in.SystemPrompt
	if base == "" {
		base = defaultCodeAssistantPrompt
	}
	parts := []string{base}

	if in.Retrieved.Context != "" {
		parts = append(parts, "\nRelevant code documentation and examples:\n"+in.Retrieved.Context)
	}

	parts = append(parts,
		"\nCode Assistant Guidelines:\n"+
			"- Provide clear, well-commented code examples\n"+
			"- Explain the reasoning behind your solutions\n"+
			"- Suggest best practices and common patterns\n"+
			"- Include error handling where appropriate\n"+
			"- Mention potential pitfalls or edge cases\n"+
			"- Provide alternative approaches when relevant")

	if len(in.Tools) > 0 {
		var instructions []string
		for _, tool := range in.Tools {
			switch tool {
			case "file_operations":
				instructions = append(instructions, "- Use file_operations to read/write code files when needed")
			case "code_execution":
				instructions = append(instructions, "- Use code_execution to run and test code examples")
			case "web_search":
				instructions = append(instructions, "- Use web_search to find up-to-date documentation or examples")
			}
		}
		if len(instructions) > 0 {
			parts = append(parts,
				"\nAvailable tools: "+strings.Join(in.Tools, ", ")+"\n"+
					strings.Join(instructions, "\n"))
		}
	}

	parts = append(parts,
		"\nLanguage-Specific Considerations:\n"+
			"- Python: Follow PEP 8, use type hints, prefer list comprehensions\n"+
			"- JavaScript: Use modern ES6+ features, prefer const/let over var\n"+
			"- Java: Follow naming conventions, use appropriate design patterns\n"+
			"- Always specify the programming language in code blocks")

	parts = append(parts,
		"\nFormatting:\n"+
			"- Use markdown code blocks with language specification\n"+
			"- Include brief explanations before and after code\n"+
			"- Highlight important parts of the code\n"+
			"- Provide usage examples when applicable")

	if len(in.Retrieved.Sources) > 0 {
		parts = append(parts,
			"\nWhen using information from documentation or examples, "+
				"cite the relevant sources.")
	}

	return strings.Join(parts, "\n")
}
