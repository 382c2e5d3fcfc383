package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	tenun "github.com/antaredja/tenun"
)

func TestGeneralPromptDefaults(t *testing.T) {
	got := GeneralPromptBuilder(tenun.PromptInput{})
	if !strings.HasPrefix(got, "You are a helpful AI assistant") {
		t.Fatalf("missing default base prompt:\n%s", got)
	}
	if !strings.Contains(got, "Guidelines:") {
		t.Fatalf("missing guidelines:\n%s", got)
	}
}

func TestGeneralPromptConfiguredBase(t *testing.T) {
	got := GeneralPromptBuilder(tenun.PromptInput{SystemPrompt: "Custom base."})
	if !strings.HasPrefix(got, "Custom base.") {
		t.Fatalf("configured prompt not used:\n%s", got)
	}
}

func TestResearchPromptSections(t *testing.T) {
	in := tenun.PromptInput{
		Tools: []string{"web_search"},
		Retrieved: tenun.RetrievedContext{
			Context: "climate data",
			Sources: []tenun.Source{{Content: "x"}},
		},
	}
	got := ResearchPromptBuilder(in)

	for _, want := range []string{
		"You are a research assistant",
		"Relevant research and information from knowledge base:\nclimate data",
		"Research Guidelines:",
		"Web Search Usage:",
		"Source Evaluation Criteria:",
		"Citation Requirements:",
		"Response Structure:",
		"Available Sources from Knowledge Base:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestResearchPromptWithoutWebSearch(t *testing.T) {
	got := ResearchPromptBuilder(tenun.PromptInput{Tools: []string{"calculator"}})
	if strings.Contains(got, "Web Search Usage:") {
		t.Fatal("web search section should require the web_search tool")
	}
}

func TestCodeAssistantPromptToolInstructions(t *testing.T) {
	in := tenun.PromptInput{Tools: []string{"code_execution", "file_operations"}}
	got := CodeAssistantPromptBuilder(in)

	if !strings.Contains(got, "Available tools: code_execution, file_operations") {
		t.Errorf("tool listing missing:\n%s", got)
	}
	if !strings.Contains(got, "Use code_execution to run and test code examples") {
		t.Error("code_execution instruction missing")
	}
	if !strings.Contains(got, "Use file_operations to read/write code files when needed") {
		t.Error("file_operations instruction missing")
	}
	if strings.Contains(got, "web_search") {
		t.Error("web_search instruction should not appear")
	}
}

func TestCodeAssistantPromptUnknownToolsOnly(t *testing.T) {
	got := CodeAssistantPromptBuilder(tenun.PromptInput{Tools: []string{"calculator"}})
	if strings.Contains(got, "Available tools:") {
		t.Fatal("tool section should be omitted when no instruction applies")
	}
}

func TestDocumentQAPromptNoDocuments(t *testing.T) {
	got := DocumentQAPromptBuilder(tenun.PromptInput{})
	if !strings.Contains(got, "No relevant documents found in the knowledge base for this query.") {
		t.Fatalf("missing empty-knowledge-base notice:\n%s", got)
	}
}

func TestDocumentQAPromptDocumentListing(t *testing.T) {
	in := tenun.PromptInput{
		Retrieved: tenun.RetrievedContext{
			Context: "contract text",
			Sources: []tenun.Source{
				{Metadata: map[string]any{"file_path": "/docs/contract.pdf"}},
				{Metadata: map[string]any{"source_url": "https://example.com/terms"}},
				{Metadata: map[string]any{"title": "Appendix"}},
				{Metadata: map[string]any{}},
			},
		},
	}
	got := DocumentQAPromptBuilder(in)

	for _, want := range []string{
		"Document 1: /docs/contract.pdf",
		"Document 2: https://example.com/terms",
		"Document 3: Appendix",
		"Document 4: Unknown source",
		"Relevant document content:\ncontract text",
		"Quality Assurance:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestNewUnknownAgentType(t *testing.T) {
	_, err := New(context.Background(), "bogus", nil, nil)
	var unknown *tenun.UnknownTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *tenun.UnknownTypeError, got %T: %v", err, err)
	}
	if unknown.Requested != "bogus" || len(unknown.Available) != 4 {
		t.Fatalf("error = %+v", unknown)
	}
}

func TestTypes(t *testing.T) {
	got := Types()
	want := []string{"general", "research_agent", "code_assistant", "document_qa"}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Types() = %v, want %v", got, want)
		}
	}
}
