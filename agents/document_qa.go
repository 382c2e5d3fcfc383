package agents

import (
	"context"
	"fmt"
	"strings"

	tenun "github.com/antaredja/tenun"
)

const defaultDocumentQAPrompt = "You are a document analysis assistant that answers questions " +
	"based on provided documents with accurate citations."

// NewDocumentQA builds a document Q&A agent specialized for analyzing and
// answering questions about documents.
func NewDocumentQA(ctx context.Context, provider tenun.ConfigProvider, catalog *tenun.Catalog, opts ...tenun.AgentOption) (*tenun.Agent, error) {
	return newAgent(ctx, TypeDocumentQA, provider, catalog, DocumentQAPromptBuilder, opts)
}

// DocumentQAPromptBuilder assembles the system prompt for the document Q&A
// agent.
func DocumentQAPromptBuilder(in tenun.PromptInput) string {
	base := in.SystemPrompt
	if base == "" {
		base = defaultDocumentQAPrompt
	}
	parts := []string{base}

	if in.Retrieved.Context != "" {
		parts = append(parts, "\nRelevant document content:\n"+in.Retrieved.Context)
	} else {
		parts = append(parts, "\nNo relevant documents found in the knowledge base for this query.")
	}

	parts = append(parts,
		"\nDocument Analysis Guidelines:\n"+
			"- Base your answers strictly on the provided document content\n"+
			"- Quote directly from documents when making specific claims\n"+
			"- Provide page numbers, section headings, or other location references when available\n"+
			"- Clearly distinguish between what is explicitly stated vs. inferred\n"+
			"- If information is not in the documents, clearly state this\n"+
			"- Summarize multiple relevant sections when they relate to the question")

	parts = append(parts,
		"\nCitation Requirements:\n"+
			"- Always cite the specific document and location for each claim\n"+
			"- Use quotation marks for direct quotes\n"+
			"- Provide context around quoted material\n"+
			"- Reference multiple documents if they contain relevant information\n"+
			"- Note any contradictions between different documents")

	parts = append(parts,
		"\nResponse Format:\n"+
			"- Provide a direct answer to the question first\n"+
			"- Support the answer with relevant quotes and citations\n"+
			"- Use clear paragraph breaks for different points\n"+
			"- Include a summary if the answer is complex\n"+
			"- List all referenced documents at the end")

	parts = append(parts,
		"\nHandling Uncertainty:\n"+
			"- If the question cannot be answered from the documents, say so clearly\n"+
			"- Distinguish between 'not mentioned' and 'explicitly contradicted'\n"+
			"- Suggest what additional documents might be needed\n"+
			"- Note if documents are incomplete or unclear on the topic\n"+
			"- Indicate confidence level when interpreting ambiguous content")

	if len(in.Retrieved.Sources) > 0 {
		var listing []string
		for i, src := range in.Retrieved.Sources {
			listing = append(listing, fmt.Sprintf("Document %d: %s", i+1, documentLabel(src)))
		}
		parts = append(parts, "\nAvailable Documents:\n"+strings.Join(listing, "\n"))
	}

	parts = append(parts,
		"\nDocument Analysis Features:\n"+
			"- Identify key themes and topics\n"+
			"- Extract definitions and explanations\n"+
			"- Note relationships between concepts\n"+
			"- Highlight important dates, numbers, and facts\n"+
			"- Recognize document structure and organization\n"+
			"- Compare information across multiple documents")

	parts = append(parts,
		"\nQuality Assurance:\n"+
			"- Double-check all citations for accuracy\n"+
			"- Ensure quotes are exact and properly attributed\n"+
			"- Verify that interpretations are well-supported\n"+
			"- Maintain objectivity and avoid adding personal opinions\n"+
			"- Focus on what the documents actually say, not external knowledge")

	return strings.Join(parts, "\n")
}

// documentLabel names a source for the document listing: file path first,
// then source URL, then title.
func documentLabel(src tenun.Source) string {
	if path, ok := src.Metadata["file_path"].(string); ok && path != "" {
		return path
	}
	if url, ok := src.Metadata["source_url"].(string); ok && url != "" {
		return url
	}
	if title, ok := src.Metadata["title"].(string); ok && title != "" {
		return title
	}
	return "Unknown source"
}
