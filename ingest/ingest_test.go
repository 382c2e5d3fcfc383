package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestContentTypeFromExtension(t *testing.T) {
	cases := map[string]ContentType{
		".md":       TypeMarkdown,
		"markdown":  TypeMarkdown,
		".PDF":      TypePDF,
		".txt":      TypePlainText,
		".unknown":  TypePlainText,
		"":          TypePlainText,
	}
	for ext, want := range cases {
		if got := ContentTypeFromExtension(ext); got != want {
			t.Errorf("ContentTypeFromExtension(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestMarkdownExtract(t *testing.T) {
	md := `# Title

Some **bold** text with a [link](https://example.com).

- item one
- item two

` + "```go\nfmt.Println(\"hi\")\n```\n"

	got, err := MarkdownExtractor{}.Extract([]byte(md))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"Title", "bold", "link", "item one", `fmt.Println("hi")`} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, gone := range []string{"#", "**", "https://example.com", "```"} {
		if strings.Contains(got, gone) {
			t.Errorf("output still contains %q:\n%s", gone, got)
		}
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.md")
	if err := os.WriteFile(path, []byte("# Heading\n\nbody"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if !strings.Contains(got, "Heading") || !strings.Contains(got, "body") {
		t.Fatalf("extracted = %q", got)
	}

	if _, err := ExtractFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPDFExtractEmpty(t *testing.T) {
	if _, err := (PDFExtractor{}).Extract(nil); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestChunkerShortText(t *testing.T) {
	c := NewRecursiveChunker()
	got := c.Chunk("short text")
	if len(got) != 1 || got[0] != "short text" {
		t.Fatalf("chunks = %v", got)
	}
	if got := c.Chunk("   "); got != nil {
		t.Fatalf("blank input should yield no chunks, got %v", got)
	}
}

func TestChunkerSplitsLongText(t *testing.T) {
	c := NewRecursiveChunker(WithMaxTokens(20), WithOverlapTokens(4))
	maxChars := 20 * 4

	sentence := "The quick brown fox jumps over the lazy dog."
	text := strings.Repeat(sentence+" ", 30)

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > maxChars {
			t.Errorf("chunk %d exceeds limit: %d > %d", i, len(chunk), maxChars)
		}
	}
	// Every chunk carries real content.
	for i, chunk := range chunks {
		if !strings.Contains(chunk, "fox") {
			t.Errorf("chunk %d looks wrong: %q", i, chunk)
		}
	}
}

func TestChunkerOverlap(t *testing.T) {
	c := NewRecursiveChunker(WithMaxTokens(10), WithOverlapTokens(3))

	text := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}

	// The tail of one chunk should reappear at the head of the next.
	tail := chunks[0][len(chunks[0])-5:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Errorf("no overlap between %q and %q", chunks[0], chunks[1])
	}
}
