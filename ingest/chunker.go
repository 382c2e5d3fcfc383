package ingest

import (
	"strings"
	"unicode"
)

// Chunker splits text into pieces suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// ChunkerOption configures a chunker.
type ChunkerOption func(*chunkerConfig)

type chunkerConfig struct {
	maxTokens     int
	overlapTokens int
}

// WithMaxTokens sets the maximum tokens per chunk (approximated as
// tokens*4 chars).
func WithMaxTokens(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.maxTokens = n }
}

// WithOverlapTokens sets the overlap between consecutive chunks in tokens.
func WithOverlapTokens(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.overlapTokens = n }
}

// RecursiveChunker splits text by paragraphs first, then sentences, then
// words, merging pieces back into chunks up to the size limit with a small
// overlap so context is not lost at boundaries.
type RecursiveChunker struct {
	maxChars     int
	overlapChars int
}

var _ Chunker = (*RecursiveChunker)(nil)

// NewRecursiveChunker creates a RecursiveChunker. Defaults: 512 tokens per
// chunk, 50 tokens of overlap.
func NewRecursiveChunker(opts ...ChunkerOption) *RecursiveChunker {
	cfg := chunkerConfig{maxTokens: 512, overlapTokens: 50}
	for _, o := range opts {
		o(&cfg)
	}
	return &RecursiveChunker{
		maxChars:     cfg.maxTokens * 4,
		overlapChars: cfg.overlapTokens * 4,
	}
}

// Chunk splits text into overlapping chunks.
func (c *RecursiveChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.maxChars {
		return []string{text}
	}

	var pieces []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pieces = append(pieces, c.splitPiece(para)...)
	}
	return c.merge(pieces)
}

// splitPiece breaks a paragraph that exceeds the chunk size into sentences,
// falling back to word splits for oversized sentences.
func (c *RecursiveChunker) splitPiece(para string) []string {
	if len(para) <= c.maxChars {
		return []string{para}
	}

	var out []string
	for _, sentence := range splitSentences(para) {
		if len(sentence) <= c.maxChars {
			out = append(out, sentence)
			continue
		}
		out = append(out, c.splitWords(sentence)...)
	}
	return out
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace. It is intentionally simple; the chunk merger tolerates
// imperfect boundaries.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	pos := 0
	for i, r := range runes {
		pos += len(string(r))
		if r != '.' && r != '!' && r != '?' && r != '。' && r != '！' && r != '？' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(text[start:pos]); s != "" {
			sentences = append(sentences, s)
		}
		start = pos
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func (c *RecursiveChunker) splitWords(text string) []string {
	var out []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > c.maxChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// merge packs pieces into chunks up to maxChars, carrying an overlap
// suffix from each finished chunk into the next.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var chunks []string
	var cur strings.Builder
	for _, piece := range pieces {
		if cur.Len() > 0 && cur.Len()+1+len(piece) > c.maxChars {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if overlap := overlapSuffix(chunk, c.overlapChars); overlap != "" && len(overlap)+1+len(piece) <= c.maxChars {
				cur.WriteString(overlap)
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(piece)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// overlapSuffix returns the last n characters of text, trimmed to a word
// boundary.
func overlapSuffix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	suffix := text[len(text)-n:]
	if idx := strings.IndexByte(suffix, ' '); idx >= 0 {
		suffix = suffix[idx+1:]
	}
	return strings.TrimSpace(suffix)
}
