package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor converts markdown to plain text by parsing it with
// goldmark and walking the AST. Formatting markers, link targets, and raw
// HTML are dropped; heading and paragraph boundaries become newlines.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extract(content []byte) (string, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := gm.Parser().Parse(text.NewReader(content))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.AutoLink:
			b.Write(node.URL(content))
		case *ast.CodeBlock:
			writeCodeLines(&b, content, node.BaseBlock)
		case *ast.FencedCodeBlock:
			writeCodeLines(&b, content, node.BaseBlock)
		default:
			// Separate block-level nodes so headings and paragraphs do
			// not run together.
			if n.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return collapseBlankLines(b.String()), nil
}

func writeCodeLines(b *strings.Builder, content []byte, block ast.BaseBlock) {
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(content))
	}
}

// collapseBlankLines trims lines and squeezes runs of blank lines down to
// a single paragraph break.
func collapseBlankLines(s string) string {
	var out strings.Builder
	blanks := 0
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blanks++
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
			if blanks > 0 {
				out.WriteByte('\n')
			}
		}
		out.WriteString(line)
		blanks = 0
	}
	return strings.TrimSpace(out.String())
}
