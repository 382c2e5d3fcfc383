package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	tenun "github.com/antaredja/tenun"
)

// keywordEmbedder maps known words to fixed unit vectors so similarity is
// deterministic in tests.
type keywordEmbedder struct{}

func (keywordEmbedder) embed(text string) []float32 {
	switch text {
	case "go", "about go":
		return []float32{1, 0, 0}
	case "rust":
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (e keywordEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (keywordEmbedder) Dimensions() int { return 3 }
func (keywordEmbedder) Name() string    { return "keyword" }

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	cfg := tenun.Config{"path": filepath.Join(t.TempDir(), "vectors.db")}
	s := NewVectorStore(cfg, keywordEmbedder{})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVectorStoreSearchAndFilter(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	ids, err := s.AddDocuments(ctx, []tenun.Document{
		{Content: "go", Metadata: map[string]any{"agent_type": "general"}},
		{Content: "rust", Metadata: map[string]any{"agent_type": "general"}},
		{Content: "go", Metadata: map[string]any{"agent_type": "research_agent"}},
	})
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d ids", len(ids))
	}

	results, err := s.SimilaritySearch(ctx, "about go", 10, map[string]string{"agent_type": "general"})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (filter excludes other agent)", len(results))
	}
	if results[0].Document.Content != "go" {
		t.Fatalf("best match = %q", results[0].Document.Content)
	}
	if results[0].Score <= results[1].Score {
		t.Fatal("results not sorted by score descending")
	}
}

func TestVectorStoreTopK(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	var docs []tenun.Document
	for i := 0; i < 5; i++ {
		docs = append(docs, tenun.Document{Content: "go"})
	}
	if _, err := s.AddDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}

	results, err := s.SimilaritySearch(ctx, "go", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestVectorStoreGetDelete(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	ids, err := s.AddDocuments(ctx, []tenun.Document{{Content: "go"}})
	if err != nil {
		t.Fatal(err)
	}

	doc, ok, err := s.GetDocument(ctx, ids[0])
	if err != nil || !ok {
		t.Fatalf("GetDocument: ok=%v err=%v", ok, err)
	}
	if doc.Content != "go" {
		t.Fatalf("content = %q", doc.Content)
	}

	if err := s.DeleteDocuments(ctx, ids); err != nil {
		t.Fatalf("DeleteDocuments: %v", err)
	}
	if _, ok, _ := s.GetDocument(ctx, ids[0]); ok {
		t.Fatal("document should be gone")
	}
	n, err := s.Count(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("Count = %d err=%v", n, err)
	}
}

func TestVectorStoreListAndCountFiltered(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	if _, err := s.AddDocuments(ctx, []tenun.Document{
		{Content: "go", Metadata: map[string]any{"agent_type": "general"}},
		{Content: "rust", Metadata: map[string]any{"agent_type": "general"}},
		{Content: "go", Metadata: map[string]any{"agent_type": "research_agent"}},
	}); err != nil {
		t.Fatal(err)
	}

	general, err := s.ListDocuments(ctx, map[string]string{"agent_type": "general"}, 0, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(general) != 2 {
		t.Fatalf("got %d docs, want 2", len(general))
	}
	for _, d := range general {
		if d.Metadata["agent_type"] != "general" {
			t.Fatalf("filter leaked: %+v", d)
		}
	}

	page, err := s.ListDocuments(ctx, nil, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d docs, want 2", len(page))
	}

	n, err := s.Count(ctx, map[string]string{"agent_type": "research_agent"})
	if err != nil || n != 1 {
		t.Fatalf("filtered Count = %d err=%v", n, err)
	}
	n, err = s.Count(ctx, nil)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d err=%v", n, err)
	}
}

func newTestDocumentStore(t *testing.T) *DocumentStore {
	t.Helper()
	cfg := tenun.Config{"path": filepath.Join(t.TempDir(), "docs.db")}
	s := NewDocumentStore(cfg)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDocumentStoreDeduplicates(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	id1, err := s.StoreDocument(ctx, "same content", map[string]any{"title": "a"}, "")
	if err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}
	id2, err := s.StoreDocument(ctx, "same content", map[string]any{"title": "b"}, "")
	if err != nil {
		t.Fatalf("StoreDocument dup: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("duplicate content should reuse id: %s vs %s", id1, id2)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d err=%v", n, err)
	}
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	id, err := s.StoreDocument(ctx, "hello", map[string]any{"lang": "en"}, "/data/hello.txt")
	if err != nil {
		t.Fatal(err)
	}

	doc, ok, err := s.GetDocument(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetDocument: ok=%v err=%v", ok, err)
	}
	if doc.Content != "hello" || doc.FilePath != "/data/hello.txt" {
		t.Fatalf("round trip mismatch: %+v", doc)
	}
	if doc.Metadata["lang"] != "en" {
		t.Fatalf("metadata = %v", doc.Metadata)
	}
	if doc.ContentHash == "" {
		t.Fatal("content hash missing")
	}

	if err := s.DeleteDocument(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetDocument(ctx, id); ok {
		t.Fatal("document should be deleted")
	}
}

func TestDocumentStoreList(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	for _, c := range []string{"one", "two", "three"} {
		if _, err := s.StoreDocument(ctx, c, nil, ""); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := s.ListDocuments(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	all, err := s.ListDocuments(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d docs, want 3", len(all))
	}
}
