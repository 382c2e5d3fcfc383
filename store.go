package tenun

import "context"

// VectorStore abstracts similarity-searchable document storage. Stores embed
// query text themselves using the EmbeddingProvider they were constructed
// with, so callers only ever deal in plain text.
type VectorStore interface {
	// AddDocuments indexes documents and returns their ids. Documents
	// without an ID are assigned one; documents without an Embedding are
	// embedded by the store.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// SimilaritySearch returns up to topK documents most similar to the
	// query text, best first. filters restricts results to documents whose
	// metadata matches every key/value pair.
	SimilaritySearch(ctx context.Context, query string, topK int, filters map[string]string) ([]SearchResult, error)

	// GetDocument returns a document by id. The bool reports existence.
	GetDocument(ctx context.Context, id string) (Document, bool, error)

	// ListDocuments returns documents whose metadata matches every filter
	// pair, newest first. limit <= 0 means no limit.
	ListDocuments(ctx context.Context, filters map[string]string, limit, offset int) ([]Document, error)

	DeleteDocuments(ctx context.Context, ids []string) error

	// Count returns the number of documents whose metadata matches every
	// filter pair; nil filters count everything.
	Count(ctx context.Context, filters map[string]string) (int, error)

	Init(ctx context.Context) error
	Close() error
}

// DocumentStore abstracts raw document persistence with content-hash
// deduplication.
type DocumentStore interface {
	// StoreDocument persists content and returns the document id. Storing
	// identical content returns the id of the existing record.
	StoreDocument(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error)

	// GetDocument returns a stored document by id. The bool reports existence.
	GetDocument(ctx context.Context, id string) (StoredDocument, bool, error)

	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, limit, offset int) ([]StoredDocument, error)
	Count(ctx context.Context) (int, error)

	Init(ctx context.Context) error
	Close() error
}
