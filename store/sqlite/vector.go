package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tenun "github.com/antaredja/tenun"
)

// VectorStoreOption configures a VectorStore.
type VectorStoreOption func(*VectorStore)

// WithVectorLogger sets a structured logger for the store. If not set, no
// logs are emitted.
func WithVectorLogger(l *slog.Logger) VectorStoreOption {
	return func(s *VectorStore) { s.logger = l }
}

// VectorStore implements tenun.VectorStore backed by a local SQLite file.
// Embeddings are stored as JSON text and similarity search is done
// in-process using brute-force cosine similarity.
type VectorStore struct {
	db       *sql.DB
	embedder tenun.EmbeddingProvider
	logger   *slog.Logger
}

var _ tenun.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a vector store at the file given by cfg["path"]
// (default "tenun_vectors.db"). Query and document embedding go through
// embedder.
func NewVectorStore(cfg tenun.Config, embedder tenun.EmbeddingProvider, opts ...VectorStoreOption) *VectorStore {
	path := cfg.String("path", "tenun_vectors.db")
	s := &VectorStore{db: openDB(path), embedder: embedder, logger: tenun.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: vector store opened", "path", path)
	return s
}

// Init creates the documents table.
func (s *VectorStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS vector_documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding TEXT,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// AddDocuments indexes documents in a single transaction. Documents without
// an ID are assigned one; documents without an embedding are embedded here.
func (s *VectorStore) AddDocuments(ctx context.Context, docs []tenun.Document) ([]string, error) {
	start := time.Now()
	s.logger.Debug("sqlite: add documents", "count", len(docs))

	// Embed missing vectors in one batch before opening the transaction.
	var missing []int
	var texts []string
	for i, d := range docs {
		if len(d.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, d.Content)
		}
	}
	if len(missing) > 0 {
		embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents: %w", err)
		}
		for j, i := range missing {
			docs[i].Embedding = embeddings[j]
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = tenun.NewID()
		}
		ids[i] = d.ID

		var metaJSON *string
		if len(d.Metadata) > 0 {
			data, _ := json.Marshal(d.Metadata)
			v := string(data)
			metaJSON = &v
		}
		emb := serializeEmbedding(d.Embedding)

		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO vector_documents (id, content, metadata, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			d.ID, d.Content, metaJSON, emb, time.Now().Unix(),
		)
		if err != nil {
			s.logger.Error("sqlite: insert document failed", "id", d.ID, "error", err)
			return nil, fmt.Errorf("insert document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: add documents ok", "count", len(docs), "duration", time.Since(start))
	return ids, nil
}

// SimilaritySearch embeds the query and performs brute-force cosine
// similarity over all matching rows, best first.
func (s *VectorStore) SimilaritySearch(ctx context.Context, query string, topK int, filters map[string]string) ([]tenun.SearchResult, error) {
	start := time.Now()
	s.logger.Debug("sqlite: similarity search", "top_k", topK, "filters", len(filters))

	queryEmbedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where, args := buildMetadataFilters(filters)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM vector_documents WHERE embedding IS NOT NULL`+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var results []tenun.SearchResult
	scanned := 0
	for rows.Next() {
		var d tenun.Document
		var metaJSON sql.NullString
		var embJSON string
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON, &embJSON); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		scanned++
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
		}
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		results = append(results, tenun.SearchResult{Document: d, Score: cosineSimilarity(queryEmbedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	s.logger.Debug("sqlite: similarity search ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// GetDocument returns a document by id.
func (s *VectorStore) GetDocument(ctx context.Context, id string) (tenun.Document, bool, error) {
	var d tenun.Document
	var metaJSON, embJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, metadata, embedding FROM vector_documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Content, &metaJSON, &embJSON)
	if err == sql.ErrNoRows {
		return tenun.Document{}, false, nil
	}
	if err != nil {
		return tenun.Document{}, false, fmt.Errorf("get document: %w", err)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
	}
	if embJSON.Valid {
		d.Embedding, _ = deserializeEmbedding(embJSON.String)
	}
	return d, true, nil
}

// DeleteDocuments removes documents by id.
func (s *VectorStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM vector_documents WHERE id IN (%s)`, strings.Join(placeholders, ",")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// ListDocuments returns indexed documents matching the metadata filters,
// newest first.
func (s *VectorStore) ListDocuments(ctx context.Context, filters map[string]string, limit, offset int) ([]tenun.Document, error) {
	where, args := buildMetadataFilters(filters)
	query := `SELECT id, content, metadata, embedding FROM vector_documents WHERE 1=1` + where +
		` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []tenun.Document
	for rows.Next() {
		var d tenun.Document
		var metaJSON, embJSON sql.NullString
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON, &embJSON); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
		}
		if embJSON.Valid {
			d.Embedding, _ = deserializeEmbedding(embJSON.String)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Count returns the number of indexed documents matching the metadata
// filters.
func (s *VectorStore) Count(ctx context.Context, filters map[string]string) (int, error) {
	where, args := buildMetadataFilters(filters)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_documents WHERE 1=1`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *VectorStore) Close() error {
	return s.db.Close()
}

// buildMetadataFilters translates metadata filters into JSON path WHERE
// clauses. Keys failing safeMetaKey are skipped.
func buildMetadataFilters(filters map[string]string) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		if safeMetaKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, k := range keys {
		clauses = append(clauses, "json_extract(metadata, '$."+k+"') = ?")
		args = append(args, filters[k])
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}
