// Package postgres implements tenun.VectorStore and tenun.DocumentStore
// using PostgreSQL with pgvector for native vector similarity search.
//
// Both stores accept an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tenun "github.com/antaredja/tenun"
)

// VectorStore implements tenun.VectorStore backed by PostgreSQL with
// pgvector. Search uses the cosine distance operator.
type VectorStore struct {
	pool     *pgxpool.Pool
	embedder tenun.EmbeddingProvider
}

var _ tenun.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a vector store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func NewVectorStore(pool *pgxpool.Pool, embedder tenun.EmbeddingProvider) *VectorStore {
	return &VectorStore{pool: pool, embedder: embedder}
}

// Init creates the pgvector extension and the documents table. The vector
// column dimension follows the embedding provider.
func (s *VectorStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_documents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at BIGINT NOT NULL
		)`, s.embedder.Dimensions()),
		`CREATE INDEX IF NOT EXISTS idx_vector_documents_embedding
		 ON vector_documents USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// AddDocuments indexes documents in a single transaction.
func (s *VectorStore) AddDocuments(ctx context.Context, docs []tenun.Document) ([]string, error) {
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
			return nil, fmt.Errorf("postgres: embed documents: %w", err)
		}
		for j, i := range missing {
			docs[i].Embedding = embeddings[j]
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = tenun.NewID()
		}
		ids[i] = d.ID

		var metaJSON []byte
		if len(d.Metadata) > 0 {
			metaJSON, _ = json.Marshal(d.Metadata)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO vector_documents (id, content, metadata, embedding, created_at)
			 VALUES ($1, $2, $3, $4::vector, $5)
			 ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding`,
			d.ID, d.Content, metaJSON, vectorLiteral(d.Embedding), time.Now().Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: insert document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return ids, nil
}

// SimilaritySearch embeds the query and searches by cosine distance.
func (s *VectorStore) SimilaritySearch(ctx context.Context, query string, topK int, filters map[string]string) ([]tenun.SearchResult, error) {
	queryEmbedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: embed query: %w", err)
	}

	sql := `SELECT id, content, metadata,
	               1 - (embedding <=> $1::vector) AS score
	        FROM vector_documents
	        WHERE embedding IS NOT NULL`
	args := []any{vectorLiteral(queryEmbedding)}
	n := 2
	for k, v := range filters {
		sql += fmt.Sprintf(" AND metadata->>$%d = $%d", n, n+1)
		args = append(args, k, v)
		n += 2
	}
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", n)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search documents: %w", err)
	}
	defer rows.Close()

	var results []tenun.SearchResult
	for rows.Next() {
		var d tenun.Document
		var metaJSON []byte
		var score float64
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &d.Metadata)
		}
		results = append(results, tenun.SearchResult{Document: d, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate documents: %w", err)
	}
	return results, nil
}

// GetDocument returns a document by id.
func (s *VectorStore) GetDocument(ctx context.Context, id string) (tenun.Document, bool, error) {
	var d tenun.Document
	var metaJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, content, metadata FROM vector_documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Content, &metaJSON)
	if err == pgx.ErrNoRows {
		return tenun.Document{}, false, nil
	}
	if err != nil {
		return tenun.Document{}, false, fmt.Errorf("postgres: get document: %w", err)
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &d.Metadata)
	}
	return d, true, nil
}

// DeleteDocuments removes documents by id.
func (s *VectorStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM vector_documents WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete documents: %w", err)
	}
	return nil
}

// ListDocuments returns indexed documents matching the metadata filters,
// newest first.
func (s *VectorStore) ListDocuments(ctx context.Context, filters map[string]string, limit, offset int) ([]tenun.Document, error) {
	sql := `SELECT id, content, metadata FROM vector_documents WHERE 1=1`
	where, args, n := metadataFilterClauses(filters, 1)
	sql += where
	sql += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1)
		args = append(args, limit, offset)
	} else if offset > 0 {
		sql += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, offset)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []tenun.Document
	for rows.Next() {
		var d tenun.Document
		var metaJSON []byte
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &d.Metadata)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Count returns the number of indexed documents matching the metadata
// filters.
func (s *VectorStore) Count(ctx context.Context, filters map[string]string) (int, error) {
	sql := `SELECT COUNT(*) FROM vector_documents WHERE 1=1`
	where, args, _ := metadataFilterClauses(filters, 1)
	sql += where

	var n int
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count documents: %w", err)
	}
	return n, nil
}

// metadataFilterClauses renders metadata equality filters as JSONB clauses,
// with placeholders numbered from next.
func metadataFilterClauses(filters map[string]string, next int) (string, []any, int) {
	var sql string
	var args []any
	for k, v := range filters {
		sql += fmt.Sprintf(" AND metadata->>$%d = $%d", next, next+1)
		args = append(args, k, v)
		next += 2
	}
	return sql, args, next
}

// Close is a no-op; the pool is owned by the caller.
func (s *VectorStore) Close() error { return nil }

// DocumentStore implements tenun.DocumentStore backed by PostgreSQL with
// SHA-256 content deduplication.
type DocumentStore struct {
	pool *pgxpool.Pool
}

var _ tenun.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a document store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Init creates the stored documents table.
func (s *DocumentStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS stored_documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata JSONB,
		file_path TEXT,
		content_hash TEXT NOT NULL UNIQUE,
		created_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("postgres: init: %w", err)
	}
	return nil
}

// StoreDocument persists content, reusing the existing record for
// identical content.
func (s *DocumentStore) StoreDocument(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	var existing string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM stored_documents WHERE content_hash = $1`, hash,
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("postgres: check duplicate: %w", err)
	}

	id := tenun.NewID()
	var metaJSON []byte
	if len(metadata) > 0 {
		metaJSON, _ = json.Marshal(metadata)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO stored_documents (id, content, metadata, file_path, content_hash, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		id, content, metaJSON, filePath, hash, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("postgres: store document: %w", err)
	}
	return id, nil
}

// GetDocument returns a stored document by id.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (tenun.StoredDocument, bool, error) {
	var d tenun.StoredDocument
	var metaJSON []byte
	var filePath *string
	var createdAt int64
	err := s.pool.QueryRow(ctx,
		`SELECT id, content, metadata, file_path, content_hash, created_at
		 FROM stored_documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Content, &metaJSON, &filePath, &d.ContentHash, &createdAt)
	if err == pgx.ErrNoRows {
		return tenun.StoredDocument{}, false, nil
	}
	if err != nil {
		return tenun.StoredDocument{}, false, fmt.Errorf("postgres: get document: %w", err)
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &d.Metadata)
	}
	if filePath != nil {
		d.FilePath = *filePath
	}
	d.CreatedAt = time.Unix(createdAt, 0)
	return d, true, nil
}

// DeleteDocument removes a stored document by id.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM stored_documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete document: %w", err)
	}
	return nil
}

// ListDocuments returns stored documents, newest first.
func (s *DocumentStore) ListDocuments(ctx context.Context, limit, offset int) ([]tenun.StoredDocument, error) {
	sql := `SELECT id, content, metadata, file_path, content_hash, created_at
	        FROM stored_documents ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		sql += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []tenun.StoredDocument
	for rows.Next() {
		var d tenun.StoredDocument
		var metaJSON []byte
		var filePath *string
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON, &filePath, &d.ContentHash, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &d.Metadata)
		}
		if filePath != nil {
			d.FilePath = *filePath
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stored_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count documents: %w", err)
	}
	return n, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *DocumentStore) Close() error { return nil }

// vectorLiteral formats an embedding as a pgvector input literal.
func vectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
