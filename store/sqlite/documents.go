package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	tenun "github.com/antaredja/tenun"
)

// DocumentStoreOption configures a DocumentStore.
type DocumentStoreOption func(*DocumentStore)

// WithDocumentLogger sets a structured logger for the store.
func WithDocumentLogger(l *slog.Logger) DocumentStoreOption {
	return func(s *DocumentStore) { s.logger = l }
}

// DocumentStore implements tenun.DocumentStore backed by a local SQLite
// file with SHA-256 content deduplication.
type DocumentStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ tenun.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a document store at the file given by
// cfg["path"] (default "tenun_documents.db").
func NewDocumentStore(cfg tenun.Config, opts ...DocumentStoreOption) *DocumentStore {
	path := cfg.String("path", "tenun_documents.db")
	s := &DocumentStore{db: openDB(path), logger: tenun.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: document store opened", "path", path)
	return s
}

// Init creates the stored documents table.
func (s *DocumentStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS stored_documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT,
		file_path TEXT,
		content_hash TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// StoreDocument persists content. Identical content (by SHA-256) returns
// the id of the existing record instead of creating a duplicate.
func (s *DocumentStore) StoreDocument(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM stored_documents WHERE content_hash = ?`, hash,
	).Scan(&existing)
	if err == nil {
		s.logger.Debug("sqlite: duplicate content, reusing document", "id", existing)
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("check duplicate: %w", err)
	}

	id := tenun.NewID()
	var metaJSON *string
	if len(metadata) > 0 {
		data, _ := json.Marshal(metadata)
		v := string(data)
		metaJSON = &v
	}
	var path *string
	if filePath != "" {
		path = &filePath
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stored_documents (id, content, metadata, file_path, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, content, metaJSON, path, hash, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	s.logger.Debug("sqlite: document stored", "id", id)
	return id, nil
}

// GetDocument returns a stored document by id.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (tenun.StoredDocument, bool, error) {
	var d tenun.StoredDocument
	var metaJSON, path sql.NullString
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, metadata, file_path, content_hash, created_at
		 FROM stored_documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Content, &metaJSON, &path, &d.ContentHash, &createdAt)
	if err == sql.ErrNoRows {
		return tenun.StoredDocument{}, false, nil
	}
	if err != nil {
		return tenun.StoredDocument{}, false, fmt.Errorf("get document: %w", err)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
	}
	if path.Valid {
		d.FilePath = path.String
	}
	d.CreatedAt = time.Unix(createdAt, 0)
	return d, true, nil
}

// DeleteDocument removes a stored document by id.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stored_documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// ListDocuments returns stored documents, newest first.
func (s *DocumentStore) ListDocuments(ctx context.Context, limit, offset int) ([]tenun.StoredDocument, error) {
	query := `SELECT id, content, metadata, file_path, content_hash, created_at
		 FROM stored_documents ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []tenun.StoredDocument
	for rows.Next() {
		var d tenun.StoredDocument
		var metaJSON, path sql.NullString
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON, &path, &d.ContentHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
		}
		if path.Valid {
			d.FilePath = path.String
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stored_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}
