package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/hyperjump/kensaku/internal/models"
)

// Driver names registered by the two SQLite drivers.
const (
	DriverModernc = "sqlite"  // pure Go, FTS5 built in
	DriverCGO     = "sqlite3" // mattn/go-sqlite3, FTS5 needs the sqlite_fts5 build tag
)

// SQLiteStore implements Store using SQLite with an FTS5 table for full-text search.
type SQLiteStore struct {
	db     *sql.DB
	driver string
	fts    bool
}

var _ Store = (*SQLiteStore)(nil)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithDriver selects the database/sql driver name. Empty means DriverModernc.
func WithDriver(driver string) Option {
	return func(s *SQLiteStore) {
		if driver != "" {
			s.driver = driver
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{driver: DriverModernc}
	for _, opt := range opts {
		opt(s)
	}
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(s.driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	// A driver built without FTS5 still gets a working store; lexical queries then report
	// a missing index.
	s.fts = initFTS(db) == nil
	s.db = db
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		hash TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		path TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		indexed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_active_path ON documents(path) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS collection_documents (
		collection TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (collection, hash)
	);

	CREATE INDEX IF NOT EXISTS idx_collection_documents_hash ON collection_documents(hash);

	CREATE TABLE IF NOT EXISTS chunks (
		hash TEXT NOT NULL,
		seq INTEGER NOT NULL,
		pos INTEGER NOT NULL,
		text TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		PRIMARY KEY (hash, seq)
	);

	CREATE TABLE IF NOT EXISTS vectors (
		chunk_key TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		seq INTEGER NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		embedding BLOB NOT NULL,
		created_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_vectors_hash ON vectors(hash);
	`
	_, err := db.Exec(schema)
	return err
}

func initFTS(db *sql.DB) error {
	_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		hash UNINDEXED,
		title,
		content,
		tokenize = 'porter unicode61'
	)`)
	return err
}

// FullTextAvailable reports whether the FTS5 table could be created.
func (s *SQLiteStore) FullTextAvailable() bool {
	return s.fts
}

const documentColumns = `hash, title, content, path, active, created_at, updated_at, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var created, updated, indexed sql.NullTime
	if err := row.Scan(&doc.Hash, &doc.Title, &doc.Content, &doc.Path, &doc.Active, &created, &updated, &indexed); err != nil {
		return nil, err
	}
	doc.CreatedAt = created.Time
	doc.UpdatedAt = updated.Time
	doc.IndexedAt = indexed.Time
	return &doc, nil
}

// UpsertDocument stores doc as the active document for doc.Path. A previous active
// document at that path with a different hash is deactivated. Returns false when the
// same content is already active at the path.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *models.Document) (bool, error) {
	if doc.Path == "" {
		return false, fmt.Errorf("document path is required")
	}
	if doc.Hash == "" {
		doc.Hash = models.ContentHash(doc.Content)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT hash FROM documents WHERE path = ? AND active = 1`, doc.Path,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if current == doc.Hash {
		return false, nil
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ? WHERE path = ? AND active = 1`,
		now, doc.Path,
	); err != nil {
		return false, fmt.Errorf("failed to deactivate previous version: %w", err)
	}

	doc.Active = true
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = now
	}
	// Identical content at another path moves the document rather than duplicating it.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (hash, title, content, path, active, created_at, updated_at, indexed_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			active = 1,
			updated_at = excluded.updated_at,
			indexed_at = excluded.indexed_at`,
		doc.Hash, doc.Title, doc.Content, doc.Path, doc.CreatedAt, doc.UpdatedAt, doc.IndexedAt,
	); err != nil {
		return false, fmt.Errorf("failed to insert document: %w", err)
	}

	if s.fts {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE hash = ?`, doc.Hash); err != nil {
			return false, fmt.Errorf("failed to update full-text index: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents_fts (hash, title, content) VALUES (?, ?, ?)`,
			doc.Hash, doc.Title, doc.Content,
		); err != nil {
			return false, fmt.Errorf("failed to update full-text index: %w", err)
		}
	}
	return true, tx.Commit()
}

// GetDocument returns a document by hash, active or not.
func (s *SQLiteStore) GetDocument(ctx context.Context, hash string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", hash, ErrNotFound)
	}
	return doc, err
}

// GetActiveDocument returns the active document at path.
func (s *SQLiteStore) GetActiveDocument(ctx context.Context, path string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE path = ? AND active = 1`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document at %s: %w", path, ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns active documents, most recently updated first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE active = 1
		 ORDER BY updated_at DESC, hash LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeactivatePath soft-deletes the active document at path.
func (s *SQLiteStore) DeactivatePath(ctx context.Context, path string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ? WHERE path = ? AND active = 1`,
		time.Now(), path,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteDocument removes a document with its chunks, vectors, memberships and
// full-text row.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE hash = ?`, hash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", hash, ErrNotFound)
	}
	stmts := []string{
		`DELETE FROM chunks WHERE hash = ?`,
		`DELETE FROM vectors WHERE hash = ?`,
		`DELETE FROM collection_documents WHERE hash = ?`,
	}
	if s.fts {
		stmts = append(stmts, `DELETE FROM documents_fts WHERE hash = ?`)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, hash); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ResolveDocuments returns the active documents among hashes, keyed by hash. A non-empty
// collection further restricts the result to that collection's members.
func (s *SQLiteStore) ResolveDocuments(ctx context.Context, hashes []string, collection string) (map[string]*models.Document, error) {
	out := make(map[string]*models.Document, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	var sb strings.Builder
	args := make([]any, 0, len(hashes)+1)
	sb.WriteString(`SELECT d.hash, d.title, d.content, d.path, d.active, d.created_at, d.updated_at, d.indexed_at
		FROM documents d`)
	if collection != "" {
		sb.WriteString(` JOIN collection_documents cd ON cd.hash = d.hash AND cd.collection = ?`)
		args = append(args, collection)
	}
	sb.WriteString(` WHERE d.active = 1 AND d.hash IN (`)
	for i, h := range hashes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		args = append(args, h)
	}
	sb.WriteString(")")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[doc.Hash] = doc
	}
	return out, rows.Err()
}

// EnsureCollection creates a collection if it does not exist.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, name, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, path, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, path, time.Now(),
	)
	return err
}

// AddToCollection records hash as a member of the named collection.
func (s *SQLiteStore) AddToCollection(ctx context.Context, name, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collection_documents (collection, hash) VALUES (?, ?)`,
		name, hash,
	)
	return err
}

// ListCollections returns all collections ordered by name.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, path, created_at FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Collection
	for rows.Next() {
		var c models.Collection
		var created sql.NullTime
		if err := rows.Scan(&c.Name, &c.Path, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = created.Time
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ReplaceChunks swaps the stored chunks of a document in one transaction.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, hash string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE hash = ?`, hash); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (hash, seq, pos, text, tokens) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, hash, c.Seq, c.Pos, c.Text, c.Tokens); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunks returns a document's chunks ordered by seq.
func (s *SQLiteStore) GetChunks(ctx context.Context, hash string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, seq, pos, text, tokens FROM chunks WHERE hash = ? ORDER BY seq`, hash,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.Hash, &c.Seq, &c.Pos, &c.Text, &c.Tokens); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SaveVectors inserts or replaces embedding rows in one transaction.
func (s *SQLiteStore) SaveVectors(ctx context.Context, records []VectorRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO vectors (chunk_key, hash, seq, model, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Key, r.Hash, r.Seq, r.Model, r.Data, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteVectors removes every embedding of a document.
func (s *SQLiteStore) DeleteVectors(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE hash = ?`, hash)
	return err
}

// LoadVectors streams the embeddings of active documents to fn in key order.
func (s *SQLiteStore) LoadVectors(ctx context.Context, fn func(key string, data []byte) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.chunk_key, v.embedding FROM vectors v
		 JOIN documents d ON d.hash = v.hash AND d.active = 1
		 ORDER BY v.chunk_key`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return err
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ProbeVectors checks that the vector table is queryable.
func (s *SQLiteStore) ProbeVectors(ctx context.Context) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM vectors LIMIT 1`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// Stats returns row counts for each table.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{FullTextIndex: s.fts}
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM documents WHERE active = 1`, &st.ActiveDocuments},
		{`SELECT COUNT(*) FROM documents WHERE active = 0`, &st.InactiveDocuments},
		{`SELECT COUNT(*) FROM chunks`, &st.Chunks},
		{`SELECT COUNT(*) FROM vectors`, &st.Vectors},
		{`SELECT COUNT(*) FROM collections`, &st.Collections},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isMissingTable reports errors caused by a table or module that does not exist yet.
func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such module")
}
