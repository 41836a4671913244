package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFile is the database file name inside a storage directory.
const DBFile = "graph.db"

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed graph store: chunks, entities, relationships
// and the per-document status ledger.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// Open opens or creates the graph database inside storage directory dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir storage: %w", err)
	}
	return OpenPath(filepath.Join(dir, DBFile))
}

// OpenPath opens a SQLite database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	s := &Store{db: db, dbPath: ":memory:"}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction.
// All store methods called on txStore use the transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(txStore *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS full_docs (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		file_path TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS doc_status (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		chunks_count INTEGER DEFAULT 0,
		content TEXT DEFAULT '',
		content_summary TEXT DEFAULT '',
		content_length INTEGER DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		file_path TEXT DEFAULT '',
		chunks_list TEXT DEFAULT '[]',
		metadata TEXT DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_order INTEGER DEFAULT 0,
		content TEXT NOT NULL,
		source_id TEXT DEFAULT '',
		file_path TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS entities (
		name TEXT PRIMARY KEY,
		type TEXT DEFAULT '',
		description TEXT DEFAULT '',
		source_id TEXT DEFAULT '',
		file_path TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entity_docs (
		entity_name TEXT NOT NULL REFERENCES entities(name) ON DELETE CASCADE,
		doc_id TEXT NOT NULL,
		PRIMARY KEY (entity_name, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_entity_docs_doc ON entity_docs(doc_id);

	CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		src TEXT NOT NULL REFERENCES entities(name) ON DELETE CASCADE,
		tgt TEXT NOT NULL REFERENCES entities(name) ON DELETE CASCADE,
		description TEXT DEFAULT '',
		keywords TEXT DEFAULT '',
		weight REAL DEFAULT 1.0,
		source_id TEXT DEFAULT '',
		file_path TEXT DEFAULT '',
		doc_id TEXT DEFAULT '',
		UNIQUE(src, tgt)
	);

	CREATE INDEX IF NOT EXISTS idx_relationships_tgt ON relationships(tgt);
	CREATE INDEX IF NOT EXISTS idx_relationships_doc ON relationships(doc_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// marshalJSON serializes v, falling back to fallback on error.
func marshalJSON(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(b)
}

// Now returns the current time in ISO 8601 format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
