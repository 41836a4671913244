package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DeusData/repo-graphrag/internal/graph"
)

// UpsertFullDoc stores the full content of a document.
func (s *Store) UpsertFullDoc(ctx context.Context, id, content, filePath string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO full_docs (id, content, file_path) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, file_path=excluded.file_path`,
		id, content, filePath)
	if err != nil {
		return fmt.Errorf("upsert full doc %s: %w", id, err)
	}
	return nil
}

// UpsertStatus creates or replaces the status record of a document.
func (s *Store) UpsertStatus(ctx context.Context, id string, st graph.DocStatus) error {
	chunks := st.ChunksList
	if chunks == nil {
		chunks = []string{}
	}
	metadata := st.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO doc_status (id, status, chunks_count, content, content_summary, content_length,
			created_at, updated_at, file_path, chunks_list, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, chunks_count=excluded.chunks_count, content=excluded.content,
			content_summary=excluded.content_summary, content_length=excluded.content_length,
			updated_at=excluded.updated_at, file_path=excluded.file_path,
			chunks_list=excluded.chunks_list, metadata=excluded.metadata`,
		id, st.Status, st.ChunksCount, st.Content, st.ContentSummary, st.ContentLength,
		st.CreatedAt, st.UpdatedAt, st.FilePath, marshalJSON(chunks, "[]"), marshalJSON(metadata, "{}"))
	if err != nil {
		return fmt.Errorf("upsert status %s: %w", id, err)
	}
	return nil
}

// GetStatus returns the status record of a document, or nil if none exists.
func (s *Store) GetStatus(ctx context.Context, id string) (*graph.DocStatus, error) {
	var (
		st       graph.DocStatus
		chunks   string
		metadata string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT status, chunks_count, content, content_summary, content_length,
			created_at, updated_at, file_path, chunks_list, metadata
		FROM doc_status WHERE id=?`, id).Scan(
		&st.Status, &st.ChunksCount, &st.Content, &st.ContentSummary, &st.ContentLength,
		&st.CreatedAt, &st.UpdatedAt, &st.FilePath, &chunks, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status %s: %w", id, err)
	}
	_ = json.Unmarshal([]byte(chunks), &st.ChunksList)
	_ = json.Unmarshal([]byte(metadata), &st.Metadata)
	return &st, nil
}

// InsertChunk stores a chunk under its path-scoped key, owned by docID.
func (s *Store) InsertChunk(ctx context.Context, c graph.Chunk, order int, docID string) (string, error) {
	id := graph.ChunkKey(c.FilePath, c.Content)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO chunks (id, doc_id, chunk_order, content, source_id, file_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc_id=excluded.doc_id, chunk_order=excluded.chunk_order,
			source_id=excluded.source_id, file_path=excluded.file_path`,
		id, docID, order, c.Content, c.SourceID, c.FilePath)
	if err != nil {
		return "", fmt.Errorf("insert chunk %s: %w", c.SourceID, err)
	}
	return id, nil
}

// Manifest returns chunk key -> {file_path, full_doc_id} for every stored
// chunk, one entry per (file, chunk).
func (s *Store) Manifest(ctx context.Context) (map[string]graph.ManifestEntry, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, file_path, doc_id FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	defer rows.Close()

	out := make(map[string]graph.ManifestEntry)
	for rows.Next() {
		var id string
		var e graph.ManifestEntry
		if err := rows.Scan(&id, &e.FilePath, &e.FullDocID); err != nil {
			return nil, err
		}
		out[id] = e
	}
	return out, rows.Err()
}

// Stats summarises the store's contents.
type Stats struct {
	Docs          int `json:"docs"`
	Chunks        int `json:"chunks"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// Stats counts documents, chunks, entities and relationships.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM doc_status", &st.Docs},
		{"SELECT COUNT(*) FROM chunks", &st.Chunks},
		{"SELECT COUNT(*) FROM entities", &st.Entities},
		{"SELECT COUNT(*) FROM relationships", &st.Relationships},
	}
	for _, c := range counts {
		if err := s.q.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}
