package store

import (
	"context"
	"fmt"

	"github.com/DeusData/repo-graphrag/internal/graph"
)

// InsertRelationship inserts or updates a relationship (dedup by src, tgt).
// Both endpoints must already exist; callers check with HasNode.
func (s *Store) InsertRelationship(ctx context.Context, r graph.Relationship, docID string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO relationships (src, tgt, description, keywords, weight, source_id, file_path, doc_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(src, tgt) DO UPDATE SET
			description=excluded.description, keywords=excluded.keywords, weight=excluded.weight,
			source_id=excluded.source_id, file_path=excluded.file_path, doc_id=excluded.doc_id`,
		r.SrcID, r.TgtID, r.Description, r.Keywords, r.Weight, r.SourceID, r.FilePath, docID)
	if err != nil {
		return fmt.Errorf("insert relationship %s -> %s: %w", r.SrcID, r.TgtID, err)
	}
	return nil
}

// FindRelationships returns relationships touching name in either direction.
func (s *Store) FindRelationships(ctx context.Context, name string) ([]graph.Relationship, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT src, tgt, description, keywords, weight, source_id, file_path
		FROM relationships WHERE src=? OR tgt=? ORDER BY id`, name, name)
	if err != nil {
		return nil, fmt.Errorf("find relationships %s: %w", name, err)
	}
	defer rows.Close()

	var out []graph.Relationship
	for rows.Next() {
		var r graph.Relationship
		if err := rows.Scan(&r.SrcID, &r.TgtID, &r.Description, &r.Keywords, &r.Weight, &r.SourceID, &r.FilePath); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRelationships returns the number of relationships.
func (s *Store) CountRelationships(ctx context.Context) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM relationships").Scan(&count)
	return count, err
}

// repointRelationships moves every edge of from onto to. Edges that would
// duplicate an existing one or become self loops are dropped.
func (s *Store) repointRelationships(ctx context.Context, from, to string) error {
	stmts := []string{
		`UPDATE OR IGNORE relationships SET src=? WHERE src=?`,
		`UPDATE OR IGNORE relationships SET tgt=? WHERE tgt=?`,
	}
	for _, q := range stmts {
		if _, err := s.q.ExecContext(ctx, q, to, from); err != nil {
			return fmt.Errorf("repoint %s -> %s: %w", from, to, err)
		}
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM relationships WHERE src=? OR tgt=?`, from, from); err != nil {
		return fmt.Errorf("drop leftover edges of %s: %w", from, err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM relationships WHERE src=tgt`); err != nil {
		return fmt.Errorf("drop self loops: %w", err)
	}
	return nil
}
