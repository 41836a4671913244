package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeusData/repo-graphrag/internal/graph"
)

// InsertStats reports what InsertCustomGraph wrote.
type InsertStats struct {
	Chunks        int
	Entities      int
	Relationships int
	// Dropped counts relationships whose endpoints did not exist.
	Dropped int
}

// InsertCustomGraph writes one document's chunks, entities and relationships
// in a single transaction, tagging all of them with docID. Relationships
// whose endpoints are neither in this batch nor already stored are dropped.
func (s *Store) InsertCustomGraph(ctx context.Context, docID string, g graph.CustomGraph) (InsertStats, error) {
	var st InsertStats
	err := s.WithTransaction(ctx, func(tx *Store) error {
		for i, c := range g.Chunks {
			if _, err := tx.InsertChunk(ctx, c, i, docID); err != nil {
				return err
			}
			st.Chunks++
		}
		for _, e := range g.Entities {
			if err := tx.UpsertEntity(ctx, e, docID); err != nil {
				return err
			}
			st.Entities++
		}
		for _, r := range g.Relationships {
			ok, err := tx.endpointsExist(ctx, r)
			if err != nil {
				return err
			}
			if !ok {
				st.Dropped++
				continue
			}
			if err := tx.InsertRelationship(ctx, r, docID); err != nil {
				return err
			}
			st.Relationships++
		}
		return nil
	})
	if err != nil {
		return InsertStats{}, fmt.Errorf("insert custom graph %s: %w", docID, err)
	}
	if st.Dropped > 0 {
		slog.Warn("store.dangling_relationships", "doc", docID, "dropped", st.Dropped)
	}
	return st, nil
}

func (s *Store) endpointsExist(ctx context.Context, r graph.Relationship) (bool, error) {
	for _, name := range []string{r.SrcID, r.TgtID} {
		ok, err := s.HasNode(ctx, name)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// MergeEntities folds every source entity into target. Edges of the sources
// are moved onto the target, their provenance documents are transferred,
// and the target takes data's description and path list. A missing target
// is created from data.
func (s *Store) MergeEntities(ctx context.Context, sources []string, target string, data graph.TargetData) error {
	err := s.WithTransaction(ctx, func(tx *Store) error {
		exists, err := tx.HasNode(ctx, target)
		if err != nil {
			return err
		}
		if !exists {
			if err := tx.UpsertEntity(ctx, graph.Entity{Name: target, Paths: data.Paths}, ""); err != nil {
				return err
			}
		}

		for _, src := range sources {
			if src == target {
				continue
			}
			ok, err := tx.HasNode(ctx, src)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := tx.repointRelationships(ctx, src, target); err != nil {
				return err
			}
			if _, err := tx.q.ExecContext(ctx, `
				INSERT OR IGNORE INTO entity_docs (entity_name, doc_id)
				SELECT ?, doc_id FROM entity_docs WHERE entity_name=?`, target, src); err != nil {
				return fmt.Errorf("move provenance %s: %w", src, err)
			}
			if _, err := tx.q.ExecContext(ctx, `DELETE FROM entities WHERE name=?`, src); err != nil {
				return fmt.Errorf("delete %s: %w", src, err)
			}
		}

		_, err = tx.q.ExecContext(ctx, `UPDATE entities SET description=?, file_path=?, updated_at=? WHERE name=?`,
			data.Description, graph.JoinPaths(data.Paths), Now(), target)
		if err != nil {
			return fmt.Errorf("update target: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("merge into %s: %w", target, err)
	}
	return nil
}

// DeleteByDocID removes everything a document contributed: its chunks,
// relationships, status and full text. Entities lose the document as
// provenance (and its file path) and are removed once no provenance is left.
func (s *Store) DeleteByDocID(ctx context.Context, docID string) error {
	err := s.WithTransaction(ctx, func(tx *Store) error {
		var docPath string
		_ = tx.q.QueryRowContext(ctx, `
			SELECT file_path FROM full_docs WHERE id=?
			UNION ALL SELECT file_path FROM doc_status WHERE id=?
			LIMIT 1`, docID, docID).Scan(&docPath)

		names, err := tx.docEntities(ctx, docID)
		if err != nil {
			return err
		}

		for _, q := range []string{
			`DELETE FROM chunks WHERE doc_id=?`,
			`DELETE FROM relationships WHERE doc_id=?`,
			`DELETE FROM entity_docs WHERE doc_id=?`,
			`DELETE FROM doc_status WHERE id=?`,
			`DELETE FROM full_docs WHERE id=?`,
		} {
			if _, err := tx.q.ExecContext(ctx, q, docID); err != nil {
				return fmt.Errorf("%s: %w", q, err)
			}
		}

		for _, name := range names {
			if err := tx.pruneEntity(ctx, name, docPath); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete doc %s: %w", docID, err)
	}
	return nil
}

func (s *Store) docEntities(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT entity_name FROM entity_docs WHERE doc_id=?`, docID)
	if err != nil {
		return nil, fmt.Errorf("doc entities: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// pruneEntity deletes name when it has no provenance left, otherwise drops
// docPath from its path list.
func (s *Store) pruneEntity(ctx context.Context, name, docPath string) error {
	var remaining int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entity_docs WHERE entity_name=?`, name).Scan(&remaining); err != nil {
		return fmt.Errorf("count provenance %s: %w", name, err)
	}
	if remaining == 0 {
		if _, err := s.q.ExecContext(ctx, `DELETE FROM entities WHERE name=?`, name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
		return nil
	}
	if docPath == "" {
		return nil
	}

	e, err := s.GetNode(ctx, name)
	if err != nil || e == nil {
		return err
	}
	kept := make([]string, 0, len(e.Paths))
	for _, p := range e.Paths {
		if p != docPath {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(e.Paths) {
		return nil
	}
	if len(kept) == 0 {
		// same basename and definition in two files: the surviving doc owns it
		if kept, err = s.provenancePaths(ctx, name); err != nil {
			return err
		}
	}
	_, err = s.q.ExecContext(ctx, `UPDATE entities SET file_path=?, updated_at=? WHERE name=?`, graph.JoinPaths(kept), Now(), name)
	return err
}

// provenancePaths returns the file paths of the documents name still
// belongs to, sorted.
func (s *Store) provenancePaths(ctx context.Context, name string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT p FROM (
			SELECT COALESCE(NULLIF(ds.file_path, ''), fd.file_path, '') AS p
			FROM entity_docs ed
			LEFT JOIN doc_status ds ON ds.id = ed.doc_id
			LEFT JOIN full_docs fd ON fd.id = ed.doc_id
			WHERE ed.entity_name=?
		) WHERE p != '' ORDER BY p`, name)
	if err != nil {
		return nil, fmt.Errorf("provenance paths %s: %w", name, err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
