package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DeusData/repo-graphrag/internal/graph"
)

const entityColumns = `name, type, description, source_id, file_path`

// UpsertEntity inserts or updates an entity (dedup by name) and records docID
// as one of its provenance documents. An entity that already absorbed others
// keeps its merged description and path list.
func (s *Store) UpsertEntity(ctx context.Context, e graph.Entity, docID string) error {
	now := Now()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO entities (name, type, description, source_id, file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type=excluded.type,
			source_id=excluded.source_id,
			description=CASE WHEN instr(entities.file_path, ?) > 0 THEN entities.description ELSE excluded.description END,
			file_path=CASE WHEN instr(entities.file_path, ?) > 0 THEN entities.file_path ELSE excluded.file_path END,
			updated_at=excluded.updated_at`,
		e.Name, e.Type, e.Description, e.SourceID, e.FilePath(), now, now, graph.Sep, graph.Sep)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.Name, err)
	}
	if docID == "" {
		return nil
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO entity_docs (entity_name, doc_id) VALUES (?, ?)`, e.Name, docID); err != nil {
		return fmt.Errorf("entity provenance %s: %w", e.Name, err)
	}
	return nil
}

// GetNode returns the entity with the given name, or nil if it does not exist.
func (s *Store) GetNode(ctx context.Context, name string) (*graph.Entity, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE name=?`, name)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", name, err)
	}
	return e, nil
}

// HasNode reports whether an entity with the given name exists.
func (s *Store) HasNode(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE name=?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has node %s: %w", name, err)
	}
	return true, nil
}

// ListAllEntityNames returns every entity name, sorted.
func (s *Store) ListAllEntityNames(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT name FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list entity names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListEntities returns every entity, sorted by name.
func (s *Store) ListEntities(ctx context.Context) ([]*graph.Entity, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*graph.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEntities returns the number of entities.
func (s *Store) CountEntities(ctx context.Context) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&count)
	return count, err
}

// EntityDocs returns the provenance document ids of an entity.
func (s *Store) EntityDocs(ctx context.Context, name string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT doc_id FROM entity_docs WHERE entity_name=? ORDER BY doc_id`, name)
	if err != nil {
		return nil, fmt.Errorf("entity docs %s: %w", name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*graph.Entity, error) {
	var e graph.Entity
	var filePath string
	if err := row.Scan(&e.Name, &e.Type, &e.Description, &e.SourceID, &filePath); err != nil {
		return nil, err
	}
	e.Paths = graph.SplitPaths(filePath)
	return &e, nil
}
