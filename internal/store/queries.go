package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cohortq/internal/queryast"
)

// ErrNotFound is returned when no saved query has the requested id.
var ErrNotFound = errors.New("saved query not found")

// SavedQuery is a named cohort selection.
type SavedQuery struct {
	ID          string
	Name        string
	Description string

	// Seq and Fingerprint are assigned by SaveQuery.
	Seq         int64
	Fingerprint string

	// Full is the full-mode document; Restricted is the backend document.
	Full       queryast.Node
	Restricted queryast.Node
}

// SaveQuery stores q and returns it with its id, seq and fingerprint set.
// An empty ID gets a fresh id from the store's IDGenerator. Saving an existing id replaces the row
// and moves it to the end of the listing order.
func (s *Store) SaveQuery(ctx context.Context, q SavedQuery) (SavedQuery, error) {
	if q.Name == "" {
		return SavedQuery{}, fmt.Errorf("save query: name is required")
	}
	if q.Full == nil || q.Restricted == nil {
		return SavedQuery{}, fmt.Errorf("save query %q: both documents are required", q.Name)
	}

	full, err := queryast.Marshal(q.Full)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("save query %q: full document: %w", q.Name, err)
	}
	restricted, err := queryast.Marshal(q.Restricted)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("save query %q: restricted document: %w", q.Name, err)
	}
	fingerprint, err := queryast.Fingerprint(q.Restricted)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("save query %q: %w", q.Name, err)
	}

	if q.ID == "" {
		q.ID = s.ids.Generate()
	}
	q.Seq = s.clock.next()
	q.Fingerprint = fingerprint

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_queries
		(id, name, description, seq, fingerprint, full_doc, restricted_doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			seq = excluded.seq,
			fingerprint = excluded.fingerprint,
			full_doc = excluded.full_doc,
			restricted_doc = excluded.restricted_doc
	`,
		q.ID,
		q.Name,
		q.Description,
		q.Seq,
		q.Fingerprint,
		string(full),
		string(restricted),
	)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("save query %q: %w", q.Name, err)
	}

	s.logger.Debug("query saved", "id", q.ID, "name", q.Name, "seq", q.Seq)
	return q, nil
}

// GetQuery returns the saved query with id, or an error wrapping ErrNotFound.
func (s *Store) GetQuery(ctx context.Context, id string) (SavedQuery, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, seq, fingerprint, full_doc, restricted_doc
		FROM saved_queries
		WHERE id = ?
	`, id)
	q, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedQuery{}, fmt.Errorf("get query %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SavedQuery{}, fmt.Errorf("get query %s: %w", id, err)
	}
	return q, nil
}

// ListQueries returns every saved query ordered by seq ASC, id ASC.
// Returns an empty slice (not nil) when nothing is saved.
func (s *Store) ListQueries(ctx context.Context) ([]SavedQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, seq, fingerprint, full_doc, restricted_doc
		FROM saved_queries
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return collectQueries(rows)
}

// FindByFingerprint returns the saved queries whose restricted document has
// the given fingerprint, ordered by seq ASC, id ASC.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) ([]SavedQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, seq, fingerprint, full_doc, restricted_doc
		FROM saved_queries
		WHERE fingerprint = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("find queries by fingerprint: %w", err)
	}
	return collectQueries(rows)
}

// DeleteQuery removes the saved query with id, or returns an error wrapping
// ErrNotFound.
func (s *Store) DeleteQuery(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete query %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("query deleted", "id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuery(row scanner) (SavedQuery, error) {
	var (
		q          SavedQuery
		full       string
		restricted string
	)
	if err := row.Scan(&q.ID, &q.Name, &q.Description, &q.Seq, &q.Fingerprint, &full, &restricted); err != nil {
		return SavedQuery{}, err
	}

	var err error
	if q.Full, err = queryast.Unmarshal([]byte(full)); err != nil {
		return SavedQuery{}, fmt.Errorf("decode full document of %s: %w", q.ID, err)
	}
	if q.Restricted, err = queryast.Unmarshal([]byte(restricted)); err != nil {
		return SavedQuery{}, fmt.Errorf("decode restricted document of %s: %w", q.ID, err)
	}
	return q, nil
}

func collectQueries(rows *sql.Rows) ([]SavedQuery, error) {
	defer rows.Close()

	queries := []SavedQuery{}
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return queries, nil
}
