// Package mlmodels tracks the detection-model releases an edge device can
// download. Handshake responses carry the latest active descriptor so the
// device can compare hashes and decide whether to pull.
package mlmodels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoActiveModel = errors.New("no active model version")

type ModelVersion struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Version     string    `json:"version"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	Active      bool      `json:"active"`
	PublishedAt time.Time `json:"published_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Publish registers a new model release. Activating it deactivates any
// previous active release for the same slug in one transaction.
func (s *Store) Publish(ctx context.Context, slug, version, contentHash string, sizeBytes int64, activate bool) (*ModelVersion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if activate {
		if _, err := tx.Exec(ctx,
			`UPDATE model_versions SET active = FALSE WHERE slug = $1 AND active`, slug); err != nil {
			return nil, fmt.Errorf("deactivate previous: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO model_versions (slug, version, content_hash, size_bytes, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, slug, version, content_hash, size_bytes, active, published_at`,
		slug, version, contentHash, sizeBytes, activate)
	m, err := scanModel(row)
	if err != nil {
		return nil, fmt.Errorf("insert model version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// LatestActive returns the newest active release across all slugs.
func (s *Store) LatestActive(ctx context.Context) (*ModelVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, slug, version, content_hash, size_bytes, active, published_at
		FROM model_versions WHERE active
		ORDER BY published_at DESC LIMIT 1`)
	m, err := scanModel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveModel
		}
		return nil, fmt.Errorf("latest active model: %w", err)
	}
	return m, nil
}

func (s *Store) List(ctx context.Context) ([]ModelVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, slug, version, content_hash, size_bytes, active, published_at
		FROM model_versions ORDER BY published_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	defer rows.Close()

	var out []ModelVersion
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanModel(row pgx.Row) (*ModelVersion, error) {
	var m ModelVersion
	if err := row.Scan(&m.ID, &m.Slug, &m.Version, &m.ContentHash,
		&m.SizeBytes, &m.Active, &m.PublishedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
