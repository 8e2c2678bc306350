package flags

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists evaluation decisions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the flags table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS flags (
			id         TEXT PRIMARY KEY,
			seq        BIGINT NOT NULL,
			user_id    TEXT NOT NULL,
			amount     NUMERIC(14,2) NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			mean       DOUBLE PRECISION NOT NULL,
			stddev     DOUBLE PRECISION NOT NULL,
			ref_count  INT NOT NULL,
			flagged    BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_flags_created ON flags (created_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_flags_user ON flags (user_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, d *Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (id, seq, user_id, amount, ts, mean, stddev, ref_count, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		d.ID, int64(d.Seq), d.User, d.Amount, d.Timestamp,
		d.Mean, d.Stddev, d.RefCount, d.Flagged, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, user_id, amount, ts, mean, stddev, ref_count, flagged, created_at
		FROM flags WHERE id = $1
	`, id)

	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("decision %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter, before time.Time, beforeID string, limit int) ([]*Decision, error) {
	query := `
		SELECT id, seq, user_id, amount, ts, mean, stddev, ref_count, flagged, created_at
		FROM flags
		WHERE 1=1`
	args := []any{}
	n := 0

	if !before.IsZero() {
		args = append(args, before, beforeID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", n+1, n+2)
		n += 2
	}
	if filter.User != "" {
		args = append(args, filter.User)
		query += fmt.Sprintf(" AND user_id = $%d", n+1)
		n++
	}
	if filter.FlaggedOnly {
		query += " AND flagged"
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", n+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, flaggedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM flags`
	if flaggedOnly {
		query += ` WHERE flagged`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*Decision, error) {
	var (
		d   Decision
		seq int64
	)
	err := row.Scan(&d.ID, &seq, &d.User, &d.Amount, &d.Timestamp,
		&d.Mean, &d.Stddev, &d.RefCount, &d.Flagged, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Seq = uint64(seq)
	return &d, nil
}
