package socialgraph

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists friendship edges in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed edge store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the friendships table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS friendships (
			user_a     TEXT NOT NULL,
			user_b     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_a, user_b),
			CHECK (user_a < user_b)
		);

		CREATE INDEX IF NOT EXISTS idx_friendships_user_b
			ON friendships (user_b);
	`)
	return err
}

func (s *PostgresStore) SaveEdge(ctx context.Context, a, b string) error {
	ca, cb := canonical(a, b)
	if ca == cb {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friendships (user_a, user_b)
		VALUES ($1, $2)
		ON CONFLICT (user_a, user_b) DO NOTHING
	`, ca, cb)
	if err != nil {
		return fmt.Errorf("failed to save edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteEdge(ctx context.Context, a, b string) error {
	ca, cb := canonical(a, b)

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM friendships WHERE user_a = $1 AND user_b = $2
	`, ca, cb)
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEdges(ctx context.Context) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_a, user_b FROM friendships
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.UserA, &e.UserB); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
