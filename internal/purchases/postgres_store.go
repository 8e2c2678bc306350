package purchases

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists purchase records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed purchase store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the purchases table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS purchases (
			seq      BIGINT PRIMARY KEY,
			user_id  TEXT NOT NULL,
			ts       TIMESTAMPTZ NOT NULL,
			amount   NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
			seeded   BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX IF NOT EXISTS idx_purchases_user_seq
			ON purchases (user_id, seq DESC);
	`)
	return err
}

func (s *PostgresStore) SaveRecord(ctx context.Context, user string, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (seq, user_id, ts, amount, seeded)
		VALUES ($1, $2, $3, $4, $5)
	`,
		int64(rec.Seq),
		user,
		rec.Timestamp,
		rec.Amount,
		rec.Seeded,
	)
	if err != nil {
		return fmt.Errorf("failed to save purchase %d: %w", rec.Seq, err)
	}
	return nil
}

func (s *PostgresStore) RecentByUser(ctx context.Context, user string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts, amount, seeded
		FROM purchases
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, user_id, ts, amount, seeded
		FROM purchases
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []UserRecord
	for rows.Next() {
		var (
			seq    int64
			ur     UserRecord
			amount float64
		)
		if err := rows.Scan(&seq, &ur.User, &ur.Timestamp, &amount, &ur.Seeded); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		ur.Seq = uint64(seq)
		ur.Amount = amount
		out = append(out, ur)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		seq int64
		rec Record
	)
	if err := rows.Scan(&seq, &rec.Timestamp, &rec.Amount, &rec.Seeded); err != nil {
		return Record{}, fmt.Errorf("failed to scan purchase: %w", err)
	}
	rec.Seq = uint64(seq)
	return rec, nil
}
