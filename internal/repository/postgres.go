package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"snake-market/internal/model"
)

// PostgresStore keeps the ledger and its journal in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the ledger tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS snake_scores (
			user_id TEXT PRIMARY KEY,
			last_known_name TEXT NOT NULL DEFAULT '',
			total_score BIGINT NOT NULL DEFAULT 0 CHECK (total_score >= 0),
			last_played TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_snake_scores_total ON snake_scores(total_score DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to create snake_scores: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_transactions_user_time ON ledger_transactions(user_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to create ledger_transactions: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) ([]model.ScoreRecord, error) {
	const query = `
		SELECT user_id, last_known_name, total_score, last_played
		FROM snake_scores
		ORDER BY user_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}
	defer rows.Close()

	var records []model.ScoreRecord
	for rows.Next() {
		var r model.ScoreRecord
		if err := rows.Scan(&r.UserID, &r.LastKnownName, &r.TotalScore, &r.LastPlayed); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}
	return records, nil
}

// Save implements Store. All records are upserted in one transaction using a
// single batch round trip.
func (s *PostgresStore) Save(ctx context.Context, records []model.ScoreRecord) error {
	const upsert = `
		INSERT INTO snake_scores (user_id, last_known_name, total_score, last_played)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			last_known_name = EXCLUDED.last_known_name,
			total_score = EXCLUDED.total_score,
			last_played = EXCLUDED.last_played
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		played := r.LastPlayed
		if played.IsZero() {
			played = time.Unix(0, 0).UTC()
		}
		batch.Queue(upsert, r.UserID, r.LastKnownName, r.TotalScore, played)
	}

	br := tx.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to save score for %s: %w", r.UserID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close save batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	return nil
}

// Append implements Journal.
func (s *PostgresStore) Append(ctx context.Context, t *model.Transaction) error {
	const query = `
		INSERT INTO ledger_transactions (id, user_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if _, err := s.pool.Exec(ctx, query, t.ID, t.UserID, t.Amount, t.Type, t.Description, t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListByUser implements Journal, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, created_at
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}
