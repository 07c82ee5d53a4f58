package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"snake-market/internal/model"
)

// SQLiteStore keeps the ledger and its journal in a SQLite database.
// Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and runs migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer at a time

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snake_scores (
			user_id TEXT PRIMARY KEY,
			last_known_name TEXT NOT NULL DEFAULT '',
			total_score INTEGER NOT NULL DEFAULT 0 CHECK (total_score >= 0),
			last_played INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snake_scores_total ON snake_scores(total_score DESC);`,
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_transactions_user_time ON ledger_transactions(user_id, created_at DESC);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return tx.Commit()
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]model.ScoreRecord, error) {
	const query = `
		SELECT user_id, last_known_name, total_score, last_played
		FROM snake_scores
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}
	defer rows.Close()

	var records []model.ScoreRecord
	for rows.Next() {
		var (
			r      model.ScoreRecord
			played int64
		)
		if err := rows.Scan(&r.UserID, &r.LastKnownName, &r.TotalScore, &played); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		r.LastPlayed = fromUnixNano(played)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}
	return records, nil
}

// Save implements Store. Records are upserted in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, records []model.ScoreRecord) error {
	const upsert = `
		INSERT INTO snake_scores (user_id, last_known_name, total_score, last_played)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_known_name = excluded.last_known_name,
			total_score = excluded.total_score,
			last_played = excluded.last_played
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("failed to prepare save: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.UserID, r.LastKnownName, r.TotalScore, toUnixNano(r.LastPlayed)); err != nil {
			return fmt.Errorf("failed to save score for %s: %w", r.UserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	return nil
}

// Append implements Journal.
func (s *SQLiteStore) Append(ctx context.Context, t *model.Transaction) error {
	const query = `
		INSERT INTO ledger_transactions (id, user_id, amount, type, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query, t.ID.String(), t.UserID, t.Amount, t.Type, t.Description, toUnixNano(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListByUser implements Journal, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, created_at
		FROM ledger_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var (
			t       model.Transaction
			id      string
			desc    sql.NullString
			created int64
		)
		if err := rows.Scan(&id, &t.UserID, &t.Amount, &t.Type, &desc, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction id %q: %w", id, err)
		}
		if desc.Valid {
			d := desc.String
			t.Description = &d
		}
		t.CreatedAt = fromUnixNano(created)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
