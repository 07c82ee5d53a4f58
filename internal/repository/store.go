// Package repository provides the durable backends behind the score ledger.
package repository

import (
	"context"
	"errors"
	"sort"

	"snake-market/internal/model"
)

// Common errors for repository operations.
var (
	ErrCorruptStore = errors.New("score store is corrupt")
)

// Store persists the complete set of score records. Save always receives
// every record; backends may upsert or rewrite.
type Store interface {
	Load(ctx context.Context) ([]model.ScoreRecord, error)
	Save(ctx context.Context, records []model.ScoreRecord) error
}

// Journal records individual balance changes.
type Journal interface {
	Append(ctx context.Context, tx *model.Transaction) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Transaction, error)
}

func sortRecords(records []model.ScoreRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
}
