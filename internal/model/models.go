// Package model defines the data models for the snake market.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ScoreRecord is the durable point balance of one player.
type ScoreRecord struct {
	UserID        string    `json:"user_id" db:"user_id"`
	LastKnownName string    `json:"last_known_name" db:"last_known_name"`
	TotalScore    int64     `json:"total_score" db:"total_score"`
	LastPlayed    time.Time `json:"last_played" db:"last_played"`
}

// Transaction is one journal entry describing a balance change.
type Transaction struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"`
	Type        string    `json:"type" db:"type"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeAward        = "award"         // Completed run credited at face value
	TxTypeAwardDoubled = "award_doubled" // Completed run credited with the multiplier
	TxTypePurchase     = "purchase"      // Storefront purchase
	TxTypeAdminAdd     = "admin_add"     // Admin added points
	TxTypeAdminSet     = "admin_set"     // Admin set the balance
)
