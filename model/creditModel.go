// model/creditModel.go
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionWelcomeBonus    = "Welcome bonus"
	ActionItinerary       = "Itinerary generation"
	ActionItineraryRefund = "Itinerary refund"
)

// CreditHistoryEntry is an append-only ledger row. Amount is the requested
// signed change; BalanceAfter is the clamped result.
type CreditHistoryEntry struct {
	ID           int64      `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Action       string     `json:"action"`
	Amount       int64      `json:"amount"`
	BalanceAfter int64      `json:"balance_after"`
	PurchaseID   *uuid.UUID `json:"purchase_id,omitempty"`
	ChargeID     *string    `json:"charge_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ClampedBalance applies a signed amount to a balance without going below zero.
func ClampedBalance(balance, amount int64) int64 {
	if next := balance + amount; next > 0 {
		return next
	}
	return 0
}

// ReplayHistory folds entries (oldest first) into the balance they imply.
func ReplayHistory(entries []CreditHistoryEntry) int64 {
	var bal int64
	for _, e := range entries {
		bal = ClampedBalance(bal, e.Amount)
	}
	return bal
}
