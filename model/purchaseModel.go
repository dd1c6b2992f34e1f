// model/purchaseModel.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Purchase is created once per successful payment. ChargeID is the
// telegram_payment_charge_id and is unique across purchases.
type Purchase struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	ItemID         ItemID    `json:"item_id"`
	ItemName       string    `json:"item_name"`
	Price          int64     `json:"price"`
	CreditsGranted int64     `json:"credits_granted"`
	ChargeID       string    `json:"charge_id"`
	IsRefunded     bool      `json:"is_refunded"`
	CreatedAt      time.Time `json:"created_at"`
}

type Refund struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	ChargeID   string    `json:"charge_id"`
	PurchaseID uuid.UUID `json:"purchase_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// PurchaseStats are all-time totals over purchases, in Stars.
type PurchaseStats struct {
	GrossRevenue    int64 `json:"gross_revenue"`
	RefundedRevenue int64 `json:"refunded_revenue"`
	Purchases       int64 `json:"purchases"`
	Refunds         int64 `json:"refunds"`
}

// DayRevenue is the net revenue of non-refunded purchases made on Day (UTC).
type DayRevenue struct {
	Day     time.Time `json:"day"`
	Revenue int64     `json:"revenue"`
}
