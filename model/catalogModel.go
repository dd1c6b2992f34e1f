// model/catalogModel.go
package model

import (
	"errors"
	"fmt"
)

// StarsCurrency is the Telegram currency code for Stars.
const StarsCurrency = "XTR"

var ErrUnknownItem = errors.New("unknown item id")

type ItemID string

const (
	ItemBasicPlan    ItemID = "basic_plan"
	ItemStandardPlan ItemID = "standard_plan"
	ItemPremiumPlan  ItemID = "premium_plan"
)

// Item is a purchasable credit pack. Price is in Stars.
type Item struct {
	ID          ItemID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Credits     int64  `json:"credits"`
	Bonus       int64  `json:"bonus"`
}

// Grant is the number of credits a purchase of the item adds.
func (i Item) Grant() int64 { return i.Credits + i.Bonus }

func ParseItemID(s string) (ItemID, error) {
	id := ItemID(s)
	if _, ok := id.lookup(); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownItem, s)
	}
	return id, nil
}

// Item returns the catalog entry. Callers get an ItemID from ParseItemID or
// one of the constants, so the zero Item only shows up for hand-built ids.
func (id ItemID) Item() Item {
	it, _ := id.lookup()
	return it
}

func (id ItemID) lookup() (Item, bool) {
	switch id {
	case ItemBasicPlan:
		return Item{
			ID:          id,
			Name:        "Basic Plan",
			Description: "25 credits + 5 bonus for trip planning",
			Price:       2,
			Credits:     25,
			Bonus:       5,
		}, true
	case ItemStandardPlan:
		return Item{
			ID:          id,
			Name:        "Standard Plan",
			Description: "70 credits + 15 bonus for trip planning",
			Price:       5,
			Credits:     70,
			Bonus:       15,
		}, true
	case ItemPremiumPlan:
		return Item{
			ID:          id,
			Name:        "Premium Plan",
			Description: "150 credits + 50 bonus for trip planning",
			Price:       10,
			Credits:     150,
			Bonus:       50,
		}, true
	}
	return Item{}, false
}

// Catalog lists every item in display order.
func Catalog() []Item {
	ids := []ItemID{ItemBasicPlan, ItemStandardPlan, ItemPremiumPlan}
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Item())
	}
	return out
}

// InvoicePayload is the opaque payload attached to a Stars invoice and echoed
// back in pre_checkout_query and successful_payment.
type InvoicePayload struct {
	ItemID ItemID `json:"itemId"`
	UserID int64  `json:"userId"`
}

// CreateInvoiceReq represents the invoice creation payload
// swagger:model CreateInvoiceReq
type CreateInvoiceReq struct {
	ItemID string `json:"itemId" validate:"required"`
	UserID int64  `json:"userId" validate:"required,gt=0"`
}
