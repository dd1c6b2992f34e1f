package telegramrepo

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport marks any failed call to the Bot API.
var ErrTransport = errors.New("telegram: downstream transport error")

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

func (e *APIError) Unwrap() error { return ErrTransport }

type InvoiceReq struct {
	Title       string
	Description string
	Payload     string
	Currency    string
	Amount      int64
	Label       string
}

// Button is an inline keyboard button that opens WebAppURL as a Mini-App.
type Button struct {
	Text      string
	WebAppURL string
}

type Repo interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	// SendWebAppButton sends text with one inline button that opens the Mini-App.
	SendWebAppButton(ctx context.Context, chatID int64, text string, btn Button) error
	CreateInvoiceLink(ctx context.Context, req InvoiceReq) (string, error)
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errMsg string) error
	RefundStarPayment(ctx context.Context, userID int64, chargeID string) error
	SetWebhook(ctx context.Context, url, secretToken string) error
}
