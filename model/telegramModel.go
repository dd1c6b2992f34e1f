// model/telegramModel.go
package model

// Subset of the Telegram Bot API Update object that the bot reacts to.
type Update struct {
	UpdateID         int64             `json:"update_id"`
	Message          *Message          `json:"message,omitempty"`
	PreCheckoutQuery *PreCheckoutQuery `json:"pre_checkout_query,omitempty"`
}

type TgUser struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

func (u TgUser) Profile() Profile {
	return Profile{FirstName: u.FirstName, LastName: u.LastName, Username: u.Username}
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type Message struct {
	MessageID         int64              `json:"message_id"`
	From              *TgUser            `json:"from,omitempty"`
	Chat              Chat               `json:"chat"`
	Date              int64              `json:"date"`
	Text              string             `json:"text,omitempty"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment,omitempty"`
}

type SuccessfulPayment struct {
	Currency                string `json:"currency"`
	TotalAmount             int64  `json:"total_amount"`
	InvoicePayload          string `json:"invoice_payload"`
	TelegramPaymentChargeID string `json:"telegram_payment_charge_id"`
	ProviderPaymentChargeID string `json:"provider_payment_charge_id"`
}

type PreCheckoutQuery struct {
	ID             string `json:"id"`
	From           TgUser `json:"from"`
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

// LaunchUser is the user object embedded in Mini-App launch data.
type LaunchUser struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name,omitempty"`
	Username        string `json:"username,omitempty"`
	LanguageCode    string `json:"language_code,omitempty"`
	IsPremium       bool   `json:"is_premium,omitempty"`
	AllowsWriteToPM bool   `json:"allows_write_to_pm,omitempty"`
	PhotoURL        string `json:"photo_url,omitempty"`
}

func (u LaunchUser) Profile() Profile {
	return Profile{FirstName: u.FirstName, LastName: u.LastName, Username: u.Username}
}

// VerifyReq represents the Mini-App auth payload
// swagger:model VerifyReq
type VerifyReq struct {
	InitData string `json:"initData" validate:"required"`
}

// ItineraryReq represents a trip planning request
// swagger:model ItineraryReq
type ItineraryReq struct {
	Prompt string `json:"prompt" validate:"required,min=3,max=2000"`
}
