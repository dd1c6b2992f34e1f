package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	TelegramID   int64     `json:"telegram_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username"`
	Credits      int64     `json:"credits"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Profile holds the optional fields copied from the Telegram account.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// BootstrapReq represents the user bootstrap payload
// swagger:model BootstrapReq
type BootstrapReq struct {
	TelegramID int64  `json:"telegramId" validate:"required,gt=0"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Username   string `json:"username"`
}

func (r BootstrapReq) Profile() Profile {
	return Profile{FirstName: r.FirstName, LastName: r.LastName, Username: r.Username}
}

// AdminLoginReq represents the dashboard login payload
// swagger:model AdminLoginReq
type AdminLoginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
