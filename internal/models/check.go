package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Check struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	AccountID   string          `json:"account_id" db:"account_id"`
	CheckNumber string          `json:"check_number" db:"check_number"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Status      string          `json:"status" db:"status"` // checks clear asynchronously, start pending
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type CheckOrder struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
