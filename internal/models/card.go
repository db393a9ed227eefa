package models

import "time"

type Card struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	AccountID  string    `json:"account_id" db:"account_id"`
	CardNumber string    `json:"card_number" db:"card_number"`
	CVV        string    `json:"-" db:"cvv"`
	Expiry     string    `json:"expiry" db:"expiry"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
