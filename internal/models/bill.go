package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bill struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	PayeeName     string    `json:"payee_name" db:"payee_name"`
	AccountNumber string    `json:"account_number" db:"account_number"`
	BillType      string    `json:"bill_type" db:"bill_type"`
	AutoPay       bool      `json:"auto_pay" db:"auto_pay"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type BillPayment struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	BillID      string          `json:"bill_id" db:"bill_id"`
	AccountID   string          `json:"account_id" db:"account_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PaymentDate string          `json:"payment_date" db:"payment_date"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
