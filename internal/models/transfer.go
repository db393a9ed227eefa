package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalParty identifies the far side of an external or p2p transfer.
type ExternalParty struct {
	Name          string `json:"name,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

type Transfer struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	FromAccountID string          `json:"from_account_id" db:"from_account_id"`
	ToAccountID   string          `json:"to_account_id,omitempty" db:"to_account_id"`
	ToExternal    *ExternalParty  `json:"to_external,omitempty" db:"to_external"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	TransferType  string          `json:"transfer_type" db:"transfer_type"` // internal, external, p2p
	Status        string          `json:"status" db:"status"`               // pending or completed
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
