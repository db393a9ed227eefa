package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                  string          `json:"id" db:"id"`
	Email               string          `json:"email" db:"email"`
	FullName            string          `json:"full_name" db:"full_name"`
	Phone               string          `json:"phone" db:"phone"`
	Address             string          `json:"address" db:"address"`
	Role                string          `json:"role" db:"role"` // user or admin
	AccountStatus       string          `json:"account_status" db:"account_status"` // active, suspended, blocked
	TransactionsBlocked bool            `json:"transactions_blocked" db:"transactions_blocked"`
	TwoFactorEnabled    bool            `json:"two_factor_enabled" db:"two_factor_enabled"`
	Preferences         json.RawMessage `json:"notification_preferences" db:"notification_preferences"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// NotificationPreferences holds the durable per-user email toggles.
// Ephemeral 2FA state lives in its own tables, never in this blob.
type NotificationPreferences struct {
	EmailTransactions bool `json:"email_transactions"`
	EmailBills        bool `json:"email_bills"`
	EmailSecurity     bool `json:"email_security"`
	EmailMarketing    bool `json:"email_marketing"`
}

// DefaultNotificationPreferences returns the defaults applied when a user
// has no stored preference for a category.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailTransactions: true,
		EmailBills:        true,
		EmailSecurity:     true,
		EmailMarketing:    false,
	}
}
