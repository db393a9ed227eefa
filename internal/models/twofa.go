package models

import "time"

// OTPChallenge is the single outstanding login challenge for a user.
// Issuing a new challenge replaces any previous row.
type OTPChallenge struct {
	UserID    string    `json:"user_id" db:"user_id"`
	OTPHash   string    `json:"-" db:"otp_hash"`
	Salt      string    `json:"-" db:"salt"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Attempts  int       `json:"attempts" db:"attempts"`
}
