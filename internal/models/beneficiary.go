package models

import "time"

// Beneficiary is a designated recipient on the user's estate, with a
// payout percentage across all beneficiaries.
type Beneficiary struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	FullName     string    `json:"full_name" db:"full_name"`
	Relationship string    `json:"relationship" db:"relationship"`
	Email        string    `json:"email,omitempty" db:"email"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	Percentage   int       `json:"percentage" db:"percentage"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
