package models

import "time"

type Notification struct {
	ID             int       `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Type           string    `json:"type" db:"type"`
	Message        string    `json:"message" db:"message"`
	DeliveryMethod string    `json:"delivery_method" db:"delivery_method"`
	Read           bool      `json:"read" db:"read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
