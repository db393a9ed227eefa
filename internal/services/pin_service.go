package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// PinService gates money movement behind a 6-digit transaction PIN.
// PINs share the argon2id storage format used for passwords.
type PinService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewPinService(db *sql.DB, validator *ValidationHelper) *PinService {
	return &PinService{db: db, validator: validator}
}

func isWellFormedPin(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// VerifyPin checks the submitted PIN against the stored hash. Format is
// checked before any lookup so a malformed PIN never hits the database.
func (ps *PinService) VerifyPin(userID, pin string) error {
	if !isWellFormedPin(pin) {
		return ErrMalformedPin
	}

	var pinHash sql.NullString
	err := ps.db.QueryRow(`SELECT transaction_pin_hash FROM users WHERE id = $1`, userID).Scan(&pinHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: user", ErrNotFound)
		}
		return err
	}
	if !pinHash.Valid || pinHash.String == "" {
		return ErrPinNotSet
	}

	if !verifyPassword(pin, pinHash.String) {
		return ErrInvalidPin
	}
	return nil
}

type setPinRequest struct {
	Pin string `json:"pin" validate:"required,len=6,numeric"`
}

// SetPin sets or replaces the transaction PIN
// @Summary Set transaction PIN
// @Description Set or replace the 6-digit PIN required for money movement
// @Tags settings
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} map[string]string
// @Router /settings/pin [post]
func (ps *PinService) SetPin(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req setPinRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ps.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !isWellFormedPin(req.Pin) {
		SendErrorResponse(w, "PIN must be exactly 6 digits", http.StatusBadRequest, nil)
		return
	}

	hash, err := hashPassword(req.Pin)
	if err != nil {
		log.Printf("[AUTH] PIN hashing failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to set PIN", http.StatusInternalServerError, nil)
		return
	}

	if _, err := ps.db.Exec(`
		UPDATE users SET transaction_pin_hash = $1, updated_at = NOW() WHERE id = $2`, hash, userID); err != nil {
		log.Printf("[AUTH] PIN update failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to set PIN", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Transaction PIN updated for user %s", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Transaction PIN updated"})
}
