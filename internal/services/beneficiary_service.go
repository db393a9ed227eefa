package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conciergebank/backend/internal/models"
)

// BeneficiaryService manages the user's designated beneficiaries.
type BeneficiaryService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewBeneficiaryService(db *sql.DB, validator *ValidationHelper) *BeneficiaryService {
	return &BeneficiaryService{db: db, validator: validator}
}

type beneficiaryRequest struct {
	FullName     string `json:"full_name" validate:"required,min=2,max=100"`
	Relationship string `json:"relationship" validate:"required,min=2,max=50"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"omitempty,e164"`
	Percentage   int    `json:"percentage" validate:"required,min=1,max=100"`
}

// ListBeneficiaries lists the user's beneficiaries
// @Summary List beneficiaries
// @Description List the authenticated user's designated beneficiaries
// @Tags beneficiaries
// @Produce json
// @Success 200 {array} models.Beneficiary
// @Router /beneficiaries [get]
func (bns *BeneficiaryService) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := bns.db.Query(`
		SELECT id, user_id, full_name, relationship, COALESCE(email, ''), COALESCE(phone, ''), percentage, created_at
		FROM beneficiaries WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		log.Printf("[BENEFICIARY] Failed to list beneficiaries for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch beneficiaries", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	beneficiaries := []models.Beneficiary{}
	for rows.Next() {
		var b models.Beneficiary
		if err := rows.Scan(&b.ID, &b.UserID, &b.FullName, &b.Relationship,
			&b.Email, &b.Phone, &b.Percentage, &b.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch beneficiaries", http.StatusInternalServerError, nil)
			return
		}
		beneficiaries = append(beneficiaries, b)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch beneficiaries", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(beneficiaries)
}

// AddBeneficiary registers a new beneficiary
// @Summary Add a beneficiary
// @Description Designate a new beneficiary for the authenticated user
// @Tags beneficiaries
// @Accept json
// @Produce json
// @Success 201 {object} models.Beneficiary
// @Failure 400 {object} ErrorResponse
// @Router /beneficiaries [post]
func (bns *BeneficiaryService) AddBeneficiary(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req beneficiaryRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := bns.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	beneficiary := models.Beneficiary{
		ID:           uuid.New().String(),
		UserID:       userID,
		FullName:     req.FullName,
		Relationship: req.Relationship,
		Email:        req.Email,
		Phone:        req.Phone,
		Percentage:   req.Percentage,
	}
	err := bns.db.QueryRow(`
		INSERT INTO beneficiaries (id, user_id, full_name, relationship, email, phone, percentage, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NOW()) RETURNING created_at`,
		beneficiary.ID, beneficiary.UserID, beneficiary.FullName, beneficiary.Relationship,
		beneficiary.Email, beneficiary.Phone, beneficiary.Percentage).
		Scan(&beneficiary.CreatedAt)
	if err != nil {
		log.Printf("[BENEFICIARY] Failed to add beneficiary for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to add beneficiary", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[BENEFICIARY] Beneficiary %s added for user %s", beneficiary.ID, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(beneficiary)
}

// UpdateBeneficiary replaces a beneficiary's details
// @Summary Update a beneficiary
// @Description Update one of the user's beneficiaries
// @Tags beneficiaries
// @Accept json
// @Produce json
// @Param id path string true "Beneficiary ID"
// @Success 200 {object} models.Beneficiary
// @Failure 404 {object} map[string]string
// @Router /beneficiaries/{id} [put]
func (bns *BeneficiaryService) UpdateBeneficiary(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	beneficiaryID := chi.URLParam(r, "id")

	var req beneficiaryRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := bns.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	beneficiary := models.Beneficiary{
		ID:           beneficiaryID,
		UserID:       userID,
		FullName:     req.FullName,
		Relationship: req.Relationship,
		Email:        req.Email,
		Phone:        req.Phone,
		Percentage:   req.Percentage,
	}
	err := bns.db.QueryRow(`
		UPDATE beneficiaries
		SET full_name = $1, relationship = $2, email = NULLIF($3, ''), phone = NULLIF($4, ''), percentage = $5
		WHERE id = $6 AND user_id = $7 RETURNING created_at`,
		req.FullName, req.Relationship, req.Email, req.Phone, req.Percentage,
		beneficiaryID, userID).
		Scan(&beneficiary.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Beneficiary not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[BENEFICIARY] Failed to update beneficiary %s: %v", beneficiaryID, err)
		SendErrorResponse(w, "Failed to update beneficiary", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[BENEFICIARY] Beneficiary %s updated for user %s", beneficiaryID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(beneficiary)
}

// DeleteBeneficiary removes a beneficiary
// @Summary Delete a beneficiary
// @Description Remove one of the user's beneficiaries
// @Tags beneficiaries
// @Produce json
// @Param id path string true "Beneficiary ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /beneficiaries/{id} [delete]
func (bns *BeneficiaryService) DeleteBeneficiary(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	beneficiaryID := chi.URLParam(r, "id")

	result, err := bns.db.Exec(`
		DELETE FROM beneficiaries WHERE id = $1 AND user_id = $2`, beneficiaryID, userID)
	if err != nil {
		log.Printf("[BENEFICIARY] Failed to delete beneficiary %s: %v", beneficiaryID, err)
		SendErrorResponse(w, "Failed to delete beneficiary", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "Beneficiary not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[BENEFICIARY] Beneficiary %s deleted for user %s", beneficiaryID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Beneficiary deleted successfully"})
}
