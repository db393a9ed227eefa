package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conciergebank/backend/internal/models"
)

var transferCeiling = decimal.NewFromInt(1_000_000)

// TransferService moves money between accounts. Internal transfers settle
// immediately inside one database transaction. External and p2p transfers
// debit the sender, stay pending, and hand off to the settlement queue.
type TransferService struct {
	db         *sql.DB
	accounts   *AccountService
	pins       *PinService
	notifier   *NotificationService
	settlement *SettlementService
	validator  *ValidationHelper
}

func NewTransferService(db *sql.DB, accounts *AccountService, pins *PinService,
	notifier *NotificationService, settlement *SettlementService, validator *ValidationHelper) *TransferService {
	return &TransferService{
		db: db, accounts: accounts, pins: pins,
		notifier: notifier, settlement: settlement, validator: validator,
	}
}

type createTransferRequest struct {
	FromAccountID  string          `json:"from_account_id" validate:"required"`
	ToAccountID    string          `json:"to_account_id"`
	TransferType   string          `json:"transfer_type" validate:"required,oneof=internal external p2p"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Pin            string          `json:"pin" validate:"required"`
	Description    string          `json:"description"`
	RecipientName  string          `json:"recipient_name"`
	RoutingNumber  string          `json:"routing_number"`
	AccountNumber  string          `json:"account_number"`
	RecipientEmail string          `json:"recipient_email" validate:"omitempty,email"`
	RecipientPhone string          `json:"recipient_phone"`
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// validateTransferRequest runs every shape check before any account lookup
// so a malformed request never reveals whether the accounts exist.
func validateTransferRequest(req *createTransferRequest) (string, bool) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return "Amount must be greater than zero", false
	}
	if req.Amount.GreaterThan(transferCeiling) {
		return "Amount exceeds the transfer limit", false
	}
	switch req.TransferType {
	case "internal":
		if req.ToAccountID == "" {
			return "to_account_id is required for internal transfers", false
		}
		if req.ToAccountID == req.FromAccountID {
			return "Cannot transfer to the same account", false
		}
	case "external":
		if strings.TrimSpace(req.RecipientName) == "" {
			return "recipient_name is required for external transfers", false
		}
		if len(req.RoutingNumber) != 9 || !isDigits(req.RoutingNumber) {
			return "routing_number must be exactly 9 digits", false
		}
		if len(req.AccountNumber) < 4 || !isDigits(req.AccountNumber) {
			return "account_number must be at least 4 digits", false
		}
	case "p2p":
		if req.RecipientEmail == "" && req.RecipientPhone == "" {
			return "recipient_email or recipient_phone is required for p2p transfers", false
		}
	}
	return "", true
}

// CreateTransfer moves money out of one of the user's accounts
// @Summary Create a transfer
// @Description Execute an internal transfer or initiate an external or p2p transfer
// @Tags transfers
// @Accept json
// @Produce json
// @Success 201 {object} models.Transfer
// @Failure 400 {object} ErrorResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /transfers [post]
func (trs *TransferService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createTransferRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := trs.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if msg, ok := validateTransferRequest(&req); !ok {
		SendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}

	if err := trs.pins.VerifyPin(userID, req.Pin); err != nil {
		sendBusinessError(w, err)
		return
	}

	fromAcct, err := trs.accounts.VerifyOwnership(req.FromAccountID, userID)
	if err != nil {
		sendBusinessError(w, err)
		return
	}
	if req.TransferType == "internal" {
		if _, err := trs.accounts.VerifyOwnership(req.ToAccountID, userID); err != nil {
			sendBusinessError(w, err)
			return
		}
	}
	if err := trs.accounts.CheckSufficientBalance(fromAcct, req.Amount); err != nil {
		sendBusinessError(w, err)
		return
	}

	transfer := models.Transfer{
		ID:            uuid.New().String(),
		UserID:        userID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		TransferType:  req.TransferType,
		Status:        "pending",
	}
	if req.TransferType == "internal" {
		transfer.Status = "completed"
	} else {
		transfer.ToExternal = &models.ExternalParty{
			Name:          req.RecipientName,
			RoutingNumber: req.RoutingNumber,
			AccountNumber: req.AccountNumber,
			Email:         req.RecipientEmail,
			Phone:         req.RecipientPhone,
		}
	}

	description := req.Description
	if description == "" {
		description = "Transfer " + transfer.ID[:8]
	}

	tx, err := trs.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if err := trs.accounts.Debit(tx, req.FromAccountID, req.Amount); err != nil {
		sendBusinessError(w, err)
		return
	}
	if _, err := trs.accounts.RecordTransaction(tx, req.FromAccountID, "debit", req.Amount, description, "transfer"); err != nil {
		log.Printf("[INCONSISTENCY] Debit recorded without ledger row for account %s, rolling back: %v", req.FromAccountID, err)
		SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		return
	}
	if req.TransferType == "internal" {
		if err := trs.accounts.Credit(tx, req.ToAccountID, req.Amount); err != nil {
			sendBusinessError(w, err)
			return
		}
		if _, err := trs.accounts.RecordTransaction(tx, req.ToAccountID, "credit", req.Amount, description, "transfer"); err != nil {
			log.Printf("[INCONSISTENCY] Credit recorded without ledger row for account %s, rolling back: %v", req.ToAccountID, err)
			SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
			return
		}
	}

	var externalJSON any
	if transfer.ToExternal != nil {
		raw, _ := json.Marshal(transfer.ToExternal)
		externalJSON = string(raw)
	}
	if _, err := tx.Exec(`
		INSERT INTO transfers (id, user_id, from_account_id, to_account_id, to_external, amount, transfer_type, status, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NOW())`,
		transfer.ID, transfer.UserID, transfer.FromAccountID, transfer.ToAccountID,
		externalJSON, transfer.Amount, transfer.TransferType, transfer.Status); err != nil {
		log.Printf("[TRANSFER] Failed to persist transfer %s: %v", transfer.ID, err)
		SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		return
	}

	if transfer.TransferType != "internal" {
		trs.settlement.Enqueue(r.Context(), &transfer)
	}

	newBalance := fromAcct.Balance.Sub(req.Amount)
	trs.notifier.Notify(r.Context(), userID, "transfer",
		"Transfer of $"+req.Amount.StringFixed(2)+" initiated",
		"Transfer Confirmation", transferConfirmationEmail(req.Amount, newBalance))

	log.Printf("[TRANSFER] %s transfer %s for user %s: %s", transfer.TransferType, transfer.ID, userID, transfer.Status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transfer)
}

// ListTransfers returns the user's transfer history
// @Summary List transfers
// @Description List the authenticated user's transfers, newest first
// @Tags transfers
// @Produce json
// @Success 200 {array} models.Transfer
// @Failure 401 {object} map[string]string
// @Router /transfers [get]
func (trs *TransferService) ListTransfers(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := trs.db.Query(`
		SELECT id, user_id, from_account_id, COALESCE(to_account_id, ''), to_external, amount, transfer_type, status, created_at
		FROM transfers WHERE user_id = $1 ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		log.Printf("[TRANSFER] Failed to list transfers for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transfers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		var t models.Transfer
		var external sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.FromAccountID, &t.ToAccountID,
			&external, &t.Amount, &t.TransferType, &t.Status, &t.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch transfers", http.StatusInternalServerError, nil)
			return
		}
		if external.Valid && external.String != "" {
			var party models.ExternalParty
			if err := json.Unmarshal([]byte(external.String), &party); err == nil {
				t.ToExternal = &party
			}
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch transfers", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfers)
}
