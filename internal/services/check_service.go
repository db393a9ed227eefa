package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conciergebank/backend/internal/models"
)

var checkDepositCeiling = decimal.NewFromInt(100_000)

const (
	minCheckOrderQty = 50
	maxCheckOrderQty = 500
)

// CheckService handles remote check deposits and checkbook orders.
// Deposits credit the account immediately but the check row stays pending
// until clearing.
type CheckService struct {
	db        *sql.DB
	accounts  *AccountService
	notifier  *NotificationService
	validator *ValidationHelper
}

func NewCheckService(db *sql.DB, accounts *AccountService, notifier *NotificationService, validator *ValidationHelper) *CheckService {
	return &CheckService{db: db, accounts: accounts, notifier: notifier, validator: validator}
}

type depositCheckRequest struct {
	AccountID   string          `json:"account_id" validate:"required"`
	CheckNumber string          `json:"check_number" validate:"required,min=1,max=20"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
}

// DepositCheck deposits a check into one of the user's accounts
// @Summary Deposit a check
// @Description Credit a check amount to an account, pending clearing
// @Tags checks
// @Accept json
// @Produce json
// @Success 201 {object} models.Check
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} map[string]string
// @Router /checks/deposit [post]
func (cs *CheckService) DepositCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req depositCheckRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := cs.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		SendErrorResponse(w, "Amount must be greater than zero", http.StatusBadRequest, nil)
		return
	}
	if req.Amount.GreaterThan(checkDepositCeiling) {
		SendErrorResponse(w, "Amount exceeds the deposit limit", http.StatusBadRequest, nil)
		return
	}

	if _, err := cs.accounts.VerifyOwnership(req.AccountID, userID); err != nil {
		sendBusinessError(w, err)
		return
	}

	check := models.Check{
		ID:          uuid.New().String(),
		UserID:      userID,
		AccountID:   req.AccountID,
		CheckNumber: req.CheckNumber,
		Amount:      req.Amount,
		Status:      "pending",
	}

	tx, err := cs.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to process deposit", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if err := cs.accounts.Credit(tx, req.AccountID, req.Amount); err != nil {
		sendBusinessError(w, err)
		return
	}
	if _, err := cs.accounts.RecordTransaction(tx, req.AccountID, "credit", req.Amount,
		"Check deposit #"+req.CheckNumber, "check_deposit"); err != nil {
		log.Printf("[INCONSISTENCY] Check credit without ledger row for account %s, rolling back: %v", req.AccountID, err)
		SendErrorResponse(w, "Failed to process deposit", http.StatusInternalServerError, nil)
		return
	}
	err = tx.QueryRow(`
		INSERT INTO checks (id, user_id, account_id, check_number, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING created_at`,
		check.ID, check.UserID, check.AccountID, check.CheckNumber, check.Amount, check.Status).
		Scan(&check.CreatedAt)
	if err != nil {
		log.Printf("[CHECK] Failed to persist check %s: %v", check.ID, err)
		SendErrorResponse(w, "Failed to process deposit", http.StatusInternalServerError, nil)
		return
	}
	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to process deposit", http.StatusInternalServerError, nil)
		return
	}

	cs.notifier.Notify(r.Context(), userID, "transaction",
		"Check deposit of $"+req.Amount.StringFixed(2)+" received",
		"Check Deposit Received", checkDepositEmail(req.Amount))

	log.Printf("[CHECK] Deposit %s of %s for user %s", check.ID, req.Amount.StringFixed(2), userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(check)
}

type orderChecksRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=50,max=500"`
}

// OrderChecks orders a new checkbook for an account
// @Summary Order checks
// @Description Order a checkbook of 50 to 500 checks for an account
// @Tags checks
// @Accept json
// @Produce json
// @Success 201 {object} models.CheckOrder
// @Failure 400 {object} ErrorResponse
// @Router /checks/order [post]
func (cs *CheckService) OrderChecks(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req orderChecksRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := cs.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Quantity < minCheckOrderQty || req.Quantity > maxCheckOrderQty {
		SendErrorResponse(w, "Quantity must be between 50 and 500", http.StatusBadRequest, nil)
		return
	}

	if _, err := cs.accounts.VerifyOwnership(req.AccountID, userID); err != nil {
		sendBusinessError(w, err)
		return
	}

	order := models.CheckOrder{
		ID:        uuid.New().String(),
		UserID:    userID,
		AccountID: req.AccountID,
		Quantity:  req.Quantity,
		Status:    "processing",
	}
	err := cs.db.QueryRow(`
		INSERT INTO check_orders (id, user_id, account_id, quantity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING created_at`,
		order.ID, order.UserID, order.AccountID, order.Quantity, order.Status).
		Scan(&order.CreatedAt)
	if err != nil {
		log.Printf("[CHECK] Failed to persist order %s: %v", order.ID, err)
		SendErrorResponse(w, "Failed to place order", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CHECK] Checkbook order %s (%d checks) for user %s", order.ID, order.Quantity, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// ListChecks lists the user's deposited checks
// @Summary List checks
// @Description List the authenticated user's deposited checks, newest first
// @Tags checks
// @Produce json
// @Success 200 {array} models.Check
// @Router /checks [get]
func (cs *CheckService) ListChecks(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := cs.db.Query(`
		SELECT id, user_id, account_id, check_number, amount, status, created_at
		FROM checks WHERE user_id = $1 ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		log.Printf("[CHECK] Failed to list checks for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch checks", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	checks := []models.Check{}
	for rows.Next() {
		var c models.Check
		if err := rows.Scan(&c.ID, &c.UserID, &c.AccountID, &c.CheckNumber,
			&c.Amount, &c.Status, &c.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch checks", http.StatusInternalServerError, nil)
			return
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch checks", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(checks)
}
