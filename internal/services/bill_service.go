package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conciergebank/backend/internal/models"
)

// BillService manages payee records and executes bill payments against the
// user's accounts.
type BillService struct {
	db        *sql.DB
	accounts  *AccountService
	pins      *PinService
	notifier  *NotificationService
	validator *ValidationHelper
}

func NewBillService(db *sql.DB, accounts *AccountService, pins *PinService,
	notifier *NotificationService, validator *ValidationHelper) *BillService {
	return &BillService{db: db, accounts: accounts, pins: pins, notifier: notifier, validator: validator}
}

func (bs *BillService) verifyBillOwnership(billID, userID string) (*models.Bill, error) {
	var bill models.Bill
	err := bs.db.QueryRow(`
		SELECT id, user_id, payee_name, account_number, bill_type, auto_pay, created_at
		FROM bills WHERE id = $1 AND user_id = $2`, billID, userID).
		Scan(&bill.ID, &bill.UserID, &bill.PayeeName, &bill.AccountNumber,
			&bill.BillType, &bill.AutoPay, &bill.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: bill", ErrNotFound)
		}
		return nil, err
	}
	return &bill, nil
}

type addPayeeRequest struct {
	PayeeName     string `json:"payee_name" validate:"required,min=2,max=100"`
	AccountNumber string `json:"account_number" validate:"required,min=4,max=20"`
	BillType      string `json:"bill_type" validate:"required,oneof=utility credit_card mortgage insurance phone internet other"`
	AutoPay       bool   `json:"auto_pay"`
}

// AddPayee registers a bill payee
// @Summary Add a payee
// @Description Register a new bill payee for the authenticated user
// @Tags bills
// @Accept json
// @Produce json
// @Success 201 {object} models.Bill
// @Failure 400 {object} ErrorResponse
// @Router /bills [post]
func (bs *BillService) AddPayee(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req addPayeeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := bs.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	bill := models.Bill{
		ID:            uuid.New().String(),
		UserID:        userID,
		PayeeName:     req.PayeeName,
		AccountNumber: req.AccountNumber,
		BillType:      req.BillType,
		AutoPay:       req.AutoPay,
	}
	err := bs.db.QueryRow(`
		INSERT INTO bills (id, user_id, payee_name, account_number, bill_type, auto_pay, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING created_at`,
		bill.ID, bill.UserID, bill.PayeeName, bill.AccountNumber, bill.BillType, bill.AutoPay).
		Scan(&bill.CreatedAt)
	if err != nil {
		log.Printf("[BILL] Failed to add payee for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to add payee", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[BILL] Payee %s added for user %s", bill.ID, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bill)
}

// ListPayees lists the user's registered payees
// @Summary List payees
// @Description List the authenticated user's registered bill payees
// @Tags bills
// @Produce json
// @Success 200 {array} models.Bill
// @Router /bills [get]
func (bs *BillService) ListPayees(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := bs.db.Query(`
		SELECT id, user_id, payee_name, account_number, bill_type, auto_pay, created_at
		FROM bills WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		log.Printf("[BILL] Failed to list payees for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch payees", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	bills := []models.Bill{}
	for rows.Next() {
		var bill models.Bill
		if err := rows.Scan(&bill.ID, &bill.UserID, &bill.PayeeName, &bill.AccountNumber,
			&bill.BillType, &bill.AutoPay, &bill.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch payees", http.StatusInternalServerError, nil)
			return
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch payees", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bills)
}

type payBillRequest struct {
	BillID    string          `json:"bill_id" validate:"required"`
	AccountID string          `json:"account_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Pin       string          `json:"pin" validate:"required"`
}

// PayBill pays a registered payee from one of the user's accounts
// @Summary Pay a bill
// @Description Debit an account to pay one of the user's registered payees
// @Tags bills
// @Accept json
// @Produce json
// @Success 201 {object} models.BillPayment
// @Failure 400 {object} ErrorResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /bills/pay [post]
func (bs *BillService) PayBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req payBillRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := bs.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		SendErrorResponse(w, "Amount must be greater than zero", http.StatusBadRequest, nil)
		return
	}

	if err := bs.pins.VerifyPin(userID, req.Pin); err != nil {
		sendBusinessError(w, err)
		return
	}

	bill, err := bs.verifyBillOwnership(req.BillID, userID)
	if err != nil {
		sendBusinessError(w, err)
		return
	}
	acct, err := bs.accounts.VerifyOwnership(req.AccountID, userID)
	if err != nil {
		sendBusinessError(w, err)
		return
	}
	if err := bs.accounts.CheckSufficientBalance(acct, req.Amount); err != nil {
		sendBusinessError(w, err)
		return
	}

	payment := models.BillPayment{
		ID:        uuid.New().String(),
		UserID:    userID,
		BillID:    req.BillID,
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Status:    "completed",
	}

	tx, err := bs.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if err := bs.accounts.Debit(tx, req.AccountID, req.Amount); err != nil {
		sendBusinessError(w, err)
		return
	}
	description := "Bill payment to " + bill.PayeeName
	if _, err := bs.accounts.RecordTransaction(tx, req.AccountID, "debit", req.Amount, description, "bill_payment"); err != nil {
		log.Printf("[INCONSISTENCY] Bill debit without ledger row for account %s, rolling back: %v", req.AccountID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}
	err = tx.QueryRow(`
		INSERT INTO bill_payments (id, user_id, bill_id, account_id, amount, payment_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_DATE, $6, NOW()) RETURNING payment_date, created_at`,
		payment.ID, payment.UserID, payment.BillID, payment.AccountID, payment.Amount, payment.Status).
		Scan(&payment.PaymentDate, &payment.CreatedAt)
	if err != nil {
		log.Printf("[BILL] Failed to persist payment %s: %v", payment.ID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}
	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}

	newBalance := acct.Balance.Sub(req.Amount)
	bs.notifier.Notify(r.Context(), userID, "bill_payment",
		"Paid $"+req.Amount.StringFixed(2)+" to "+bill.PayeeName,
		"Bill Payment Confirmation", billPaymentEmail(bill.PayeeName, req.Amount, newBalance))

	log.Printf("[BILL] Payment %s of %s to %s for user %s", payment.ID, req.Amount.StringFixed(2), bill.PayeeName, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(payment)
}

// ListPayments returns the user's bill payment history
// @Summary List bill payments
// @Description List the authenticated user's bill payments, newest first
// @Tags bills
// @Produce json
// @Success 200 {array} models.BillPayment
// @Router /bills/payments [get]
func (bs *BillService) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := bs.db.Query(`
		SELECT id, user_id, bill_id, account_id, amount, payment_date, status, created_at
		FROM bill_payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		log.Printf("[BILL] Failed to list payments for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch payments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	payments := []models.BillPayment{}
	for rows.Next() {
		var p models.BillPayment
		if err := rows.Scan(&p.ID, &p.UserID, &p.BillID, &p.AccountID,
			&p.Amount, &p.PaymentDate, &p.Status, &p.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch payments", http.StatusInternalServerError, nil)
			return
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch payments", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}
