package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conciergebank/backend/internal/models"
)

// execer is satisfied by both *sql.DB and *sql.Tx so balance mutations can
// run standalone or inside a caller-owned transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// AccountService owns account lookups and the balance invariants: every
// debit is guarded against overdraft at the SQL level, and every mutation
// is paired with an append-only transaction record.
type AccountService struct {
	db *sql.DB
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

// VerifyOwnership loads an account only if it belongs to the given user.
// A foreign account is indistinguishable from a missing one.
func (as *AccountService) VerifyOwnership(accountID, userID string) (*models.Account, error) {
	var acct models.Account
	err := as.db.QueryRow(`
		SELECT id, user_id, account_number, account_type, balance, status, created_at, updated_at
		FROM accounts WHERE id = $1 AND user_id = $2`, accountID, userID).
		Scan(&acct.ID, &acct.UserID, &acct.AccountNumber, &acct.AccountType,
			&acct.Balance, &acct.Status, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: account", ErrNotFound)
		}
		return nil, err
	}
	return &acct, nil
}

func (as *AccountService) CheckSufficientBalance(acct *models.Account, amount decimal.Decimal) error {
	if acct.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// Debit subtracts amount from the account, guarded in SQL so a concurrent
// spend cannot push the balance negative. Zero rows affected means the
// guard rejected the debit.
func (as *AccountService) Debit(ex execer, accountID string, amount decimal.Decimal) error {
	result, err := ex.Exec(`
		UPDATE accounts SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1`, amount, accountID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Credit adds amount to the account. Credits carry no balance guard.
func (as *AccountService) Credit(ex execer, accountID string, amount decimal.Decimal) error {
	result, err := ex.Exec(`
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2`, amount, accountID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: account", ErrNotFound)
	}
	return nil
}

// RecordTransaction appends a ledger row for a balance mutation. Callers
// inside a transaction must roll back when this fails so the balance and
// the ledger never diverge.
func (as *AccountService) RecordTransaction(ex execer, accountID, txType string, amount decimal.Decimal, description, category string) (string, error) {
	id := uuid.New().String()
	_, err := ex.Exec(`
		INSERT INTO transactions (id, account_id, type, amount, description, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		id, accountID, txType, amount, description, category)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetAccounts lists the authenticated user's accounts
// @Summary List accounts
// @Description List all accounts owned by the authenticated user
// @Tags accounts
// @Produce json
// @Success 200 {array} models.Account
// @Failure 401 {object} map[string]string
// @Router /accounts [get]
func (as *AccountService) GetAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := as.db.Query(`
		SELECT id, user_id, account_number, account_type, balance, status, created_at, updated_at
		FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to list accounts for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var acct models.Account
		if err := rows.Scan(&acct.ID, &acct.UserID, &acct.AccountNumber, &acct.AccountType,
			&acct.Balance, &acct.Status, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// GetTransactions lists an account's ledger, newest first
// @Summary List account transactions
// @Description List the ledger entries for one of the user's accounts
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {array} models.Transaction
// @Failure 404 {object} map[string]string
// @Router /accounts/{id}/transactions [get]
func (as *AccountService) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID := chi.URLParam(r, "id")

	if _, err := as.VerifyOwnership(accountID, userID); err != nil {
		sendBusinessError(w, err)
		return
	}

	rows, err := as.db.Query(`
		SELECT id, account_id, type, amount, description, category, created_at
		FROM transactions WHERE account_id = $1 ORDER BY created_at DESC LIMIT 100`, accountID)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to list transactions for account %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.Type,
			&txn.Amount, &txn.Description, &txn.Category, &txn.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}
