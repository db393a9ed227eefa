package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/conciergebank/backend/internal/models"
)

func accountRows(id, userID string, balance string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "account_number", "account_type", "balance", "status", "created_at", "updated_at"}).
		AddRow(id, userID, "123456789012", "Checking", balance, "active", time.Now(), time.Now())
}

func TestAccountService_VerifyOwnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)

	t.Run("owned account", func(t *testing.T) {
		mock.ExpectQuery("FROM accounts WHERE id = \\$1 AND user_id = \\$2").
			WithArgs("acct-1", "user-1").
			WillReturnRows(accountRows("acct-1", "user-1", "1000.00"))

		acct, err := service.VerifyOwnership("acct-1", "user-1")
		assert.NoError(t, err)
		assert.Equal(t, "acct-1", acct.ID)
		assert.True(t, acct.Balance.Equal(decimal.RequireFromString("1000.00")))
	})

	t.Run("foreign account looks missing", func(t *testing.T) {
		mock.ExpectQuery("FROM accounts WHERE id = \\$1 AND user_id = \\$2").
			WithArgs("acct-1", "user-2").
			WillReturnError(sql.ErrNoRows)

		_, err := service.VerifyOwnership("acct-1", "user-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAccountService_CheckSufficientBalance(t *testing.T) {
	service := NewAccountService(nil)
	acct := &models.Account{Balance: decimal.RequireFromString("500.00")}

	assert.NoError(t, service.CheckSufficientBalance(acct, decimal.RequireFromString("500.00")))
	assert.NoError(t, service.CheckSufficientBalance(acct, decimal.RequireFromString("499.99")))
	assert.ErrorIs(t, service.CheckSufficientBalance(acct, decimal.RequireFromString("500.01")), ErrInsufficientFunds)
}

func TestAccountService_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)
	amount := decimal.RequireFromString("250.00")

	t.Run("guard accepts when funds cover the debit", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(sqlmock.AnyArg(), "acct-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.Debit(db, "acct-1", amount))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guard rejects an overdraft", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(sqlmock.AnyArg(), "acct-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, service.Debit(db, "acct-1", amount), ErrInsufficientFunds)
	})
}

func TestAccountService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)

	t.Run("credit has no balance guard", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance = balance \\+ \\$1").
			WithArgs(sqlmock.AnyArg(), "acct-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.Credit(db, "acct-1", decimal.RequireFromString("10.00")))
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance = balance \\+ \\$1").
			WithArgs(sqlmock.AnyArg(), "ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, service.Credit(db, "ghost", decimal.RequireFromString("10.00")), ErrNotFound)
	})
}

func TestAccountService_RecordTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(sqlmock.AnyArg(), "acct-1", "debit", sqlmock.AnyArg(), "Transfer abc", "transfer").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := service.RecordTransaction(db, "acct-1", "debit",
		decimal.RequireFromString("250.00"), "Transfer abc", "transfer")
	assert.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
