package services

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setupArgon2Config() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
}

func TestPinService_VerifyPin(t *testing.T) {
	setupArgon2Config()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPinService(db, NewValidationHelper())
	userID := "user-1"

	t.Run("malformed pin never hits the database", func(t *testing.T) {
		for _, pin := range []string{"", "12345", "1234567", "12a456", "12 456"} {
			assert.ErrorIs(t, service.VerifyPin(userID, pin), ErrMalformedPin)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pin not set", func(t *testing.T) {
		mock.ExpectQuery("SELECT transaction_pin_hash FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_pin_hash"}).AddRow(nil))

		assert.ErrorIs(t, service.VerifyPin(userID, "123456"), ErrPinNotSet)
	})

	t.Run("wrong pin", func(t *testing.T) {
		hash, err := hashPassword("654321")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT transaction_pin_hash FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_pin_hash"}).AddRow(hash))

		assert.ErrorIs(t, service.VerifyPin(userID, "123456"), ErrInvalidPin)
	})

	t.Run("correct pin", func(t *testing.T) {
		hash, err := hashPassword("123456")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT transaction_pin_hash FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_pin_hash"}).AddRow(hash))

		assert.NoError(t, service.VerifyPin(userID, "123456"))
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT transaction_pin_hash FROM users WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, service.VerifyPin("ghost", "123456"), ErrNotFound)
	})
}
