package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestEmailPreferenceFor(t *testing.T) {
	assert.Equal(t, "email_transactions", emailPreferenceFor("transfer"))
	assert.Equal(t, "email_bills", emailPreferenceFor("bill_payment"))
	assert.Equal(t, "email_security", emailPreferenceFor("security"))
	assert.Equal(t, "email_security", emailPreferenceFor("card_issue_reported"))
	assert.Equal(t, "email_marketing", emailPreferenceFor("marketing"))
	assert.Equal(t, "", emailPreferenceFor("something_new"))
}

func TestNotificationService_Notify(t *testing.T) {
	userID := "user-1"

	t.Run("sends email when preference allows", func(t *testing.T) {
		db, mockDB, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &MockEmailSender{}
		sender.On("Send", mock.Anything, "jane@example.com", "Transfer Confirmation", mock.Anything).
			Return("email-1", nil)
		service := NewNotificationService(db, sender)

		mockDB.ExpectQuery("SELECT notification_preferences FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"notification_preferences"}).
				AddRow([]byte(`{"email_transactions":true}`)))
		mockDB.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("jane@example.com"))
		mockDB.ExpectExec("INSERT INTO notifications").
			WithArgs(userID, "transfer", sqlmock.AnyArg(), "email").
			WillReturnResult(sqlmock.NewResult(1, 1))

		service.Notify(context.Background(), userID, "transfer",
			"Transfer of $500.00 initiated", "Transfer Confirmation", "<p>hi</p>")

		sender.AssertExpectations(t)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("suppresses email when preference is off but still logs", func(t *testing.T) {
		db, mockDB, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &MockEmailSender{}
		service := NewNotificationService(db, sender)

		mockDB.ExpectQuery("SELECT notification_preferences FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"notification_preferences"}).
				AddRow([]byte(`{"email_transactions":false}`)))
		mockDB.ExpectExec("INSERT INTO notifications").
			WithArgs(userID, "transfer", sqlmock.AnyArg(), "in_app").
			WillReturnResult(sqlmock.NewResult(1, 1))

		service.Notify(context.Background(), userID, "transfer",
			"Transfer of $500.00 initiated", "Transfer Confirmation", "<p>hi</p>")

		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("skips email when user has no address", func(t *testing.T) {
		db, mockDB, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &MockEmailSender{}
		service := NewNotificationService(db, sender)

		mockDB.ExpectQuery("SELECT notification_preferences FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"notification_preferences"}).
				AddRow([]byte(`{"email_security":true}`)))
		mockDB.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow(""))
		mockDB.ExpectExec("INSERT INTO notifications").
			WithArgs(userID, "security", sqlmock.AnyArg(), "in_app").
			WillReturnResult(sqlmock.NewResult(1, 1))

		service.Notify(context.Background(), userID, "security",
			"New login", "Security Alert", "<p>alert</p>")

		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("in-app only when no email content", func(t *testing.T) {
		db, mockDB, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &MockEmailSender{}
		service := NewNotificationService(db, sender)

		mockDB.ExpectExec("INSERT INTO notifications").
			WithArgs(userID, "card_issue_reported", sqlmock.AnyArg(), "in_app").
			WillReturnResult(sqlmock.NewResult(1, 1))

		service.Notify(context.Background(), userID, "card_issue_reported",
			"Card issue reported: lost", "", "")

		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestNotificationService_EmailAllowed(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewNotificationService(db, relaxedEmailSender{})
	userID := "user-1"

	t.Run("defaults on for unset non-marketing flags", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT notification_preferences FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"notification_preferences"}).AddRow([]byte(`{}`)))

		assert.True(t, service.emailAllowed(userID, "transfer"))
	})

	t.Run("marketing defaults off", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT notification_preferences FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"notification_preferences"}).AddRow([]byte(`{}`)))

		assert.False(t, service.emailAllowed(userID, "marketing"))
	})

	t.Run("malformed blob defaults to sending", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT notification_preferences FROM users WHERE id = \\$1").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"notification_preferences"}).AddRow([]byte(`{broken`)))

		assert.True(t, service.emailAllowed(userID, "security"))
	})

	t.Run("unmapped type is always allowed", func(t *testing.T) {
		assert.True(t, service.emailAllowed(userID, "misc"))
	})
}
