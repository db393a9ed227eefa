package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/conciergebank/backend/internal/models"
)

func setupAuthConfig() {
	setupArgon2Config()
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func newAuthFixture(t *testing.T) (*AuthService, sqlmock.Sqlmock, func()) {
	setupAuthConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	validator := NewValidationHelper()
	notifier := NewNotificationService(db, relaxedEmailSender{})
	twofa := NewTwoFactorService(db, notifier)
	service := NewAuthService(db, nil, validator, notifier, twofa, NewBotGate())
	return service, mock, func() { db.Close() }
}

func userRow(id string, passwordHash string, twoFactorEnabled bool, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "phone", "address",
		"role", "account_status", "transactions_blocked", "two_factor_enabled",
		"notification_preferences", "created_at", "updated_at",
	}).AddRow(id, "jane@example.com", passwordHash, "Jane Doe", "", "",
		"user", status, false, twoFactorEnabled,
		[]byte(`{"email_transactions":true,"email_security":true}`), time.Now(), time.Now())
}

func TestHashPassword_RoundTrip(t *testing.T) {
	setupAuthConfig()

	hash, err := hashPassword("correct horse battery staple")
	assert.NoError(t, err)
	assert.Contains(t, hash, "$")

	assert.True(t, verifyPassword("correct horse battery staple", hash))
	assert.False(t, verifyPassword("wrong password", hash))
	assert.False(t, verifyPassword("anything", "not-a-valid-hash"))
}

func TestGenerateAccountNumber(t *testing.T) {
	number, err := generateAccountNumber()
	assert.NoError(t, err)
	assert.Len(t, number, 12)
	for _, c := range number {
		assert.True(t, c >= '0' && c <= '9')
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:51234"
	assert.Equal(t, "10.0.0.5", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.5")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestAuthService_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE email = \\$1\\)").
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
				AddRow(time.Now(), time.Now()))
		mock.ExpectExec("INSERT INTO accounts").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
		expectTransferNotify(mock, sqlmock.AnyArg())

		body, _ := json.Marshal(map[string]any{
			"email":     "jane@example.com",
			"password":  "password123",
			"full_name": "Jane Doe",
		})
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))

		service.Register(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response authResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "jane@example.com", response.User.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE email = \\$1\\)").
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		body, _ := json.Marshal(map[string]any{
			"email":     "jane@example.com",
			"password":  "password123",
			"full_name": "Jane Doe",
		})
		w := httptest.NewRecorder()

		service.Register(w, httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("honeypot field rejects the submission", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		body, _ := json.Marshal(map[string]any{
			"email":     "bot@example.com",
			"password":  "password123",
			"full_name": "Bot",
			"website":   "http://spam.example",
		})
		w := httptest.NewRecorder()

		service.Register(w, httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("too-fast submission rejected", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		body, _ := json.Marshal(map[string]any{
			"email":          "fast@example.com",
			"password":       "password123",
			"full_name":      "Fast Fingers",
			"form_loaded_at": time.Now().Unix(),
		})
		w := httptest.NewRecorder()

		service.Register(w, httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sixth registration from one ip is throttled", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		for i := 0; i < 5; i++ {
			// Invalid payloads still consume a rate limit slot.
			w := httptest.NewRecorder()
			service.Register(w, httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("{}"))))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		}

		w := httptest.NewRecorder()
		service.Register(w, httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("{}"))))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Login(t *testing.T) {
	t.Run("successful login without 2FA", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		hash, _ := hashPassword("password123")
		mock.ExpectQuery("FROM users WHERE email = \\$1").
			WithArgs("jane@example.com").
			WillReturnRows(userRow("user-1", hash, false, "active"))

		body, _ := json.Marshal(map[string]string{"email": "jane@example.com", "password": "password123"})
		w := httptest.NewRecorder()

		service.Login(w, httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		var response authResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "user-1", response.User.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		hash, _ := hashPassword("password123")
		mock.ExpectQuery("FROM users WHERE email = \\$1").
			WithArgs("jane@example.com").
			WillReturnRows(userRow("user-1", hash, false, "active"))

		body, _ := json.Marshal(map[string]string{"email": "jane@example.com", "password": "wrong"})
		w := httptest.NewRecorder()

		service.Login(w, httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		mock.ExpectQuery("FROM users WHERE email = \\$1").
			WithArgs("ghost@example.com").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(map[string]string{"email": "ghost@example.com", "password": "password123"})
		w := httptest.NewRecorder()

		service.Login(w, httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("blocked account", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		hash, _ := hashPassword("password123")
		mock.ExpectQuery("FROM users WHERE email = \\$1").
			WithArgs("jane@example.com").
			WillReturnRows(userRow("user-1", hash, false, "blocked"))

		body, _ := json.Marshal(map[string]string{"email": "jane@example.com", "password": "password123"})
		w := httptest.NewRecorder()

		service.Login(w, httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("2FA user receives a pending token and a challenge", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		hash, _ := hashPassword("password123")
		mock.ExpectQuery("FROM users WHERE email = \\$1").
			WithArgs("jane@example.com").
			WillReturnRows(userRow("user-1", hash, true, "active"))
		expectEnabledLookup(mock, "user-1", true)
		mock.ExpectExec("INSERT INTO otp_challenges").
			WillReturnResult(sqlmock.NewResult(1, 1))
		expectNotifySequence(mock, "user-1")

		body, _ := json.Marshal(map[string]string{"email": "jane@example.com", "password": "password123"})
		w := httptest.NewRecorder()

		service.Login(w, httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, true, response["requires_2fa"])
		assert.NotEmpty(t, response["token"])
		assert.Equal(t, float64(otpValidityMinutes), response["expires_in_minutes"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_VerifyLogin2FA(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "jane@example.com", Role: "user", AccountStatus: "active"}

	t.Run("full session token is not accepted as pending", func(t *testing.T) {
		service, _, cleanup := newAuthFixture(t)
		defer cleanup()

		token, err := generateJWT(user, "", time.Hour)
		assert.NoError(t, err)

		body, _ := json.Marshal(map[string]string{"otp_code": "123456"})
		r := httptest.NewRequest("POST", "/auth/login/verify", bytes.NewBuffer(body))
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		service.VerifyLogin2FA(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid OTP exchanges the pending token for a session", func(t *testing.T) {
		service, mock, cleanup := newAuthFixture(t)
		defer cleanup()

		pending, err := generateJWT(user, "2fa_pending", 10*time.Minute)
		assert.NoError(t, err)

		salt := "user-1_1700000000"
		expectEnabledLookup(mock, "user-1", true)
		mock.ExpectQuery("SELECT otp_hash, salt, expires_at, attempts").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"otp_hash", "salt", "expires_at", "attempts"}).
				AddRow(hashOTP("123456", salt), salt, time.Now().Add(5*time.Minute), 0))
		mock.ExpectExec("DELETE FROM otp_challenges WHERE user_id = \\$1").
			WithArgs("user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		hash, _ := hashPassword("password123")
		mock.ExpectQuery("FROM users WHERE id = \\$1").
			WithArgs("user-1").
			WillReturnRows(userRow("user-1", hash, true, "active"))

		body, _ := json.Marshal(map[string]string{"otp_code": "123456"})
		r := httptest.NewRequest("POST", "/auth/login/verify", bytes.NewBuffer(body))
		r.Header.Set("Authorization", "Bearer "+pending)
		w := httptest.NewRecorder()

		service.VerifyLogin2FA(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response authResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires exactly one of otp_code and backup_code", func(t *testing.T) {
		service, _, cleanup := newAuthFixture(t)
		defer cleanup()

		pending, err := generateJWT(user, "2fa_pending", 10*time.Minute)
		assert.NoError(t, err)

		body, _ := json.Marshal(map[string]string{})
		r := httptest.NewRequest("POST", "/auth/login/verify", bytes.NewBuffer(body))
		r.Header.Set("Authorization", "Bearer "+pending)
		w := httptest.NewRecorder()

		service.VerifyLogin2FA(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
