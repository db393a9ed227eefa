package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const (
	otpLength          = 6
	otpValidityMinutes = 10
	maxFailedAttempts  = 3
	backupCodeCount    = 8
	backupCodeLength   = 10
)

const backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TwoFactorService owns the email-OTP login challenge lifecycle and the
// one-time backup codes. Challenge state lives in otp_challenges, codes in
// backup_codes; neither touches the notification preference blob.
type TwoFactorService struct {
	db       *sql.DB
	notifier *NotificationService
}

func NewTwoFactorService(db *sql.DB, notifier *NotificationService) *TwoFactorService {
	return &TwoFactorService{db: db, notifier: notifier}
}

func generateOTP() (string, error) {
	code := make([]byte, otpLength)
	buf := make([]byte, otpLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		code[i] = '0' + b%10
	}
	return string(code), nil
}

func generateBackupCode() (string, error) {
	code := make([]byte, backupCodeLength)
	buf := make([]byte, backupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		code[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}
	return string(code), nil
}

func hashOTP(code, salt string) string {
	sum := sha256.Sum256([]byte(code + salt))
	return hex.EncodeToString(sum[:])
}

func (ts *TwoFactorService) isEnabled(userID string) (bool, error) {
	var enabled bool
	err := ts.db.QueryRow(`SELECT two_factor_enabled FROM users WHERE id = $1`, userID).Scan(&enabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("%w: user", ErrNotFound)
		}
		return false, err
	}
	return enabled, nil
}

// Setup enables 2FA and returns the plaintext backup codes. Only salted
// hashes are stored; the codes are shown to the caller and mailed once,
// then never retrievable again.
func (ts *TwoFactorService) Setup(ctx context.Context, userID, fullName string) ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	hashes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hashOTP(code, userID))
	}

	tx, err := ts.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}
	for _, hash := range hashes {
		if _, err := tx.Exec(`INSERT INTO backup_codes (user_id, code_hash) VALUES ($1, $2)`, userID, hash); err != nil {
			return nil, err
		}
	}
	if _, err := tx.Exec(`UPDATE users SET two_factor_enabled = TRUE, updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ts.notifier.Notify(ctx, userID, "security", "2FA Setup Complete",
		"Two-Factor Authentication Enabled", twofaSetupEmail(fullName, codes))

	log.Printf("[2FA] Setup completed for user %s", userID)
	return codes, nil
}

// Disable strips all 2FA state for the user. Idempotent.
func (ts *TwoFactorService) Disable(userID string) error {
	tx, err := ts.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM otp_challenges WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE users SET two_factor_enabled = FALSE, updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[2FA] Disabled for user %s", userID)
	return nil
}

// SendChallenge issues a fresh 6-digit code, replacing any outstanding
// challenge, and emails the plaintext code. Returns the validity window
// in minutes.
func (ts *TwoFactorService) SendChallenge(ctx context.Context, userID, fullName string) (int, error) {
	enabled, err := ts.isEnabled(userID)
	if err != nil {
		return 0, err
	}
	if !enabled {
		return 0, ErrTwoFactorNotEnabled
	}

	code, err := generateOTP()
	if err != nil {
		return 0, err
	}
	salt := fmt.Sprintf("%s_%d", userID, time.Now().Unix())
	expiry := time.Now().Add(otpValidityMinutes * time.Minute)

	_, err = ts.db.Exec(`
		INSERT INTO otp_challenges (user_id, otp_hash, salt, expires_at, attempts)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (user_id) DO UPDATE
		SET otp_hash = EXCLUDED.otp_hash, salt = EXCLUDED.salt,
		    expires_at = EXCLUDED.expires_at, attempts = 0`,
		userID, hashOTP(code, salt), salt, expiry)
	if err != nil {
		return 0, err
	}

	ts.notifier.Notify(ctx, userID, "security",
		fmt.Sprintf("Your verification code: %s", code),
		"Login Verification Code", twofaCodeEmail(fullName, code))

	log.Printf("[2FA] Challenge issued for user %s", userID)
	return otpValidityMinutes, nil
}

// Verify checks a submitted code against the outstanding challenge.
// Expiry and attempt limits are evaluated before the hash comparison so an
// exhausted or stale challenge is rejected regardless of the code. A match
// consumes the challenge: replaying the same code fails with
// ErrNoActiveChallenge.
func (ts *TwoFactorService) Verify(userID, code string) error {
	enabled, err := ts.isEnabled(userID)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrTwoFactorNotEnabled
	}

	var storedHash, salt string
	var expiresAt time.Time
	var attempts int
	err = ts.db.QueryRow(`
		SELECT otp_hash, salt, expires_at, attempts
		FROM otp_challenges WHERE user_id = $1`, userID).
		Scan(&storedHash, &salt, &expiresAt, &attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrNoActiveChallenge
		}
		return err
	}

	if time.Now().After(expiresAt) {
		return ErrOTPExpired
	}
	if attempts >= maxFailedAttempts {
		return ErrTooManyAttempts
	}

	computed := hashOTP(code, salt)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		if _, err := ts.db.Exec(`
			UPDATE otp_challenges SET attempts = attempts + 1 WHERE user_id = $1`, userID); err != nil {
			log.Printf("[2FA] Failed to record attempt for user %s: %v", userID, err)
		}
		remaining := maxFailedAttempts - (attempts + 1)
		return fmt.Errorf("%w: %d attempts remaining", ErrInvalidOTP, remaining)
	}

	if _, err := ts.db.Exec(`DELETE FROM otp_challenges WHERE user_id = $1`, userID); err != nil {
		return err
	}

	log.Printf("[2FA] Challenge verified for user %s", userID)
	return nil
}

// VerifyBackupCode consumes a one-time backup code. The DELETE doubles as
// the existence check so a code can never be redeemed twice.
func (ts *TwoFactorService) VerifyBackupCode(userID, code string) error {
	enabled, err := ts.isEnabled(userID)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrTwoFactorNotEnabled
	}

	var remaining int
	if err := ts.db.QueryRow(`
		SELECT COUNT(*) FROM backup_codes WHERE user_id = $1`, userID).Scan(&remaining); err != nil {
		return err
	}
	if remaining == 0 {
		return ErrNoBackupCodes
	}

	result, err := ts.db.Exec(`
		DELETE FROM backup_codes WHERE user_id = $1 AND code_hash = $2`,
		userID, hashOTP(code, userID))
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrInvalidBackupCode
	}

	log.Printf("[2FA] Backup code consumed for user %s", userID)
	return nil
}

// Setup2FA enables 2FA for the authenticated user
// @Summary Enable 2FA
// @Description Enable two-factor authentication and return one-time backup codes
// @Tags settings
// @Produce json
// @Success 200 {object} object{backup_codes=[]string,message=string}
// @Failure 401 {object} map[string]string
// @Router /settings/2fa/setup [post]
func (ts *TwoFactorService) Setup2FA(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var fullName string
	if err := ts.db.QueryRow(`SELECT full_name FROM users WHERE id = $1`, userID).Scan(&fullName); err != nil {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	codes, err := ts.Setup(r.Context(), userID, fullName)
	if err != nil {
		log.Printf("[2FA] Setup failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to set up 2FA", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"backup_codes": codes,
		"message":      "2FA has been enabled. Please save your backup codes.",
	})
}

// Disable2FA turns off 2FA for the authenticated user
// @Summary Disable 2FA
// @Description Disable two-factor authentication and discard all 2FA state
// @Tags settings
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /settings/2fa/disable [post]
func (ts *TwoFactorService) Disable2FA(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := ts.Disable(userID); err != nil {
		log.Printf("[2FA] Disable failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to disable 2FA", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "2FA disabled"})
}

// TwoFactorStatus reports the user's 2FA configuration
// @Summary Get 2FA status
// @Description Report whether 2FA is enabled and how many backup codes remain
// @Tags settings
// @Produce json
// @Success 200 {object} object{enabled=bool,backup_codes_count=int,has_pending_otp=bool}
// @Failure 401 {object} map[string]string
// @Router /settings/2fa [get]
func (ts *TwoFactorService) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	enabled, err := ts.isEnabled(userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch 2FA status", http.StatusInternalServerError, nil)
		return
	}

	var codesRemaining int
	if err := ts.db.QueryRow(`SELECT COUNT(*) FROM backup_codes WHERE user_id = $1`, userID).Scan(&codesRemaining); err != nil {
		codesRemaining = 0
	}

	var pending bool
	if err := ts.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM otp_challenges WHERE user_id = $1)`, userID).Scan(&pending); err != nil {
		pending = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"enabled":            enabled,
		"backup_codes_count": codesRemaining,
		"has_pending_otp":    pending,
	})
}
