package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/conciergebank/backend/internal/middleware"
	"github.com/conciergebank/backend/internal/models"
)

const pendingTokenMinutes = 10

// AuthService handles registration, the two-step login flow, logout, and
// the profile and preference surface.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
	notifier  *NotificationService
	twofa     *TwoFactorService
	botgate   *BotGate
}

func NewAuthService(db *sql.DB, rdb *redis.Client, validator *ValidationHelper,
	notifier *NotificationService, twofa *TwoFactorService, botgate *BotGate) *AuthService {
	return &AuthService{db: db, redis: rdb, validator: validator,
		notifier: notifier, twofa: twofa, botgate: botgate}
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}

func generateAccountNumber() (string, error) {
	return randomDigits(12)
}

// generateJWT mints a token carrying the session claims the middleware
// expects. A non-empty scope marks a restricted token, such as the short
// lived one issued between password and 2FA verification.
func generateJWT(user *models.User, scope string, validity time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":              user.ID,
		"email":                user.Email,
		"role":                 user.Role,
		"account_status":       user.AccountStatus,
		"transactions_blocked": user.TransactionsBlocked,
		"exp":                  time.Now().Add(validity).Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func sessionValidity() time.Duration {
	return time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *AuthService) loadUser(query string, arg any) (*models.User, string, error) {
	var user models.User
	var passwordHash string
	err := s.db.QueryRow(query, arg).Scan(
		&user.ID, &user.Email, &passwordHash, &user.FullName, &user.Phone, &user.Address,
		&user.Role, &user.AccountStatus, &user.TransactionsBlocked, &user.TwoFactorEnabled,
		&user.Preferences, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, "", err
	}
	return &user, passwordHash, nil
}

const userColumns = `id, email, password_hash, full_name, phone, address,
	role, account_status, transactions_blocked, two_factor_enabled,
	notification_preferences, created_at, updated_at`

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Address  string `json:"address" validate:"omitempty,max=200"`

	// Hidden form fields and the client-side load timestamp feed the bot
	// heuristics. Real browsers leave the first two empty.
	Website      string `json:"website"`
	URL          string `json:"url"`
	FormLoadedAt int64  `json:"form_loaded_at"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a user and their first checking account
// @Summary Register
// @Description Create a new user with a checking account and return a session token
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} authResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if err := s.botgate.CheckRateLimit(ip, "register"); err != nil {
		sendBusinessError(w, err)
		return
	}

	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.botgate.CheckHoneypot(req.Website, req.URL); err != nil {
		sendBusinessError(w, err)
		return
	}
	var loadedAt time.Time
	if req.FormLoadedAt > 0 {
		loadedAt = time.Unix(req.FormLoadedAt, 0)
	}
	if err := s.botgate.CheckSubmissionTiming(loadedAt); err != nil {
		sendBusinessError(w, err)
		return
	}

	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, req.Email).Scan(&exists); err != nil {
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendErrorResponse(w, "Email already registered", http.StatusConflict, nil)
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed: %v", err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}
	accountNumber, err := generateAccountNumber()
	if err != nil {
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	prefs, _ := json.Marshal(models.DefaultNotificationPreferences())
	user := models.User{
		ID:            uuid.New().String(),
		Email:         req.Email,
		FullName:      req.FullName,
		Phone:         req.Phone,
		Address:       req.Address,
		Role:          "user",
		AccountStatus: "active",
		Preferences:   prefs,
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
		INSERT INTO users (id, email, password_hash, full_name, phone, address, role,
			account_status, transactions_blocked, two_factor_enabled, notification_preferences,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, FALSE, $9, NOW(), NOW())
		RETURNING created_at, updated_at`,
		user.ID, user.Email, passwordHash, user.FullName, user.Phone, user.Address,
		user.Role, user.AccountStatus, user.Preferences).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		log.Printf("[AUTH] Failed to create user %s: %v", req.Email, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	if _, err := tx.Exec(`
		INSERT INTO accounts (id, user_id, account_number, account_type, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'Checking', 0, 'active', NOW(), NOW())`,
		uuid.New().String(), user.ID, accountNumber); err != nil {
		log.Printf("[AUTH] Failed to create account for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}
	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	s.notifier.Notify(r.Context(), user.ID, "account_created",
		"Welcome to Concierge Bank. Your checking account is ready.",
		"Welcome to Concierge Bank", welcomeEmail(user.FullName))

	token, err := generateJWT(&user, "", sessionValidity())
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registered user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(authResponse{Token: token, User: &user})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates a user by email and password
// @Summary Login
// @Description Verify credentials; returns a session token, or a short-lived pending token when 2FA is enabled
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} authResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if err := s.botgate.CheckRateLimit(ip, "login"); err != nil {
		sendBusinessError(w, err)
		return
	}

	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	user, passwordHash, err := s.loadUser(`SELECT `+userColumns+` FROM users WHERE email = $1`, req.Email)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[AUTH] User lookup failed for %s: %v", req.Email, err)
		}
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if user.AccountStatus == "blocked" || user.AccountStatus == "suspended" {
		log.Printf("[AUTH] Login rejected for %s user %s", user.AccountStatus, user.ID)
		SendErrorResponse(w, "Account is "+user.AccountStatus, http.StatusForbidden, nil)
		return
	}

	if !verifyPassword(req.Password, passwordHash) {
		log.Printf("[AUTH] Invalid password for user %s", user.ID)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if user.TwoFactorEnabled {
		pending, err := generateJWT(user, "2fa_pending", pendingTokenMinutes*time.Minute)
		if err != nil {
			SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
			return
		}
		validity, err := s.twofa.SendChallenge(r.Context(), user.ID, user.FullName)
		if err != nil {
			log.Printf("[AUTH] Failed to send 2FA challenge for user %s: %v", user.ID, err)
			SendErrorResponse(w, "Failed to send verification code", http.StatusInternalServerError, nil)
			return
		}

		log.Printf("[AUTH] Password verified for user %s, awaiting 2FA", user.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"requires_2fa":       true,
			"token":              pending,
			"expires_in_minutes": validity,
		})
		return
	}

	token, err := generateJWT(user, "", sessionValidity())
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authResponse{Token: token, User: user})
}

type verify2FARequest struct {
	OTPCode    string `json:"otp_code" validate:"omitempty,len=6,numeric"`
	BackupCode string `json:"backup_code" validate:"omitempty,len=10,alphanum"`
}

// VerifyLogin2FA exchanges a pending token plus OTP for a session token
// @Summary Verify login 2FA
// @Description Complete login by verifying the emailed code or a backup code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} authResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} map[string]string
// @Router /auth/login/verify [post]
func (s *AuthService) VerifyLogin2FA(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		SendErrorResponse(w, "Pending login token required", http.StatusUnauthorized, nil)
		return
	}
	claims, err := middleware.ParseToken(parts[1])
	if err != nil || claims.Scope != "2fa_pending" {
		SendErrorResponse(w, "Pending login token required", http.StatusUnauthorized, nil)
		return
	}

	var req verify2FARequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if (req.OTPCode == "") == (req.BackupCode == "") {
		SendErrorResponse(w, "Provide either otp_code or backup_code", http.StatusBadRequest, nil)
		return
	}

	if req.OTPCode != "" {
		err = s.twofa.Verify(claims.UserID, req.OTPCode)
	} else {
		err = s.twofa.VerifyBackupCode(claims.UserID, req.BackupCode)
	}
	if err != nil {
		log.Printf("[AUTH] 2FA verification failed for user %s: %v", claims.UserID, err)
		sendBusinessError(w, err)
		return
	}

	user, _, err := s.loadUser(`SELECT `+userColumns+` FROM users WHERE id = $1`, claims.UserID)
	if err != nil {
		SendErrorResponse(w, "Failed to complete login", http.StatusInternalServerError, nil)
		return
	}

	token, err := generateJWT(user, "", sessionValidity())
	if err != nil {
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] 2FA login completed for user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authResponse{Token: token, User: user})
}

// Logout revokes the current session token
// @Summary Logout
// @Description Blacklist the presented token until its natural expiry
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:]

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			if err := s.redis.Set(ctx, key, "1", sessionValidity()).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// Me returns the authenticated user's profile
// @Summary Get profile
// @Description Get the authenticated user's profile
// @Tags auth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} map[string]string
// @Router /auth/me [get]
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	user, _, err := s.loadUser(`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch profile", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// GetPreferences returns the user's notification preferences
// @Summary Get notification preferences
// @Description Get the authenticated user's notification preference flags
// @Tags settings
// @Produce json
// @Success 200 {object} models.NotificationPreferences
// @Router /settings/preferences [get]
func (s *AuthService) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var raw []byte
	if err := s.db.QueryRow(`SELECT notification_preferences FROM users WHERE id = $1`, userID).Scan(&raw); err != nil {
		SendErrorResponse(w, "Failed to fetch preferences", http.StatusInternalServerError, nil)
		return
	}

	prefs := models.DefaultNotificationPreferences()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			log.Printf("[AUTH] Malformed preferences for user %s: %v", userID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// UpdatePreferences replaces the user's notification preferences
// @Summary Update notification preferences
// @Description Replace the authenticated user's notification preference flags
// @Tags settings
// @Accept json
// @Produce json
// @Success 200 {object} models.NotificationPreferences
// @Failure 400 {object} ErrorResponse
// @Router /settings/preferences [put]
func (s *AuthService) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var prefs models.NotificationPreferences
	if err := decodeJSONBody(w, r, &prefs); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	raw, err := json.Marshal(prefs)
	if err != nil {
		SendErrorResponse(w, "Failed to update preferences", http.StatusInternalServerError, nil)
		return
	}
	if _, err := s.db.Exec(`
		UPDATE users SET notification_preferences = $1, updated_at = NOW() WHERE id = $2`, raw, userID); err != nil {
		log.Printf("[AUTH] Failed to update preferences for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to update preferences", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}
