package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/conciergebank/backend/internal/models"
)

// AdminService covers back-office user management. Every route it serves
// sits behind the admin role check in the router.
type AdminService struct {
	db        *sql.DB
	notifier  *NotificationService
	validator *ValidationHelper
}

func NewAdminService(db *sql.DB, notifier *NotificationService, validator *ValidationHelper) *AdminService {
	return &AdminService{db: db, notifier: notifier, validator: validator}
}

// ListUsers lists every registered user
// @Summary List users
// @Description List all registered users, newest first
// @Tags admin
// @Produce json
// @Success 200 {array} models.User
// @Failure 403 {object} map[string]string
// @Router /admin/users [get]
func (as *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := as.db.Query(`
		SELECT id, email, full_name, phone, address, role, account_status,
			transactions_blocked, two_factor_enabled, notification_preferences, created_at, updated_at
		FROM users ORDER BY created_at DESC LIMIT 200`)
	if err != nil {
		log.Printf("[ADMIN] Failed to list users: %v", err)
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Phone, &u.Address,
			&u.Role, &u.AccountStatus, &u.TransactionsBlocked, &u.TwoFactorEnabled,
			&u.Preferences, &u.CreatedAt, &u.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// setUserFlag runs one of the admin toggles against a target user. The
// acting admin can never toggle their own row.
func (as *AdminService) setUserFlag(w http.ResponseWriter, r *http.Request, query, action string, guardSelf bool) {
	adminID, _ := r.Context().Value("userID").(string)
	targetID := chi.URLParam(r, "id")

	if guardSelf && targetID == adminID {
		SendErrorResponse(w, fmt.Sprintf("Cannot %s yourself", action), http.StatusBadRequest, nil)
		return
	}

	result, err := as.db.Exec(query, targetID)
	if err != nil {
		log.Printf("[ADMIN] Failed to %s user %s: %v", action, targetID, err)
		SendErrorResponse(w, "Failed to update user", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[ADMIN] User %s: %s by admin %s", targetID, action, adminID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// BlockUser blocks a user from logging in
// @Summary Block user
// @Tags admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/users/{id}/block [post]
func (as *AdminService) BlockUser(w http.ResponseWriter, r *http.Request) {
	as.setUserFlag(w, r, `
		UPDATE users SET account_status = 'blocked', updated_at = NOW() WHERE id = $1`,
		"block", true)
}

// UnblockUser restores a blocked user to active
// @Summary Unblock user
// @Tags admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/users/{id}/unblock [post]
func (as *AdminService) UnblockUser(w http.ResponseWriter, r *http.Request) {
	as.setUserFlag(w, r, `
		UPDATE users SET account_status = 'active', updated_at = NOW() WHERE id = $1`,
		"unblock", false)
}

// BlockTransactions freezes a user's transactions while leaving login intact
// @Summary Block user transactions
// @Tags admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/users/{id}/block-transactions [post]
func (as *AdminService) BlockTransactions(w http.ResponseWriter, r *http.Request) {
	as.setUserFlag(w, r, `
		UPDATE users SET transactions_blocked = TRUE, updated_at = NOW() WHERE id = $1`,
		"block transactions for", true)
}

// UnblockTransactions lifts a transaction freeze
// @Summary Unblock user transactions
// @Tags admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/users/{id}/unblock-transactions [post]
func (as *AdminService) UnblockTransactions(w http.ResponseWriter, r *http.Request) {
	as.setUserFlag(w, r, `
		UPDATE users SET transactions_blocked = FALSE, updated_at = NOW() WHERE id = $1`,
		"unblock transactions for", false)
}

type adminNotifyRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Type      string `json:"type" validate:"omitempty,oneof=admin_message account_alert security transaction"`
	Message   string `json:"message" validate:"required,min=1,max=1000"`
	SendEmail bool   `json:"send_email"`
}

// SendNotification pushes a notification to a specific user
// @Summary Send notification
// @Description Send an in-app notification, optionally with an email copy
// @Tags admin
// @Accept json
// @Produce json
// @Success 201 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /admin/notifications/send [post]
func (as *AdminService) SendNotification(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)

	var req adminNotifyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := as.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Type == "" {
		req.Type = "admin_message"
	}

	title := adminNotificationTitle(req.Type)
	subject, html := "", ""
	if req.SendEmail {
		subject = title
		html = adminMessageEmail(title, req.Message)
	}
	as.notifier.Notify(r.Context(), req.UserID, req.Type, req.Message, subject, html)

	log.Printf("[ADMIN] Notification sent to user %s by admin %s", req.UserID, adminID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

func adminNotificationTitle(notificationType string) string {
	switch notificationType {
	case "account_alert":
		return "Account Alert"
	case "security":
		return "Security Notice"
	case "transaction":
		return "Transaction Update"
	default:
		return "Admin Message"
	}
}

type adminStats struct {
	TotalUsers    int             `json:"total_users"`
	TotalAccounts int             `json:"total_accounts"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	TotalBills    int             `json:"total_bills"`
}

// Stats returns dashboard counters
// @Summary Admin stats
// @Description Aggregate user, account, balance and bill counters
// @Tags admin
// @Produce json
// @Success 200 {object} adminStats
// @Router /admin/stats [get]
func (as *AdminService) Stats(w http.ResponseWriter, r *http.Request) {
	var stats adminStats
	err := as.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM accounts),
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COUNT(*) FROM bills)`).
		Scan(&stats.TotalUsers, &stats.TotalAccounts, &stats.TotalBalance, &stats.TotalBills)
	if err != nil {
		log.Printf("[ADMIN] Failed to compute stats: %v", err)
		SendErrorResponse(w, "Failed to fetch stats", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
