package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conciergebank/backend/internal/models"
)

// NotificationService records in-app notifications and dispatches the
// optional email copy, gated by the user's preference flags.
type NotificationService struct {
	db    *sql.DB
	email EmailSender
}

func NewNotificationService(db *sql.DB, email EmailSender) *NotificationService {
	return &NotificationService{db: db, email: email}
}

// emailPreferenceFor maps an event type to the preference flag that
// controls its email copy. Unmapped types are always sent.
func emailPreferenceFor(notificationType string) string {
	switch notificationType {
	case "transaction", "transfer", "account_created":
		return "email_transactions"
	case "bill_payment", "bill_due":
		return "email_bills"
	case "security", "login_alert", "card_issue_reported", "password_changed":
		return "email_security"
	case "marketing":
		return "email_marketing"
	default:
		return ""
	}
}

// Notify appends the in-app notification row and, when subject and HTML are
// supplied and the user's preferences allow it, sends the email copy. The
// row's delivery_method records what actually happened: 'email' only when a
// send is attempted, 'in_app' otherwise. Email failures are logged and
// swallowed: notification delivery must never fail the financial operation
// that triggered it.
func (ns *NotificationService) Notify(ctx context.Context, userID, notificationType, message, emailSubject, emailHTML string) {
	wantEmail := emailSubject != "" && emailHTML != ""
	var address string

	if wantEmail {
		if !ns.emailAllowed(userID, notificationType) {
			log.Printf("[NOTIFY] Email suppressed by preference for user %s: %s", userID, notificationType)
			wantEmail = false
		} else if email, err := ns.getUserEmail(userID); err != nil || email == "" {
			log.Printf("[NOTIFY] No email address for user %s, skipping send", userID)
			wantEmail = false
		} else {
			address = email
		}
	}

	delivery := "in_app"
	if wantEmail {
		delivery = "email"
	}
	if err := ns.logNotification(userID, notificationType, message, delivery); err != nil {
		log.Printf("[NOTIFY] Failed to log notification for user %s: %v", userID, err)
	}

	if !wantEmail {
		return
	}
	if _, err := ns.email.Send(ctx, address, emailSubject, emailHTML); err != nil {
		log.Printf("[NOTIFY] Email send failed for user %s: %v", userID, err)
	}
}

func (ns *NotificationService) logNotification(userID, notificationType, message, delivery string) error {
	_, err := ns.db.Exec(`
		INSERT INTO notifications (user_id, type, message, delivery_method, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())`,
		userID, notificationType, message, delivery)
	return err
}

func (ns *NotificationService) getUserEmail(userID string) (string, error) {
	var email string
	err := ns.db.QueryRow(`SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		return "", err
	}
	return email, nil
}

// emailAllowed resolves the preference flag for the event type. Categories
// default on except marketing; a storage error defaults to sending so a bad
// blob never silences security mail.
func (ns *NotificationService) emailAllowed(userID, notificationType string) bool {
	prefKey := emailPreferenceFor(notificationType)
	if prefKey == "" {
		return true
	}

	var raw []byte
	err := ns.db.QueryRow(`SELECT notification_preferences FROM users WHERE id = $1`, userID).Scan(&raw)
	if err != nil {
		log.Printf("[NOTIFY] Preference lookup failed for user %s: %v", userID, err)
		return true
	}

	prefs := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			log.Printf("[NOTIFY] Malformed preferences for user %s: %v", userID, err)
			return true
		}
	}

	if value, ok := prefs[prefKey].(bool); ok {
		return value
	}
	return prefKey != "email_marketing"
}

// ListNotifications returns the authenticated user's notifications
// @Summary List notifications
// @Description Get all notifications for the authenticated user
// @Tags notifications
// @Produce json
// @Success 200 {array} models.Notification
// @Failure 401 {object} map[string]string
// @Router /notifications [get]
func (ns *NotificationService) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := ns.db.Query(`
		SELECT id, user_id, type, message, delivery_method, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.DeliveryMethod, &n.Read, &n.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
			return
		}
		notifications = append(notifications, n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

// MarkNotificationRead marks a single notification as read
// @Summary Mark notification read
// @Description Mark one of the user's notifications as read
// @Tags notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /notifications/{id}/read [put]
func (ns *NotificationService) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	notificationID := chi.URLParam(r, "id")
	result, err := ns.db.Exec(`
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		notificationID, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to update notification", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "Notification not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "read"})
}
