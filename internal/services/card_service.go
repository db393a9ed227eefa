package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/conciergebank/backend/internal/models"
)

// CardService issues debit cards and handles card issue reports.
type CardService struct {
	db        *sql.DB
	accounts  *AccountService
	notifier  *NotificationService
	validator *ValidationHelper
}

func NewCardService(db *sql.DB, accounts *AccountService, notifier *NotificationService, validator *ValidationHelper) *CardService {
	return &CardService{db: db, accounts: accounts, notifier: notifier, validator: validator}
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	digits := make([]byte, n)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}

func luhnCheckDigit(partial string) byte {
	sum := 0
	// partial is the 15-digit prefix; doubling starts from its last digit.
	double := true
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		double = !double
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}

// generateCardNumber returns a Luhn-valid 16-digit number with a "4" prefix.
func generateCardNumber() (string, error) {
	body, err := randomDigits(14)
	if err != nil {
		return "", err
	}
	partial := "4" + body
	return partial + string(luhnCheckDigit(partial)), nil
}

type issueCardRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

// IssueCard issues a new debit card for an account
// @Summary Issue a card
// @Description Issue a new debit card linked to one of the user's accounts
// @Tags cards
// @Accept json
// @Produce json
// @Success 201 {object} object{card=models.Card,cvv=string}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} map[string]string
// @Router /cards [post]
func (crs *CardService) IssueCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req issueCardRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := crs.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := crs.accounts.VerifyOwnership(req.AccountID, userID); err != nil {
		sendBusinessError(w, err)
		return
	}

	number, err := generateCardNumber()
	if err != nil {
		SendErrorResponse(w, "Failed to issue card", http.StatusInternalServerError, nil)
		return
	}
	cvv, err := randomDigits(3)
	if err != nil {
		SendErrorResponse(w, "Failed to issue card", http.StatusInternalServerError, nil)
		return
	}

	card := models.Card{
		ID:         uuid.New().String(),
		UserID:     userID,
		AccountID:  req.AccountID,
		CardNumber: number,
		CVV:        cvv,
		Expiry:     time.Now().AddDate(4, 0, 0).Format("01/06"),
		Status:     "active",
	}
	err = crs.db.QueryRow(`
		INSERT INTO cards (id, user_id, account_id, card_number, cvv, expiry, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING created_at`,
		card.ID, card.UserID, card.AccountID, card.CardNumber, card.CVV, card.Expiry, card.Status).
		Scan(&card.CreatedAt)
	if err != nil {
		log.Printf("[CARD] Failed to persist card %s: %v", card.ID, err)
		SendErrorResponse(w, "Failed to issue card", http.StatusInternalServerError, nil)
		return
	}

	crs.notifier.Notify(r.Context(), userID, "security",
		"A new debit card ending in "+number[len(number)-4:]+" was issued",
		"New Card Issued", cardIssuedEmail(number[len(number)-4:]))

	log.Printf("[CARD] Card %s issued for user %s", card.ID, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	// CVV is returned once at issuance and never readable again.
	json.NewEncoder(w).Encode(map[string]any{"card": card, "cvv": cvv})
}

// ListCards lists the user's cards
// @Summary List cards
// @Description List the authenticated user's debit cards
// @Tags cards
// @Produce json
// @Success 200 {array} models.Card
// @Router /cards [get]
func (crs *CardService) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := crs.db.Query(`
		SELECT id, user_id, account_id, card_number, expiry, status, created_at
		FROM cards WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		log.Printf("[CARD] Failed to list cards for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch cards", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		var c models.Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.AccountID, &c.CardNumber,
			&c.Expiry, &c.Status, &c.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch cards", http.StatusInternalServerError, nil)
			return
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch cards", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cards)
}

type reportIssueRequest struct {
	CardID    string `json:"card_id" validate:"required"`
	IssueType string `json:"issue_type" validate:"required,oneof=lost stolen damaged fraud"`
}

// ReportIssue reports a lost, stolen, damaged, or compromised card
// @Summary Report a card issue
// @Description Freeze a card and record the reported issue
// @Tags cards
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cards/report [post]
func (crs *CardService) ReportIssue(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req reportIssueRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := crs.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := crs.db.Exec(`
		UPDATE cards SET status = 'frozen' WHERE id = $1 AND user_id = $2`, req.CardID, userID)
	if err != nil {
		log.Printf("[CARD] Failed to freeze card %s: %v", req.CardID, err)
		SendErrorResponse(w, "Failed to report issue", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		sendBusinessError(w, fmt.Errorf("%w: card", ErrNotFound))
		return
	}

	crs.notifier.Notify(r.Context(), userID, "card_issue_reported",
		"Card issue reported: "+req.IssueType+". The card has been frozen.",
		"", "")

	log.Printf("[CARD] Issue %q reported for card %s, user %s", req.IssueType, req.CardID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Card frozen. A replacement will be mailed."})
}
