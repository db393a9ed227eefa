package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/conciergebank/backend/internal/models"
)

// routedRequest is authedRequest with a chi {id} path parameter attached.
func routedRequest(method, target string, body []byte, id string) *http.Request {
	req := authedRequest(method, target, body)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newBeneficiaryFixture(t *testing.T) (*BeneficiaryService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	service := NewBeneficiaryService(db, NewValidationHelper())
	return service, mock, func() { db.Close() }
}

func TestBeneficiaryService_ListBeneficiaries(t *testing.T) {
	service, mock, cleanup := newBeneficiaryFixture(t)
	defer cleanup()

	mock.ExpectQuery("FROM beneficiaries WHERE user_id = \\$1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "full_name", "relationship", "email", "phone", "percentage", "created_at",
		}).
			AddRow("ben-1", "user-1", "Mary Doe", "spouse", "mary@example.com", "", 60, time.Now()).
			AddRow("ben-2", "user-1", "John Doe Jr", "child", "", "", 40, time.Now()))

	w := httptest.NewRecorder()
	service.ListBeneficiaries(w, authedRequest("GET", "/beneficiaries", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var beneficiaries []models.Beneficiary
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &beneficiaries))
	assert.Len(t, beneficiaries, 2)
	assert.Equal(t, "Mary Doe", beneficiaries[0].FullName)
	assert.Equal(t, 60, beneficiaries[0].Percentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeneficiaryService_AddBeneficiary(t *testing.T) {
	t.Run("registers a beneficiary", func(t *testing.T) {
		service, mock, cleanup := newBeneficiaryFixture(t)
		defer cleanup()

		mock.ExpectQuery("INSERT INTO beneficiaries").
			WithArgs(sqlmock.AnyArg(), "user-1", "Mary Doe", "spouse", "mary@example.com", "", 60).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		body, _ := json.Marshal(map[string]any{
			"full_name":    "Mary Doe",
			"relationship": "spouse",
			"email":        "mary@example.com",
			"percentage":   60,
		})
		w := httptest.NewRecorder()
		service.AddBeneficiary(w, authedRequest("POST", "/beneficiaries", body))

		assert.Equal(t, http.StatusCreated, w.Code)
		var beneficiary models.Beneficiary
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &beneficiary))
		assert.Equal(t, "user-1", beneficiary.UserID)
		assert.NotEmpty(t, beneficiary.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a percentage over 100", func(t *testing.T) {
		service, mock, cleanup := newBeneficiaryFixture(t)
		defer cleanup()

		body, _ := json.Marshal(map[string]any{
			"full_name":    "Mary Doe",
			"relationship": "spouse",
			"percentage":   120,
		})
		w := httptest.NewRecorder()
		service.AddBeneficiary(w, authedRequest("POST", "/beneficiaries", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a missing relationship", func(t *testing.T) {
		service, mock, cleanup := newBeneficiaryFixture(t)
		defer cleanup()

		body, _ := json.Marshal(map[string]any{
			"full_name":  "Mary Doe",
			"percentage": 60,
		})
		w := httptest.NewRecorder()
		service.AddBeneficiary(w, authedRequest("POST", "/beneficiaries", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBeneficiaryService_UpdateBeneficiary(t *testing.T) {
	t.Run("replaces the stored details", func(t *testing.T) {
		service, mock, cleanup := newBeneficiaryFixture(t)
		defer cleanup()

		mock.ExpectQuery("UPDATE beneficiaries").
			WithArgs("Mary Smith", "spouse", "mary@example.com", "", 50, "ben-1", "user-1").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		body, _ := json.Marshal(map[string]any{
			"full_name":    "Mary Smith",
			"relationship": "spouse",
			"email":        "mary@example.com",
			"percentage":   50,
		})
		w := httptest.NewRecorder()
		service.UpdateBeneficiary(w, routedRequest("PUT", "/beneficiaries/ben-1", body, "ben-1"))

		assert.Equal(t, http.StatusOK, w.Code)
		var beneficiary models.Beneficiary
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &beneficiary))
		assert.Equal(t, "Mary Smith", beneficiary.FullName)
		assert.Equal(t, 50, beneficiary.Percentage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign beneficiary looks missing", func(t *testing.T) {
		service, mock, cleanup := newBeneficiaryFixture(t)
		defer cleanup()

		mock.ExpectQuery("UPDATE beneficiaries").
			WithArgs("Mary Smith", "spouse", "", "", 50, "ben-9", "user-1").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(map[string]any{
			"full_name":    "Mary Smith",
			"relationship": "spouse",
			"percentage":   50,
		})
		w := httptest.NewRecorder()
		service.UpdateBeneficiary(w, routedRequest("PUT", "/beneficiaries/ben-9", body, "ben-9"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBeneficiaryService_DeleteBeneficiary(t *testing.T) {
	t.Run("removes the row", func(t *testing.T) {
		service, mock, cleanup := newBeneficiaryFixture(t)
		defer cleanup()

		mock.ExpectExec("DELETE FROM beneficiaries WHERE id = \\$1 AND user_id = \\$2").
			WithArgs("ben-1", "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		service.DeleteBeneficiary(w, routedRequest("DELETE", "/beneficiaries/ben-1", nil, "ben-1"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign beneficiary looks missing", func(t *testing.T) {
		service, mock, cleanup := newBeneficiaryFixture(t)
		defer cleanup()

		mock.ExpectExec("DELETE FROM beneficiaries WHERE id = \\$1 AND user_id = \\$2").
			WithArgs("ben-9", "user-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		service.DeleteBeneficiary(w, routedRequest("DELETE", "/beneficiaries/ben-9", nil, "ben-9"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
