package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestResendClient_Send(t *testing.T) {
	t.Run("successful send returns the provider id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/emails", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			assert.Equal(t, "Welcome", payload["subject"])

			json.NewEncoder(w).Encode(map[string]string{"id": "email-123"})
		}))
		defer server.Close()

		viper.Set("email.base_url", server.URL)
		viper.Set("email.api_key", "test-key")
		viper.Set("email.from", "Concierge Bank <noreply@example.com>")
		client := NewResendClient()

		id, err := client.Send(context.Background(), "jane@example.com", "Welcome", "<p>hi</p>")
		assert.NoError(t, err)
		assert.Equal(t, "email-123", id)
	})

	t.Run("non-200 wraps the upstream error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		viper.Set("email.base_url", server.URL)
		client := NewResendClient()

		_, err := client.Send(context.Background(), "jane@example.com", "Welcome", "<p>hi</p>")
		assert.ErrorIs(t, err, ErrUpstream)
	})
}
