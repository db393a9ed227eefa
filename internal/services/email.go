package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// EmailSender delivers a single HTML email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// ResendClient sends mail through the Resend HTTP API.
type ResendClient struct {
	httpClient *http.Client
	baseURL    string
}

const emailSendTimeout = 5 * time.Second

func NewResendClient() *ResendClient {
	viper.SetDefault("email.base_url", "https://api.resend.com")
	return &ResendClient{
		httpClient: &http.Client{Timeout: emailSendTimeout},
		baseURL:    viper.GetString("email.base_url"),
	}
}

// Send posts the message and returns the provider message id.
func (c *ResendClient) Send(ctx context.Context, to, subject, html string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"from":    viper.GetString("email.from"),
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, emailSendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+viper.GetString("email.api_key"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: email API returned status %d", ErrUpstream, resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	log.Printf("[EMAIL] Sent to %s: %s (id: %s)", to, subject, result.ID)
	return result.ID, nil
}
