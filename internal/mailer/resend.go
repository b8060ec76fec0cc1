package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultResendBaseURL = "https://api.resend.com"

// ResendSender posts messages to the Resend HTTP API.
type ResendSender struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewResendSender(apiKey, baseURL string, timeout time.Duration) *ResendSender {
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	return &ResendSender{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}

	body, err := json.Marshal(resendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed resendResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 300 {
		reason := parsed.Message
		if reason == "" {
			reason = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("resend send failed: %s: %s", resp.Status, reason)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("resend send failed: response carried no message id")
	}
	return parsed.ID, nil
}
