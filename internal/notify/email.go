// Package notify delivers whale alerts to people: email through the Resend
// API and Telegram through the Bot API. The notifier binary drives it from
// the alert topic.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"whale-watch/internal/bus"
)

const resendAPIURL = "https://api.resend.com/emails"

// EmailSender sends alerts via the Resend API.
type EmailSender struct {
	apiKey    string
	fromEmail string
	apiURL    string
	client    *http.Client
}

// NewEmailSender creates a Resend email sender.
func NewEmailSender(apiKey, fromEmail string) *EmailSender {
	return &EmailSender{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		apiURL:    resendAPIURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SendToEmailWithHTML sends an email with both text and HTML content.
func (s *EmailSender) SendToEmailWithHTML(toEmail, subject, textBody, htmlBody string) error {
	if s.apiKey == "" {
		return fmt.Errorf("Resend API key is not configured")
	}
	if s.fromEmail == "" {
		return fmt.Errorf("sender email is not configured")
	}
	if toEmail == "" {
		return fmt.Errorf("recipient email is required")
	}

	payload := map[string]interface{}{
		"from":    s.fromEmail,
		"to":      []string{toEmail},
		"subject": subject,
		"text":    textBody,
	}
	if htmlBody != "" {
		payload["html"] = htmlBody
	} else {
		// Fallback: convert text to simple HTML
		payload["html"] = fmt.Sprintf("<p>%s</p>", strings.ReplaceAll(textBody, "\n", "<br>"))
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequest("POST", s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email via Resend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Resend API returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("📧 Email sent via Resend:\nTo: %s\nSubject: %s\n", toEmail, subject)
	return nil
}

// SendAlert sends a whale alert email using the formatted template.
func (s *EmailSender) SendAlert(toEmail string, event bus.AlertEvent) error {
	subject, textBody, htmlBody := FormatWhaleAlertEmail(event)
	return s.SendToEmailWithHTML(toEmail, subject, textBody, htmlBody)
}
