package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whale-watch/internal/bus"
)

func testEvent() bus.AlertEvent {
	return bus.AlertEvent{
		ChainID:     "42161",
		TxHash:      "0xwhale1",
		From:        "0xsender000000000000000000000000000000001",
		To:          "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7",
		TokenSymbol: "USDC",
		Amount:      150000,
		ValueUSD:    150000,
		BlockNumber: 4200,
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		AlertType:   "whale_deposit",
		Message:     "whale deposit detected",
	}
}

func TestApproxUSD(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{950, "950"},
		{1000, "1K"},
		{150000, "150K"},
		{2300000, "2.3M"},
		{10000000, "10M"},
		{1100000000, "1.1B"},
	}
	for _, tc := range cases {
		if got := approxUSD(tc.value); got != tc.want {
			t.Errorf("approxUSD(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestFormatWhaleAlertEmail(t *testing.T) {
	subject, textBody, htmlBody := FormatWhaleAlertEmail(testEvent())

	if subject != "🐋 Whale Alert: $150K USDC deposit on chain 42161" {
		t.Errorf("unexpected subject: %q", subject)
	}
	for _, want := range []string{"Chain: 42161", "Value: $150000.00", "Transaction: 0xwhale1", "From: 0xsender"} {
		if !strings.Contains(textBody, want) {
			t.Errorf("text body missing %q:\n%s", want, textBody)
		}
	}
	for _, want := range []string{"$150000.00", "0xwhale1", "Large USDC Deposit"} {
		if !strings.Contains(htmlBody, want) {
			t.Errorf("html body missing %q", want)
		}
	}
}

func TestFormatWhaleAlertTelegram(t *testing.T) {
	text := formatWhaleAlertTelegram(testEvent())
	for _, want := range []string{"🐋 <b>Whale Deposit Detected</b>", "$150K USDC", "<code>0xwhale1</code>", "2025-06-01T12:00:00Z"} {
		if !strings.Contains(text, want) {
			t.Errorf("telegram text missing %q:\n%s", want, text)
		}
	}
}

func TestEmailSenderSendAlert(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sender := NewEmailSender("test-key", "alerts@example.com")
	sender.apiURL = ts.URL

	if err := sender.SendAlert("ops@example.com", testEvent()); err != nil {
		t.Fatalf("SendAlert failed: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPayload["from"] != "alerts@example.com" {
		t.Errorf("unexpected from: %v", gotPayload["from"])
	}
	to, ok := gotPayload["to"].([]interface{})
	if !ok || len(to) != 1 || to[0] != "ops@example.com" {
		t.Errorf("unexpected to: %v", gotPayload["to"])
	}
	subject, _ := gotPayload["subject"].(string)
	if !strings.Contains(subject, "$150K USDC") {
		t.Errorf("unexpected subject: %q", subject)
	}
	if gotPayload["text"] == "" || gotPayload["html"] == "" {
		t.Error("expected both text and html bodies")
	}
}

func TestEmailSenderErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	sender := NewEmailSender("bad-key", "alerts@example.com")
	sender.apiURL = ts.URL
	err := sender.SendAlert("ops@example.com", testEvent())
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("expected status 401 error, got %v", err)
	}

	unconfigured := NewEmailSender("", "alerts@example.com")
	if err := unconfigured.SendAlert("ops@example.com", testEvent()); err == nil {
		t.Error("expected error when API key missing")
	}
	noFrom := NewEmailSender("key", "")
	if err := noFrom.SendAlert("ops@example.com", testEvent()); err == nil {
		t.Error("expected error when sender email missing")
	}
	noRecipient := NewEmailSender("key", "alerts@example.com")
	if err := noRecipient.SendToEmailWithHTML("", "s", "t", "h"); err == nil {
		t.Error("expected error when recipient missing")
	}
}

func TestTelegramSenderSendAlert(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	sender := NewTelegramSender("123:abc")
	sender.apiURL = ts.URL

	if err := sender.SendAlert("42", testEvent()); err != nil {
		t.Fatalf("SendAlert failed: %v", err)
	}
	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if gotPayload["chat_id"] != "42" {
		t.Errorf("unexpected chat_id: %v", gotPayload["chat_id"])
	}
	if gotPayload["parse_mode"] != "HTML" {
		t.Errorf("unexpected parse_mode: %v", gotPayload["parse_mode"])
	}
	text, _ := gotPayload["text"].(string)
	if !strings.Contains(text, "Whale Deposit Detected") {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestTelegramSenderSkipsEmptyChat(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	sender := NewTelegramSender("123:abc")
	sender.apiURL = ts.URL
	if err := sender.SendAlert("", testEvent()); err != nil {
		t.Fatalf("SendAlert with empty chat returned error: %v", err)
	}
	if called {
		t.Error("expected no API call for empty chat ID")
	}
}

func TestTelegramSenderAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	sender := NewTelegramSender("123:abc")
	sender.apiURL = ts.URL
	err := sender.SendAlert("999", testEvent())
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("expected status 400 error, got %v", err)
	}
}
