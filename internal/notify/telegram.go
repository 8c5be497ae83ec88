package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"whale-watch/internal/bus"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramSender sends alert notifications via the Telegram Bot API.
type TelegramSender struct {
	botToken string
	apiURL   string
	client   *http.Client
}

// NewTelegramSender creates a Telegram sender for one bot.
func NewTelegramSender(botToken string) *TelegramSender {
	return &TelegramSender{
		botToken: botToken,
		apiURL:   telegramAPIURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// sendMessage posts an HTML-formatted message to a Telegram chat.
func (t *TelegramSender) sendMessage(chatID, text string) error {
	if t.botToken == "" {
		return fmt.Errorf("telegram bot token is not configured")
	}
	if chatID == "" {
		return fmt.Errorf("telegram chat ID is required")
	}

	data, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	resp, err := t.client.Post(endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("📨 Telegram message sent to chat %s", chatID)
	return nil
}

// SendAlert sends a whale deposit alert to the specified Telegram chat.
func (t *TelegramSender) SendAlert(chatID string, event bus.AlertEvent) error {
	if chatID == "" {
		return nil
	}
	return t.sendMessage(chatID, formatWhaleAlertTelegram(event))
}

func formatWhaleAlertTelegram(event bus.AlertEvent) string {
	return fmt.Sprintf(
		"🐋 <b>Whale Deposit Detected</b>\n\n"+
			"💰 <b>$%s %s</b>\n\n"+
			"<b>Chain:</b> %s\n"+
			"<b>From:</b> <code>%s</code>\n"+
			"<b>Bridge:</b> <code>%s</code>\n"+
			"<b>Tx:</b> <code>%s</code>\n"+
			"<b>Block:</b> %d\n"+
			"<b>Time:</b> %s",
		approxUSD(event.ValueUSD), event.TokenSymbol,
		event.ChainID,
		event.From,
		event.To,
		event.TxHash,
		event.BlockNumber,
		event.Timestamp.Format(time.RFC3339),
	)
}
