package bus

import (
	"encoding/json"
	"time"

	"whale-watch/internal/core"
)

// Kafka topic names
const (
	TopicAlerts        = "whale.alerts"
	TopicToolRequests  = "tools.requests"
	TopicToolResponses = "tools.responses"
)

// AlertEvent is the Kafka message payload for a whale deposit alert. The
// recipient fields are optional; the notifier falls back to its configured
// recipients when they are empty.
type AlertEvent struct {
	RecipientEmail string    `json:"recipient_email,omitempty"`
	TelegramChatID string    `json:"telegram_chat_id,omitempty"`
	ChainID        string    `json:"chain_id"`
	TxHash         string    `json:"transaction_hash"`
	From           string    `json:"from_address"`
	To             string    `json:"to_address"`
	TokenSymbol    string    `json:"token_symbol"`
	Amount         float64   `json:"amount"`
	ValueUSD       float64   `json:"value_usd"`
	BlockNumber    uint64    `json:"block_number"`
	Timestamp      time.Time `json:"timestamp"`
	AlertType      string    `json:"alert_type"`
	Message        string    `json:"message"`
}

// NewAlertEvent maps a detected alert onto the wire payload.
func NewAlertEvent(a core.Alert, message string) AlertEvent {
	return AlertEvent{
		ChainID:     a.ChainID,
		TxHash:      a.TxHash,
		From:        a.From,
		To:          a.To,
		TokenSymbol: a.TokenSymbol,
		Amount:      a.Amount,
		ValueUSD:    a.ValueUSD,
		BlockNumber: a.BlockNumber,
		Timestamp:   a.Timestamp,
		AlertType:   a.AlertType,
		Message:     message,
	}
}

// ToolRequest asks a remote tool agent to run one tool call. The correlation
// ID ties the eventual response back to the pending slot on the sender.
type ToolRequest struct {
	CorrelationID string                 `json:"correlation_id"`
	Tool          string                 `json:"tool_name"`
	Args          map[string]interface{} `json:"arguments,omitempty"`
	RequestedAt   time.Time              `json:"requested_at"`
}

// ToolResponse carries the outcome of one remote tool call.
type ToolResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
}
