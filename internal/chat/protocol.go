// Package chat implements the agent's conversational surface: the message
// envelope ASI:One compatible agents exchange, keyword routing of incoming
// queries, and the fixed-format reports the agent answers with.
package chat

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Content chunk types.
const (
	ContentTypeText       = "text"
	ContentTypeEndSession = "end-session"
)

// Content is one chunk inside a chat message.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is the chat envelope. Replies carry a text chunk followed by an
// end-session chunk, which tells the peer no conversation history is kept.
type Message struct {
	MsgID     string    `json:"msg_id"`
	Timestamp time.Time `json:"timestamp"`
	Content   []Content `json:"content"`
}

// NewTextMessage builds a chat message with a fresh ID around one text chunk.
func NewTextMessage(text string, endSession bool) Message {
	content := []Content{{Type: ContentTypeText, Text: text}}
	if endSession {
		content = append(content, Content{Type: ContentTypeEndSession})
	}
	return Message{
		MsgID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Content:   content,
	}
}

// Text concatenates the message's text chunks.
func (m Message) Text() string {
	var out string
	for _, c := range m.Content {
		if c.Type == ContentTypeText {
			out += c.Text
		}
	}
	return out
}

// Acknowledgement confirms receipt of one message before the reply is built.
type Acknowledgement struct {
	Timestamp         time.Time `json:"timestamp"`
	AcknowledgedMsgID string    `json:"acknowledged_msg_id"`
}

// NewAcknowledgement builds the receipt for a message ID.
func NewAcknowledgement(msgID string) Acknowledgement {
	return Acknowledgement{
		Timestamp:         time.Now().UTC(),
		AcknowledgedMsgID: msgID,
	}
}

// WhaleQueryRequest is the structured form of a free-text query.
type WhaleQueryRequest struct {
	Query string `json:"query"`
}

// Validate rejects empty queries.
func (r WhaleQueryRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query must not be empty")
	}
	return nil
}

// WhaleQueryResponse carries the rendered answer.
type WhaleQueryResponse struct {
	Response string `json:"response"`
}

// WhaleDetectionRequest asks for an ad-hoc whale scan with optional
// overrides. Zero values select the configured defaults.
type WhaleDetectionRequest struct {
	ThresholdUSD    float64 `json:"threshold_usd,omitempty"`
	LookbackMinutes int     `json:"lookback_minutes,omitempty"`
}

// WalletEnrichmentRequest asks for the trading profile of one wallet.
type WalletEnrichmentRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// Validate rejects malformed addresses.
func (r WalletEnrichmentRequest) Validate() error {
	if !common.IsHexAddress(r.WalletAddress) {
		return fmt.Errorf("wallet_address must be a 0x-prefixed hex address")
	}
	return nil
}
