package core

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxTransfers caps how many deposits a single scan reports.
const DefaultMaxTransfers = 50

// Alert types, by transfer direction relative to the watched contract
const (
	AlertTypeDeposit       = "whale_deposit"
	AlertTypeWithdrawal    = "whale_withdrawal"
	AlertTypeLargeTransfer = "large_transfer"
)

// Transfer is one transaction observed from the chain explorer.
type Transfer struct {
	Hash      string
	From      string
	To        string
	Value     string // raw on-chain value, hex ("0x...") or decimal string
	Token     string // token contract address; empty for native transfers
	Block     uint64
	Timestamp string // ISO-8601 timestamp from upstream, may be empty
}

// Deposit is a classified bridge deposit with its USD value.
type Deposit struct {
	TxHash    string
	User      string // depositor (the transfer's from address)
	Token     TokenInfo
	Amount    float64 // token units
	AmountUSD float64
	Block     uint64
	Timestamp time.Time // zero when upstream gave none or it failed to parse
}

// Alert is the event emitted when a deposit clears the threshold
type Alert struct {
	ChainID     string    `json:"chain_id"`
	TxHash      string    `json:"transaction_hash"`
	From        string    `json:"from_address"`
	To          string    `json:"to_address"`
	TokenSymbol string    `json:"token_symbol"`
	Amount      float64   `json:"amount"`
	ValueUSD    float64   `json:"value_usd"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
	AlertType   string    `json:"alert_type"`
}

// WhaleRule defines what counts as a whale deposit on one bridge
type WhaleRule struct {
	ID              int64
	Name            string
	ChainID         string
	Bridge          common.Address
	ThresholdUSD    float64
	LookbackMinutes int
	MaxTransfers    int
	Enabled         bool
	RecipientEmail  string // Email address to send alerts to
	TelegramChatID  string
}

// Lookback returns the rule's scan window as a duration.
func (r *WhaleRule) Lookback() time.Duration {
	return time.Duration(r.LookbackMinutes) * time.Minute
}

// ClassifyTransferType labels a transfer by its direction relative to the
// watched address.
func ClassifyTransferType(from, to string, watched common.Address) string {
	hex := watched.Hex()
	switch {
	case strings.EqualFold(to, hex):
		return AlertTypeDeposit
	case strings.EqualFold(from, hex):
		return AlertTypeWithdrawal
	default:
		return AlertTypeLargeTransfer
	}
}
