package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrUnknownToken is returned when a transfer carries a token contract the
// registry has no entry for. Callers may resolve metadata on-chain, add the
// token and retry.
var ErrUnknownToken = errors.New("unknown token")

const recentAlertCap = 100

// ProcessedSet remembers transaction hashes that already produced an alert.
type ProcessedSet interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Detector evaluates transfers against a whale rule and emits alerts
type Detector struct {
	rule   *WhaleRule
	tokens *TokenRegistry
	seen   ProcessedSet

	mu            sync.Mutex
	recent        []Alert
	totalCount    int
	lastTriggered time.Time
}

// NewDetector creates a detector for one whale rule
func NewDetector(rule *WhaleRule, tokens *TokenRegistry, seen ProcessedSet) *Detector {
	return &Detector{
		rule:   rule,
		tokens: tokens,
		seen:   seen,
		recent: make([]Alert, 0, recentAlertCap),
	}
}

// Rule returns the detector's active rule.
func (d *Detector) Rule() *WhaleRule {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rule
}

// SetRule swaps the active rule. Used when the rules table changes between
// scans; the dedup set and the alert ring carry over.
func (d *Detector) SetRule(rule *WhaleRule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rule = rule
}

// Tokens returns the detector's token registry.
func (d *Detector) Tokens() *TokenRegistry {
	return d.tokens
}

// DecodeDeposit classifies a transfer against the watched bridge and converts
// its value to token units and USD. ok is false when the transfer is not a
// deposit into the bridge or carries a zero value.
func (d *Detector) DecodeDeposit(t Transfer) (Deposit, bool, error) {
	rule := d.Rule()
	if !strings.EqualFold(t.To, rule.Bridge.Hex()) {
		return Deposit{}, false, nil
	}

	token, known := d.tokens.Lookup(t.Token)
	if !known {
		return Deposit{}, false, ErrUnknownToken
	}

	amount, err := ParseAmount(t.Value, token.Decimals)
	if err != nil {
		return Deposit{}, false, err
	}
	if amount == 0 {
		return Deposit{}, false, nil
	}

	return Deposit{
		TxHash:    t.Hash,
		User:      t.From,
		Token:     token,
		Amount:    amount,
		AmountUSD: amount * token.USDRate,
		Block:     t.Block,
		Timestamp: parseTimestamp(t.Timestamp),
	}, true, nil
}

// Evaluate runs the whale rule over a batch of transfers: decode deposits,
// drop entries below the USD threshold or older than the lookback cutoff,
// sort by USD descending and cap the result. Transfers that fail to decode
// (unknown token, malformed value) are skipped.
func (d *Detector) Evaluate(transfers []Transfer, now time.Time) []Deposit {
	rule := d.Rule()
	if !rule.Enabled {
		return nil
	}

	cutoff := now.Add(-rule.Lookback())
	deposits := make([]Deposit, 0)

	for _, t := range transfers {
		dep, ok, err := d.DecodeDeposit(t)
		if err != nil || !ok {
			continue
		}
		if dep.AmountUSD < rule.ThresholdUSD {
			continue
		}
		// A missing or unparseable timestamp counts as fresh
		if !dep.Timestamp.IsZero() && dep.Timestamp.Before(cutoff) {
			continue
		}
		deposits = append(deposits, dep)
	}

	sort.Slice(deposits, func(i, j int) bool {
		return deposits[i].AmountUSD > deposits[j].AmountUSD
	})

	max := rule.MaxTransfers
	if max <= 0 {
		max = DefaultMaxTransfers
	}
	if len(deposits) > max {
		deposits = deposits[:max]
	}
	return deposits
}

// ProcessNew evaluates a batch and emits alerts for deposits that have not
// been seen before. Dedup failures fail open: if the processed set cannot be
// read, the deposit still alerts.
func (d *Detector) ProcessNew(ctx context.Context, transfers []Transfer, now time.Time) []Alert {
	rule := d.Rule()
	deposits := d.Evaluate(transfers, now)
	alerts := make([]Alert, 0, len(deposits))

	for _, dep := range deposits {
		if seen, err := d.seen.Seen(ctx, dep.TxHash); err == nil && seen {
			continue
		}
		_ = d.seen.Mark(ctx, dep.TxHash)

		ts := dep.Timestamp
		if ts.IsZero() {
			ts = now
		}
		alert := Alert{
			ChainID:     rule.ChainID,
			TxHash:      dep.TxHash,
			From:        dep.User,
			To:          rule.Bridge.Hex(),
			TokenSymbol: dep.Token.Symbol,
			Amount:      dep.Amount,
			ValueUSD:    dep.AmountUSD,
			BlockNumber: dep.Block,
			Timestamp:   ts,
			AlertType:   ClassifyTransferType(dep.User, rule.Bridge.Hex(), rule.Bridge),
		}
		d.record(alert)
		alerts = append(alerts, alert)
	}

	if len(alerts) > 0 {
		d.markTriggered(now)
	}
	return alerts
}

func (d *Detector) markTriggered(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastTriggered = now
}

// LastTriggered returns when the detector last emitted an alert. ok is false
// before the first alert.
func (d *Detector) LastTriggered() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTriggered, !d.lastTriggered.IsZero()
}

func (d *Detector) record(a Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent = append(d.recent, a)
	if len(d.recent) > recentAlertCap {
		d.recent = d.recent[len(d.recent)-recentAlertCap:]
	}
	d.totalCount++
}

// RecentAlerts returns up to limit alerts, newest first.
func (d *Detector) RecentAlerts(limit int) []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, d.recent[i])
	}
	return out
}

// AlertCount returns the total number of alerts emitted since startup.
func (d *Detector) AlertCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalCount
}

// parseTimestamp accepts the ISO-8601 variants Blockscout emits. Returns the
// zero time when parsing fails.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// MemorySet is the in-process ProcessedSet used when Redis is not configured.
type MemorySet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemorySet creates an empty in-memory processed set.
func NewMemorySet() *MemorySet {
	return &MemorySet{keys: make(map[string]struct{})}
}

// Seen reports whether key was marked before.
func (m *MemorySet) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

// Mark records key as processed.
func (m *MemorySet) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
	return nil
}
