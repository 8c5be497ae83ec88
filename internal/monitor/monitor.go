// Package monitor runs the interval scan over the watched bridge: fetch
// recent transfers, run the whale rule, fan new alerts out to the store, the
// bus and websocket subscribers.
package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"whale-watch/internal/bus"
	"whale-watch/internal/chain"
	"whale-watch/internal/core"
	"whale-watch/internal/price"
)

// AlertPublisher pushes alert events onto the bus.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event bus.AlertEvent) error
}

// AlertStore persists alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, a core.Alert) error
}

// Broadcaster fans an alert out to live subscribers.
type Broadcaster interface {
	Broadcast(v interface{})
}

// RuleSource re-reads the rule set, typically from MySQL.
type RuleSource func(ctx context.Context) ([]*core.WhaleRule, error)

// Config wires the monitor. Detector and REST are required; everything else
// is optional and skipped when nil.
type Config struct {
	Detector  *core.Detector
	REST      *chain.RESTClient
	MCP       *chain.MCPClient
	RPC       *chain.RPCClient
	Pyth      *price.PythClient
	Publisher AlertPublisher
	Store     AlertStore
	Hub       Broadcaster
	Rules     RuleSource

	PollInterval time.Duration
	RuleReload   time.Duration
}

// Monitor owns the scan loop for one whale rule.
type Monitor struct {
	detector  *core.Detector
	rest      *chain.RESTClient
	mcp       *chain.MCPClient
	rpc       *chain.RPCClient
	pyth      *price.PythClient
	publisher AlertPublisher
	store     AlertStore
	hub       Broadcaster
	rules     RuleSource
	interval  time.Duration
	reload    time.Duration
}

// New creates a monitor from the wiring config.
func New(cfg Config) *Monitor {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		detector:  cfg.Detector,
		rest:      cfg.REST,
		mcp:       cfg.MCP,
		rpc:       cfg.RPC,
		pyth:      cfg.Pyth,
		publisher: cfg.Publisher,
		store:     cfg.Store,
		hub:       cfg.Hub,
		rules:     cfg.Rules,
		interval:  interval,
		reload:    cfg.RuleReload,
	}
}

// Run scans once immediately, then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.startup(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var reloadC <-chan time.Time
	if m.rules != nil && m.reload > 0 {
		reloadTicker := time.NewTicker(m.reload)
		defer reloadTicker.Stop()
		reloadC = reloadTicker.C
	}

	// Run immediately on startup
	if err := m.Scan(ctx); err != nil {
		log.Printf("Error scanning bridge: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Scan(ctx); err != nil {
				log.Printf("Error scanning bridge: %v", err)
			}
		case <-reloadC:
			m.reloadRule(ctx)
		}
	}
}

// startup verifies the MCP session and refreshes the ETH/USD rate. Failures
// are logged, not fatal: the REST path and the static rate keep scans going.
func (m *Monitor) startup(ctx context.Context) {
	if m.mcp != nil {
		if err := m.mcp.Initialize(ctx); err != nil {
			log.Printf("⚠️  MCP server unreachable, scans will use the REST API: %v", err)
		} else {
			log.Println("✅ MCP session established")
		}
	}
	m.refreshEthRate(ctx)
}

func (m *Monitor) refreshEthRate(ctx context.Context) {
	if m.pyth == nil {
		return
	}
	data, err := m.pyth.EthUSD(ctx)
	if err != nil {
		log.Printf("⚠️  ETH/USD refresh failed, keeping the configured rate: %v", err)
		return
	}
	if err := data.Validate(); err != nil {
		log.Printf("⚠️  Ignoring invalid ETH/USD price data: %v", err)
		return
	}
	m.detector.Tokens().SetUSDRate(core.ZeroAddress, data.Price)
	log.Printf("💰 ETH/USD refreshed from Pyth: $%.2f", data.Price)
}

// Scan fetches recent bridge transfers and alerts on new whale deposits.
func (m *Monitor) Scan(ctx context.Context) error {
	rule := m.detector.Rule()
	if !rule.Enabled {
		return nil
	}
	bridge := rule.Bridge.Hex()
	log.Printf("🔍 Scanning bridge %s for deposits above $%.0f...", bridge, rule.ThresholdUSD)

	transfers, err := m.fetchTransfers(ctx, rule)
	if err != nil {
		return fmt.Errorf("failed to fetch bridge transfers: %w", err)
	}

	m.resolveUnknownTokens(ctx, transfers)

	alerts := m.detector.ProcessNew(ctx, transfers, time.Now().UTC())
	for _, alert := range alerts {
		log.Printf("🚨 Whale deposit: $%.2f %s from %s (tx %s)", alert.ValueUSD, alert.TokenSymbol, alert.From, alert.TxHash)
		m.dispatch(ctx, rule, alert)
	}

	log.Printf("✅ Scan complete: %d transfer(s) checked, %d new whale alert(s)", len(transfers), len(alerts))
	return nil
}

// fetchTransfers prefers the MCP server and falls back to the REST API. Both
// native transactions and token transfers are scanned.
func (m *Monitor) fetchTransfers(ctx context.Context, rule *core.WhaleRule) ([]core.Transfer, error) {
	bridge := rule.Bridge.Hex()
	if m.mcp != nil {
		transfers, err := m.fetchViaMCP(ctx, rule, bridge)
		if err == nil {
			return transfers, nil
		}
		log.Printf("⚠️  MCP fetch failed, falling back to REST: %v", err)
	}
	return m.fetchViaREST(ctx, bridge)
}

func (m *Monitor) fetchViaMCP(ctx context.Context, rule *core.WhaleRule, bridge string) ([]core.Transfer, error) {
	ageFrom := time.Now().UTC().Add(-rule.Lookback()).Format(time.RFC3339)

	raw, err := m.mcp.CallTool(ctx, "get_transactions_by_address", map[string]interface{}{
		"chain_id": rule.ChainID,
		"address":  bridge,
		"age_from": ageFrom,
	})
	if err != nil {
		return nil, err
	}
	transfers, err := chain.ParseTransactionItems(raw)
	if err != nil {
		return nil, err
	}

	raw, err = m.mcp.CallTool(ctx, "get_token_transfers_by_address", map[string]interface{}{
		"chain_id": rule.ChainID,
		"address":  bridge,
		"age_from": ageFrom,
	})
	if err != nil {
		return nil, err
	}
	tokenTransfers, err := chain.ParseTokenTransferItems(raw)
	if err != nil {
		return nil, err
	}
	return append(transfers, tokenTransfers...), nil
}

func (m *Monitor) fetchViaREST(ctx context.Context, bridge string) ([]core.Transfer, error) {
	transfers, err := m.rest.AddressTransactions(ctx, bridge)
	if err != nil {
		return nil, err
	}
	tokenTransfers, err := m.rest.AddressTokenTransfers(ctx, bridge)
	if err != nil {
		return nil, err
	}
	return append(transfers, tokenTransfers...), nil
}

// resolveUnknownTokens looks up on-chain metadata for token contracts the
// registry has not seen, so their transfers can be priced on the next pass.
// Tokens without a trusted USD rate are registered at rate 0 and never alert.
func (m *Monitor) resolveUnknownTokens(ctx context.Context, transfers []core.Transfer) {
	if m.rpc == nil {
		return
	}
	tokens := m.detector.Tokens()
	for _, t := range transfers {
		if t.Token == "" {
			continue
		}
		if _, known := tokens.Lookup(t.Token); known {
			continue
		}
		info, err := m.rpc.TokenMetadata(ctx, common.HexToAddress(t.Token))
		if err != nil {
			log.Printf("⚠️  Token metadata lookup failed for %s: %v", t.Token, err)
			continue
		}
		tokens.Add(info)
		log.Printf("📌 Registered token %s (%s, %d decimals)", info.Symbol, info.Address, info.Decimals)
	}
}

// dispatch persists, publishes and broadcasts one alert. Each sink fails
// independently; a dead store never blocks the bus.
func (m *Monitor) dispatch(ctx context.Context, rule *core.WhaleRule, alert core.Alert) {
	if m.store != nil {
		if err := m.store.InsertAlert(ctx, alert); err != nil {
			log.Printf("❌ Failed to persist alert %s: %v", alert.TxHash, err)
		}
	}
	if m.publisher != nil {
		message := fmt.Sprintf("🐋 Whale deposit on chain %s: $%.2f %s moved into the bridge by %s (tx %s)",
			alert.ChainID, alert.ValueUSD, alert.TokenSymbol, alert.From, alert.TxHash)
		event := bus.NewAlertEvent(alert, message)
		event.RecipientEmail = rule.RecipientEmail
		event.TelegramChatID = rule.TelegramChatID
		if err := m.publisher.PublishAlert(ctx, event); err != nil {
			log.Printf("❌ Failed to publish alert %s: %v", alert.TxHash, err)
		}
	}
	if m.hub != nil {
		m.hub.Broadcast(alert)
	}
}

// reloadRule re-reads the rule set and swaps the detector's rule when its
// configuration changed.
func (m *Monitor) reloadRule(ctx context.Context) {
	rules, err := m.rules(ctx)
	if err != nil {
		log.Printf("⚠️  Rule reload failed: %v", err)
		return
	}
	next := pickRule(rules)
	if next == nil {
		log.Println("⚠️  Rule reload found no enabled rule, keeping the current one")
		return
	}
	if sameRule(m.detector.Rule(), next) {
		return
	}
	m.detector.SetRule(next)
	log.Printf("🔄 Whale rule updated: bridge %s, threshold $%.0f, lookback %d min",
		next.Bridge.Hex(), next.ThresholdUSD, next.LookbackMinutes)
}

// pickRule returns the first enabled rule, matching the startup selection.
func pickRule(rules []*core.WhaleRule) *core.WhaleRule {
	for _, r := range rules {
		if r.Enabled {
			return r
		}
	}
	return nil
}

func sameRule(a, b *core.WhaleRule) bool {
	return a.ID == b.ID &&
		a.ChainID == b.ChainID &&
		a.Bridge == b.Bridge &&
		a.ThresholdUSD == b.ThresholdUSD &&
		a.LookbackMinutes == b.LookbackMinutes &&
		a.MaxTransfers == b.MaxTransfers &&
		a.Enabled == b.Enabled &&
		a.RecipientEmail == b.RecipientEmail &&
		a.TelegramChatID == b.TelegramChatID
}
