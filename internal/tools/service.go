package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"whale-watch/internal/chain"
	"whale-watch/internal/core"
	"whale-watch/internal/trading"
)

// PreviewLimit caps how much tool output is quoted back into chat replies
// and log lines.
const PreviewLimit = 5000

// Service executes tool calls against the chain clients and the whale
// detector. It implements Invoker for the in-process (single agent) setup.
type Service struct {
	detector *core.Detector
	rest     *chain.RESTClient
	mcp      *chain.MCPClient // nil when no MCP server is configured
	hl       *trading.Client  // nil disables the Hyperliquid half of wallet reports
}

// NewService wires the tool executor. rest and detector are required; mcp and
// hl are optional.
func NewService(detector *core.Detector, rest *chain.RESTClient, mcp *chain.MCPClient, hl *trading.Client) *Service {
	return &Service{
		detector: detector,
		rest:     rest,
		mcp:      mcp,
		hl:       hl,
	}
}

var _ Invoker = (*Service)(nil)

// DepositEntry is one whale deposit inside a report.
type DepositEntry struct {
	TxHash      string    `json:"transaction_hash"`
	From        string    `json:"from_address"`
	TokenSymbol string    `json:"token_symbol"`
	Amount      float64   `json:"amount"`
	ValueUSD    float64   `json:"value_usd"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// WhaleReport is the whale_report tool's payload.
type WhaleReport struct {
	ChainID         string         `json:"chain_id"`
	Bridge          string         `json:"bridge"`
	ThresholdUSD    float64        `json:"threshold_usd"`
	LookbackMinutes int            `json:"lookback_minutes"`
	Found           int            `json:"found"`
	Deposits        []DepositEntry `json:"deposits"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// PositionEntry is one open Hyperliquid position inside a wallet report.
type PositionEntry struct {
	Coin          string  `json:"coin"`
	Side          string  `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	Notional      float64 `json:"notional"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// FillEntry is one recent Hyperliquid fill inside a wallet report.
type FillEntry struct {
	Coin     string    `json:"coin"`
	Side     string    `json:"side"`
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	Notional float64   `json:"notional"`
	Time     time.Time `json:"time"`
}

// WalletReport is the wallet_report tool's payload.
type WalletReport struct {
	Address      string          `json:"address"`
	IsContract   bool            `json:"is_contract"`
	BalanceETH   float64         `json:"balance_eth"`
	BalanceUSD   float64         `json:"balance_usd"`
	AccountValue float64         `json:"account_value"`
	Positions    []PositionEntry `json:"positions"`
	Fills        []FillEntry     `json:"fills"`
}

// Invoke dispatches one tool call by name. Local tools run against the
// detector and trading client; anything else in the catalog is forwarded to
// the Blockscout MCP server.
func (s *Service) Invoke(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	switch name {
	case ToolWhaleReport:
		return s.whaleReport(ctx, args)
	case ToolWalletReport:
		return s.walletReport(ctx, args)
	}
	if _, ok := Lookup(name); !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return s.passthrough(ctx, name, args)
}

func (s *Service) whaleReport(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
	rule := *s.detector.Rule()
	if v, ok := numberArg(args, "lookback_minutes"); ok && v > 0 {
		rule.LookbackMinutes = int(v)
	}
	if v, ok := numberArg(args, "threshold_usd"); ok && v > 0 {
		rule.ThresholdUSD = v
	}
	rule.Enabled = true

	bridge := rule.Bridge.Hex()
	native, err := s.rest.AddressTransactions(ctx, bridge)
	if err != nil {
		return nil, fmt.Errorf("fetch bridge transactions: %w", err)
	}
	tokenTransfers, err := s.rest.AddressTokenTransfers(ctx, bridge)
	if err != nil {
		log.Printf("⚠️  whale_report: token transfers unavailable: %v", err)
	}

	// Ad-hoc scans run on a throwaway detector so chat queries never touch
	// the monitor's dedup state.
	scan := core.NewDetector(&rule, s.detector.Tokens(), core.NewMemorySet())
	now := time.Now().UTC()
	deposits := scan.Evaluate(append(native, tokenTransfers...), now)

	report := WhaleReport{
		ChainID:         rule.ChainID,
		Bridge:          bridge,
		ThresholdUSD:    rule.ThresholdUSD,
		LookbackMinutes: rule.LookbackMinutes,
		Found:           len(deposits),
		Deposits:        make([]DepositEntry, 0, len(deposits)),
		GeneratedAt:     now,
	}
	for _, dep := range deposits {
		report.Deposits = append(report.Deposits, DepositEntry{
			TxHash:      dep.TxHash,
			From:        dep.User,
			TokenSymbol: dep.Token.Symbol,
			Amount:      dep.Amount,
			ValueUSD:    dep.AmountUSD,
			BlockNumber: dep.Block,
			Timestamp:   dep.Timestamp,
		})
	}
	return json.Marshal(report)
}

func (s *Service) walletReport(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
	addr, ok := stringArg(args, "address")
	if !ok || !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("wallet_report requires a valid address argument")
	}

	report := WalletReport{
		Address:   addr,
		Positions: []PositionEntry{},
		Fills:     []FillEntry{},
	}
	sources := 0

	if info, err := s.rest.AddressInfo(ctx, addr); err != nil {
		log.Printf("⚠️  wallet_report: address info unavailable for %s: %v", addr, err)
	} else {
		report.IsContract = info.IsContract
		if bal, err := core.ParseAmount(info.CoinBalance, 18); err == nil {
			report.BalanceETH = bal
			if rate, err := strconv.ParseFloat(info.ExchangeRate, 64); err == nil {
				report.BalanceUSD = bal * rate
			}
		}
		sources++
	}

	if s.hl != nil {
		if state, err := s.hl.ClearinghouseState(ctx, addr); err != nil {
			log.Printf("⚠️  wallet_report: Hyperliquid state unavailable for %s: %v", addr, err)
		} else {
			report.AccountValue = state.AccountValue
			for _, p := range state.Positions {
				report.Positions = append(report.Positions, PositionEntry{
					Coin:          p.Coin,
					Side:          p.Side,
					Size:          p.Size,
					EntryPrice:    p.EntryPrice,
					Notional:      p.Notional,
					UnrealizedPnl: p.UnrealizedPnl,
				})
			}
			sources++
		}
		if fills, err := s.hl.RecentFills(ctx, addr); err != nil {
			log.Printf("⚠️  wallet_report: Hyperliquid fills unavailable for %s: %v", addr, err)
		} else {
			for _, f := range fills {
				report.Fills = append(report.Fills, FillEntry{
					Coin:     f.Coin,
					Side:     f.Side,
					Price:    f.Price,
					Size:     f.Size,
					Notional: f.Notional,
					Time:     f.Time,
				})
			}
		}
	}

	if sources == 0 {
		return nil, fmt.Errorf("no data source could describe %s", addr)
	}
	return json.Marshal(report)
}

// passthrough forwards a catalogued tool call to the MCP server, falling back
// to the Blockscout REST API for the calls that have a direct equivalent.
func (s *Service) passthrough(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	merged := s.withChainID(name, args)

	if s.mcp != nil {
		result, err := s.mcp.CallTool(ctx, name, merged)
		if err == nil {
			return result, nil
		}
		log.Printf("⚠️  MCP tool %s failed, trying REST fallback: %v", name, err)
	}
	return s.restFallback(ctx, name, merged)
}

// withChainID fills in the configured chain ID for tools that require one,
// without mutating the caller's map.
func (s *Service) withChainID(name string, args map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	switch name {
	case "get_chains_list", "get_address_by_ens_name":
		return merged
	}
	if _, ok := merged["chain_id"]; !ok {
		merged["chain_id"] = s.detector.Rule().ChainID
	}
	return merged
}

func (s *Service) restFallback(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	switch name {
	case "get_transactions_by_address":
		addr, ok := stringArg(args, "address")
		if !ok {
			return nil, fmt.Errorf("%s requires an address argument", name)
		}
		transfers, err := s.rest.AddressTransactions(ctx, addr)
		if err != nil {
			return nil, err
		}
		return marshalTransferItems(transfers)
	case "get_token_transfers_by_address":
		addr, ok := stringArg(args, "address")
		if !ok {
			return nil, fmt.Errorf("%s requires an address argument", name)
		}
		transfers, err := s.rest.AddressTokenTransfers(ctx, addr)
		if err != nil {
			return nil, err
		}
		return marshalTransferItems(transfers)
	case "get_address_info":
		addr, ok := stringArg(args, "address")
		if !ok {
			return nil, fmt.Errorf("%s requires an address argument", name)
		}
		info, err := s.rest.AddressInfo(ctx, addr)
		if err != nil {
			return nil, err
		}
		return json.Marshal(info)
	}
	return nil, fmt.Errorf("tool %s requires the MCP server", name)
}

func marshalTransferItems(transfers []core.Transfer) (json.RawMessage, error) {
	type item struct {
		Hash        string `json:"hash"`
		From        string `json:"from"`
		To          string `json:"to"`
		Value       string `json:"value"`
		Token       string `json:"token,omitempty"`
		BlockNumber uint64 `json:"block_number"`
		Timestamp   string `json:"timestamp,omitempty"`
	}
	items := make([]item, 0, len(transfers))
	for _, t := range transfers {
		items = append(items, item{
			Hash:        t.Hash,
			From:        t.From,
			To:          t.To,
			Value:       t.Value,
			Token:       t.Token,
			BlockNumber: t.Block,
			Timestamp:   t.Timestamp,
		})
	}
	return json.Marshal(struct {
		Items []item `json:"items"`
	}{Items: items})
}

// Preview renders tool output for a chat reply or a log line, truncated so a
// huge payload cannot flood either. The cut lands on a rune boundary so a
// multibyte character is never split.
func Preview(raw json.RawMessage) string {
	s := string(raw)
	if len(s) <= PreviewLimit {
		return s
	}
	cut := PreviewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "… (truncated)"
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// numberArg accepts both float64 (decoded JSON) and int (programmatic calls).
func numberArg(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
