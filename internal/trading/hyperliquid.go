package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// maxRecentFills caps how many fills a wallet report includes.
const maxRecentFills = 10

// Client talks to the Hyperliquid public info API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Hyperliquid client, e.g. for https://api.hyperliquid.xyz
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Position is one open perpetual position
type Position struct {
	Coin             string
	Size             float64 // signed: positive long, negative short
	Side             string  // "long" or "short"
	EntryPrice       float64
	Notional         float64 // abs(size * entry price)
	LiquidationPrice float64
	UnrealizedPnl    float64
}

// AccountState summarizes a trader's clearinghouse state
type AccountState struct {
	Positions    []Position
	AccountValue float64
}

// Fill is one executed trade
type Fill struct {
	Coin     string
	Side     string // "buy" or "sell"
	Price    float64
	Size     float64
	Notional float64
	Time     time.Time
}

func (c *Client) post(ctx context.Context, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "whale-watch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach Hyperliquid API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Hyperliquid API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return io.ReadAll(resp.Body)
}

// ClearinghouseState fetches a wallet's open positions and account value.
// Numeric fields arrive as strings; entries that fail to parse are skipped.
func (c *Client) ClearinghouseState(ctx context.Context, user string) (*AccountState, error) {
	body, err := c.post(ctx, map[string]string{"type": "clearinghouseState", "user": user})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AssetPositions []struct {
			Position struct {
				Coin          string `json:"coin"`
				Szi           string `json:"szi"`
				EntryPx       string `json:"entryPx"`
				LiquidationPx string `json:"liquidationPx"`
				UnrealizedPnl string `json:"unrealizedPnl"`
			} `json:"position"`
		} `json:"assetPositions"`
		MarginSummary struct {
			AccountValue string `json:"accountValue"`
		} `json:"marginSummary"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse clearinghouse state: %w", err)
	}

	state := &AccountState{Positions: make([]Position, 0, len(parsed.AssetPositions))}
	if v, err := strconv.ParseFloat(parsed.MarginSummary.AccountValue, 64); err == nil {
		state.AccountValue = v
	}

	for _, ap := range parsed.AssetPositions {
		size, err := strconv.ParseFloat(ap.Position.Szi, 64)
		if err != nil || size == 0 {
			continue
		}
		entry, err := strconv.ParseFloat(ap.Position.EntryPx, 64)
		if err != nil {
			continue
		}

		side := "long"
		if size < 0 {
			side = "short"
		}
		notional := size * entry
		if notional < 0 {
			notional = -notional
		}

		pos := Position{
			Coin:       ap.Position.Coin,
			Size:       size,
			Side:       side,
			EntryPrice: entry,
			Notional:   notional,
		}
		if v, err := strconv.ParseFloat(ap.Position.LiquidationPx, 64); err == nil {
			pos.LiquidationPrice = v
		}
		if v, err := strconv.ParseFloat(ap.Position.UnrealizedPnl, 64); err == nil {
			pos.UnrealizedPnl = v
		}
		state.Positions = append(state.Positions, pos)
	}
	return state, nil
}

// RecentFills fetches a wallet's latest executed trades, capped at ten.
func (c *Client) RecentFills(ctx context.Context, user string) ([]Fill, error) {
	body, err := c.post(ctx, map[string]string{"type": "userFills", "user": user})
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		Coin string `json:"coin"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Side string `json:"side"`
		Time int64  `json:"time"` // milliseconds
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse user fills: %w", err)
	}

	fills := make([]Fill, 0, maxRecentFills)
	for _, f := range parsed {
		if len(fills) == maxRecentFills {
			break
		}
		price, err := strconv.ParseFloat(f.Px, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(f.Sz, 64)
		if err != nil {
			continue
		}

		// The API marks bids "B" and asks "A"; fall back to size sign for
		// older payloads that carry signed sizes instead
		side := "buy"
		switch f.Side {
		case "B", "buy":
			side = "buy"
		case "A", "sell":
			side = "sell"
		default:
			if size < 0 {
				side = "sell"
			}
		}
		if size < 0 {
			size = -size
		}

		fills = append(fills, Fill{
			Coin:     f.Coin,
			Side:     side,
			Price:    price,
			Size:     size,
			Notional: size * price,
			Time:     time.UnixMilli(f.Time),
		})
	}
	return fills, nil
}
