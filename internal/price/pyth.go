package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// EthUSDFeedID is the Pyth price feed for ETH/USD.
const EthUSDFeedID = "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

// PriceData represents price information from Pyth oracle
type PriceData struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Validate checks if the price data is usable
func (p *PriceData) Validate() error {
	if p.Price <= 0 {
		return fmt.Errorf("invalid price: %f", p.Price)
	}
	if p.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	return nil
}

// PythClient handles interactions with Pyth oracle
type PythClient struct {
	apiURL string
	apiKey string
	http   *http.Client
}

// NewPythClient creates a new Pyth oracle client
func NewPythClient(apiURL, apiKey string) *PythClient {
	return &PythClient{
		apiURL: apiURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// hermesReply mirrors the Hermes latest-price response. The price arrives as
// a string integer in fixed point, scaled by 10^expo.
type hermesReply struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// GetPrice fetches the current price for a given symbol and price feed ID from Pyth oracle
func (c *PythClient) GetPrice(ctx context.Context, symbol string, priceFeedID string) (*PriceData, error) {
	// Pyth Hermes API endpoint:
	// https://hermes.pyth.network/v2/updates/price/latest?ids[]=<feed_id>
	apiURL := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s", c.apiURL, priceFeedID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d for %s: %s", resp.StatusCode, symbol, string(body))
	}

	var reply hermesReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to parse response for %s: %w", symbol, err)
	}
	if len(reply.Parsed) == 0 {
		return nil, fmt.Errorf("no price data found for symbol %s", symbol)
	}

	quote := reply.Parsed[0].Price
	raw, err := strconv.ParseInt(quote.Price, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price for %s: %w", symbol, err)
	}

	return &PriceData{
		Symbol:    symbol,
		Price:     float64(raw) * math.Pow(10, float64(quote.Expo)),
		Timestamp: time.Unix(quote.PublishTime, 0),
	}, nil
}

// EthUSD fetches the current ETH/USD rate.
func (c *PythClient) EthUSD(ctx context.Context) (*PriceData, error) {
	return c.GetPrice(ctx, "ETH/USD", EthUSDFeedID)
}
