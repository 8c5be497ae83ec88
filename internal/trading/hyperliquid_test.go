package trading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newInfoTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req struct {
			Type string `json:"type"`
			User string `json:"user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.User == "" {
			t.Error("Expected user in request")
		}

		w.Header().Set("Content-Type", "application/json")
		switch req.Type {
		case "clearinghouseState":
			w.Write([]byte(`{
				"assetPositions": [
					{"position": {"coin": "ETH", "szi": "12.5", "entryPx": "2450.0", "liquidationPx": "1800.5", "unrealizedPnl": "625.0"}},
					{"position": {"coin": "BTC", "szi": "-0.5", "entryPx": "60000.0", "liquidationPx": "72000.0", "unrealizedPnl": "-150.0"}},
					{"position": {"coin": "SOL", "szi": "0", "entryPx": "150.0"}},
					{"position": {"coin": "DOGE", "szi": "garbage", "entryPx": "0.1"}}
				],
				"marginSummary": {"accountValue": "50000.5"}
			}`))
		case "userFills":
			w.Write([]byte(`[
				{"coin": "ETH", "px": "2450.0", "sz": "1.5", "side": "B", "time": 1700000000000},
				{"coin": "ETH", "px": "2460.0", "sz": "0.5", "side": "A", "time": 1700000100000},
				{"coin": "BTC", "px": "60000.0", "sz": "-0.1", "side": "", "time": 1700000200000},
				{"coin": "BAD", "px": "zzz", "sz": "1", "side": "B", "time": 1700000300000}
			]`))
		default:
			t.Errorf("Unexpected info type %s", req.Type)
		}
	}))
}

func TestClient_ClearinghouseState(t *testing.T) {
	server := newInfoTestServer(t)
	defer server.Close()

	client := NewClient(server.URL)
	state, err := client.ClearinghouseState(context.Background(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Zero-size and unparseable positions are skipped
	if len(state.Positions) != 2 {
		t.Fatalf("Expected 2 positions, got %d", len(state.Positions))
	}

	eth := state.Positions[0]
	if eth.Side != "long" {
		t.Errorf("Expected long ETH position, got %s", eth.Side)
	}
	if eth.Notional != 12.5*2450.0 {
		t.Errorf("Expected notional %.2f, got %.2f", 12.5*2450.0, eth.Notional)
	}
	if eth.LiquidationPrice != 1800.5 {
		t.Errorf("Expected liquidation 1800.5, got %.2f", eth.LiquidationPrice)
	}

	btc := state.Positions[1]
	if btc.Side != "short" {
		t.Errorf("Expected short BTC position, got %s", btc.Side)
	}
	if btc.Notional != 30000 {
		t.Errorf("Expected notional 30000, got %.2f", btc.Notional)
	}

	if state.AccountValue != 50000.5 {
		t.Errorf("Expected account value 50000.5, got %.2f", state.AccountValue)
	}
}

func TestClient_RecentFills(t *testing.T) {
	server := newInfoTestServer(t)
	defer server.Close()

	client := NewClient(server.URL)
	fills, err := client.RecentFills(context.Background(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The unparseable price entry is skipped
	if len(fills) != 3 {
		t.Fatalf("Expected 3 fills, got %d", len(fills))
	}
	if fills[0].Side != "buy" || fills[1].Side != "sell" {
		t.Errorf("Expected buy then sell, got %s then %s", fills[0].Side, fills[1].Side)
	}
	// Missing side falls back to the size sign
	if fills[2].Side != "sell" {
		t.Errorf("Expected sell from negative size, got %s", fills[2].Side)
	}
	if fills[2].Size != 0.1 {
		t.Errorf("Expected absolute size 0.1, got %v", fills[2].Size)
	}
	if fills[0].Notional != 1.5*2450.0 {
		t.Errorf("Expected notional %.2f, got %.2f", 1.5*2450.0, fills[0].Notional)
	}
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.ClearinghouseState(context.Background(), "0x1111111111111111111111111111111111111111"); err == nil {
		t.Fatal("Expected error for 502")
	}
}
