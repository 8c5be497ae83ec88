package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPythClient_GetPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, EthUSDFeedID[2:]) && !strings.Contains(r.URL.RawQuery, EthUSDFeedID) {
			t.Errorf("Expected feed ID in query, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"parsed":[{"id":"ff61491a","price":{"price":"250012345678","expo":-8,"publish_time":1700000000}}]}`))
	}))
	defer server.Close()

	client := NewPythClient(server.URL, "")
	data, err := client.EthUSD(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data.Symbol != "ETH/USD" {
		t.Errorf("Expected ETH/USD, got %s", data.Symbol)
	}
	// 250012345678 * 10^-8 = 2500.12345678
	if data.Price < 2500.12 || data.Price > 2500.13 {
		t.Errorf("Expected price near 2500.12, got %v", data.Price)
	}
	if err := data.Validate(); err != nil {
		t.Errorf("Expected valid price data, got %v", err)
	}
}

func TestPythClient_GetPrice_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "empty parsed", status: http.StatusOK, body: `{"parsed":[]}`},
		{name: "bad json", status: http.StatusOK, body: `{"parsed":`},
		{name: "bad price string", status: http.StatusOK, body: `{"parsed":[{"id":"x","price":{"price":"abc","expo":-8,"publish_time":0}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewPythClient(server.URL, "")
			if _, err := client.EthUSD(context.Background()); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
