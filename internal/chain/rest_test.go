package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRESTClient_AddressTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/transactions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"hash":"0xaaa","from":{"hash":"0x1111111111111111111111111111111111111111"},"to":{"hash":"0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"},"value":"100000000000000000000","timestamp":"2026-08-24T10:00:00.000000Z","block_number":3500000},
			{"hash":"0xbbb","from":{"hash":"0x2222222222222222222222222222222222222222"},"to":null,"value":"0","timestamp":"2026-08-24T10:01:00.000000Z","block_number":3500001},
			{"hash":"0xccc","from":{"hash":"0x3333333333333333333333333333333333333333"},"to":{"hash":"0x4444444444444444444444444444444444444444"},"value":"5","timestamp":"2026-08-24T10:02:00.000000Z","block":3500002}
		]}`))
	}))
	defer server.Close()

	client := NewRESTClient(server.URL)
	transfers, err := client.AddressTransactions(context.Background(), "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Contract creation (null to) is skipped
	if len(transfers) != 2 {
		t.Fatalf("Expected 2 transfers, got %d", len(transfers))
	}
	if transfers[0].Hash != "0xaaa" || transfers[0].Value != "100000000000000000000" {
		t.Errorf("Unexpected first transfer: %+v", transfers[0])
	}
	if transfers[0].Block != 3500000 {
		t.Errorf("Expected block_number field, got %d", transfers[0].Block)
	}
	// Older responses carry "block" instead of "block_number"
	if transfers[1].Block != 3500002 {
		t.Errorf("Expected block fallback, got %d", transfers[1].Block)
	}
	if transfers[0].Token != "" {
		t.Errorf("Expected native transfer without token, got %s", transfers[0].Token)
	}
}

func TestRESTClient_AddressTokenTransfers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/token-transfers") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"transaction_hash":"0xddd","from":{"hash":"0x5555555555555555555555555555555555555555"},"to":{"hash":"0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"},"total":{"value":"150000000000"},"token":{"address":"0xaf88d065e77c8cc2239327c5edb3a432268e5831","symbol":"USDC"},"timestamp":"2026-08-24T10:05:00.000000Z","block_number":3500010}
		]}`))
	}))
	defer server.Close()

	client := NewRESTClient(server.URL)
	transfers, err := client.AddressTokenTransfers(context.Background(), "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("Expected 1 transfer, got %d", len(transfers))
	}
	if transfers[0].Token != "0xaf88d065e77c8cc2239327c5edb3a432268e5831" {
		t.Errorf("Expected USDC token address, got %s", transfers[0].Token)
	}
	if transfers[0].Value != "150000000000" {
		t.Errorf("Expected total value, got %s", transfers[0].Value)
	}
}

func TestRESTClient_AddressInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hash":"0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7","is_contract":true,"coin_balance":"123450000000000000000","exchange_rate":"2500.0"}`))
	}))
	defer server.Close()

	client := NewRESTClient(server.URL)
	info, err := client.AddressInfo(context.Background(), "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !info.IsContract {
		t.Error("Expected contract address")
	}
	if info.CoinBalance != "123450000000000000000" {
		t.Errorf("Unexpected balance %s", info.CoinBalance)
	}
}

func TestRESTClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not found"}`))
	}))
	defer server.Close()

	client := NewRESTClient(server.URL)
	_, err := client.AddressInfo(context.Background(), "0x0000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("Expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected status in error, got %v", err)
	}
}
