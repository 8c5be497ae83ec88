package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"whale-watch/internal/bus"
	"whale-watch/internal/chain"
	"whale-watch/internal/core"
)

const (
	testBridge = "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"
	testUSDC   = "0xaf88d065e77c8cc2239327c5edb3a432268e5831"
)

type stubPublisher struct {
	events []bus.AlertEvent
}

func (p *stubPublisher) PublishAlert(_ context.Context, event bus.AlertEvent) error {
	p.events = append(p.events, event)
	return nil
}

type stubStore struct {
	alerts []core.Alert
}

func (s *stubStore) InsertAlert(_ context.Context, a core.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

type stubHub struct {
	broadcasts []interface{}
}

func (h *stubHub) Broadcast(v interface{}) {
	h.broadcasts = append(h.broadcasts, v)
}

// newBridgeStub serves the two REST endpoints a scan touches, with one 150k
// USDC deposit into the bridge and one unrelated small native transfer.
func newBridgeStub(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/token-transfers"):
			fmt.Fprintf(w, `{"items": [{
				"transaction_hash": "0xwhale1",
				"from": {"hash": "0xaaa1111111111111111111111111111111111111"},
				"to": {"hash": "%s"},
				"total": {"value": "150000000000"},
				"token": {"address": "%s", "symbol": "USDC"},
				"timestamp": "%s",
				"block_number": 4200
			}]}`, testBridge, testUSDC, now)
		case strings.HasSuffix(r.URL.Path, "/transactions"):
			fmt.Fprintf(w, `{"items": [{
				"hash": "0xsmall1",
				"from": {"hash": "0xbbb2222222222222222222222222222222222222"},
				"to": {"hash": "%s"},
				"value": "1000000000000000000",
				"timestamp": "%s",
				"block_number": 4201
			}]}`, testBridge, now)
		default:
			http.NotFound(w, r)
		}
	}))
}

func testRule(thresholdUSD float64) *core.WhaleRule {
	return &core.WhaleRule{
		ID:              1,
		Name:            "arbitrum-bridge",
		ChainID:         "42161",
		Bridge:          common.HexToAddress(testBridge),
		ThresholdUSD:    thresholdUSD,
		LookbackMinutes: 60,
		MaxTransfers:    50,
		Enabled:         true,
		RecipientEmail:  "ops@example.com",
		TelegramChatID:  "42",
	}
}

func TestScanDispatchesNewAlerts(t *testing.T) {
	server := newBridgeStub(t, nil)
	defer server.Close()

	detector := core.NewDetector(testRule(100000), core.NewTokenRegistry(2500), core.NewMemorySet())
	publisher := &stubPublisher{}
	store := &stubStore{}
	hub := &stubHub{}

	m := New(Config{
		Detector:  detector,
		REST:      chain.NewRESTClient(server.URL),
		Publisher: publisher,
		Store:     store,
		Hub:       hub,
	})

	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("Expected 1 published event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.TxHash != "0xwhale1" {
		t.Errorf("Expected tx 0xwhale1, got %s", event.TxHash)
	}
	if event.ValueUSD != 150000 {
		t.Errorf("Expected value 150000, got %v", event.ValueUSD)
	}
	if event.RecipientEmail != "ops@example.com" {
		t.Errorf("Expected rule recipient on event, got %q", event.RecipientEmail)
	}
	if event.TelegramChatID != "42" {
		t.Errorf("Expected rule chat id on event, got %q", event.TelegramChatID)
	}
	if event.Message == "" {
		t.Error("Expected a rendered alert message")
	}

	if len(store.alerts) != 1 {
		t.Errorf("Expected 1 stored alert, got %d", len(store.alerts))
	}
	if len(hub.broadcasts) != 1 {
		t.Errorf("Expected 1 broadcast, got %d", len(hub.broadcasts))
	}

	// The same deposit must not alert again on the next scan.
	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Expected no error on second scan, got %v", err)
	}
	if len(publisher.events) != 1 {
		t.Errorf("Expected no new events after rescan, got %d", len(publisher.events))
	}
}

func TestScanSkipsDisabledRule(t *testing.T) {
	var hits int64
	server := newBridgeStub(t, &hits)
	defer server.Close()

	rule := testRule(100000)
	rule.Enabled = false
	detector := core.NewDetector(rule, core.NewTokenRegistry(2500), core.NewMemorySet())

	m := New(Config{Detector: detector, REST: chain.NewRESTClient(server.URL)})
	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := atomic.LoadInt64(&hits); n != 0 {
		t.Errorf("Expected no API calls for a disabled rule, got %d", n)
	}
}

func TestScanFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	detector := core.NewDetector(testRule(100000), core.NewTokenRegistry(2500), core.NewMemorySet())
	m := New(Config{Detector: detector, REST: chain.NewRESTClient(server.URL)})

	if err := m.Scan(context.Background()); err == nil {
		t.Fatal("Expected an error when the API is down")
	}
}

func TestReloadRuleSwapsOnChange(t *testing.T) {
	detector := core.NewDetector(testRule(100000), core.NewTokenRegistry(2500), core.NewMemorySet())
	original := detector.Rule()

	updated := testRule(250000)
	m := New(Config{
		Detector: detector,
		Rules: func(_ context.Context) ([]*core.WhaleRule, error) {
			return []*core.WhaleRule{updated}, nil
		},
	})

	m.reloadRule(context.Background())
	if detector.Rule() != updated {
		t.Fatal("Expected the detector rule to be swapped")
	}
	if detector.Rule() == original {
		t.Fatal("Expected the original rule to be replaced")
	}
}

func TestReloadRuleKeepsUnchanged(t *testing.T) {
	current := testRule(100000)
	detector := core.NewDetector(current, core.NewTokenRegistry(2500), core.NewMemorySet())

	// Same configuration under a fresh pointer must not swap.
	m := New(Config{
		Detector: detector,
		Rules: func(_ context.Context) ([]*core.WhaleRule, error) {
			return []*core.WhaleRule{testRule(100000)}, nil
		},
	})

	m.reloadRule(context.Background())
	if detector.Rule() != current {
		t.Fatal("Expected the detector rule to stay when nothing changed")
	}
}

func TestReloadRuleIgnoresErrors(t *testing.T) {
	current := testRule(100000)
	detector := core.NewDetector(current, core.NewTokenRegistry(2500), core.NewMemorySet())

	m := New(Config{
		Detector: detector,
		Rules: func(_ context.Context) ([]*core.WhaleRule, error) {
			return nil, fmt.Errorf("mysql down")
		},
	})

	m.reloadRule(context.Background())
	if detector.Rule() != current {
		t.Fatal("Expected the detector rule to stay when reload fails")
	}
}

func TestPickRule(t *testing.T) {
	disabled := testRule(100000)
	disabled.Enabled = false
	enabled := testRule(200000)

	if got := pickRule([]*core.WhaleRule{disabled, enabled}); got != enabled {
		t.Errorf("Expected the first enabled rule, got %+v", got)
	}
	if got := pickRule([]*core.WhaleRule{disabled}); got != nil {
		t.Errorf("Expected nil when no rule is enabled, got %+v", got)
	}
}
