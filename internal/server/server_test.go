package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"whale-watch/internal/core"
)

const testBridge = "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"

type stubResponder struct {
	lastQuery string
	reply     string
}

func (r *stubResponder) Respond(_ context.Context, text string) string {
	r.lastQuery = text
	return r.reply
}

func newTestDetector() *core.Detector {
	rule := &core.WhaleRule{
		Name:            "arbitrum-bridge",
		ChainID:         "42161",
		Bridge:          common.HexToAddress(testBridge),
		ThresholdUSD:    100000,
		LookbackMinutes: 60,
		MaxTransfers:    50,
		Enabled:         true,
	}
	return core.NewDetector(rule, core.NewTokenRegistry(2500), core.NewMemorySet())
}

func newTestServer(t *testing.T, chat Responder) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(Config{
		AgentName: "whale-watch-agent",
		Detector:  newTestDetector(),
		Chat:      chat,
		Hub:       NewHub(),
		LogDir:    t.TempDir(),
		BusWired:  true,
		StoreKind: "mysql",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &stubResponder{})

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if status.Status != "online" || !status.Running {
		t.Errorf("Expected online/running, got %+v", status)
	}
	if status.AgentAddress != "whale-watch-agent" {
		t.Errorf("Expected agent name, got %q", status.AgentAddress)
	}
	if status.ChainID != "42161" {
		t.Errorf("Expected chain 42161, got %q", status.ChainID)
	}
	if status.ThresholdUSD != 100000 {
		t.Errorf("Expected threshold 100000, got %v", status.ThresholdUSD)
	}
	if !status.BusConnected || status.Store != "mysql" {
		t.Errorf("Expected bus/store wiring reported, got %+v", status)
	}
}

type stubChain struct {
	block uint64
	err   error
}

func (c *stubChain) LatestBlock(context.Context) (uint64, error) {
	return c.block, c.err
}

type stubAlertSource struct {
	alerts []core.Alert
	err    error
}

func (s *stubAlertSource) RecentAlerts(_ context.Context, limit int) ([]core.Alert, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.alerts) {
		return s.alerts[:limit], nil
	}
	return s.alerts, nil
}

func TestStatusChainProbe(t *testing.T) {
	srv := New(Config{
		AgentName: "whale-watch-agent",
		Detector:  newTestDetector(),
		Chat:      &stubResponder{},
		LogDir:    t.TempDir(),
		Chain:     &stubChain{block: 123456789},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if !status.ChainReachable || status.LatestBlock != 123456789 {
		t.Errorf("Expected chain probe reported, got %+v", status)
	}
}

func TestStatusChainProbeFailure(t *testing.T) {
	srv := New(Config{
		AgentName: "whale-watch-agent",
		Detector:  newTestDetector(),
		Chat:      &stubResponder{},
		LogDir:    t.TempDir(),
		Chain:     &stubChain{err: fmt.Errorf("rpc down")},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 despite probe failure, got %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if status.ChainReachable || status.LatestBlock != 0 {
		t.Errorf("Expected unreachable chain reported, got %+v", status)
	}
}

func TestAlertsFromStore(t *testing.T) {
	stored := []core.Alert{
		{TxHash: "0xdb1", TokenSymbol: "USDC", ValueUSD: 500000},
		{TxHash: "0xdb2", TokenSymbol: "ETH", ValueUSD: 250000},
	}
	srv := New(Config{
		AgentName: "whale-watch-agent",
		Detector:  newTestDetector(),
		Chat:      &stubResponder{},
		LogDir:    t.TempDir(),
		Alerts:    &stubAlertSource{alerts: stored},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/alerts")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Alerts []core.Alert `json:"alerts"`
		Count  int          `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if payload.Count != 2 || payload.Alerts[0].TxHash != "0xdb1" {
		t.Errorf("Expected stored alerts, got %+v", payload)
	}
}

func TestAlertsStoreFailureFallsBackToRing(t *testing.T) {
	detector := newTestDetector()
	srv := New(Config{
		AgentName: "whale-watch-agent",
		Detector:  detector,
		Chat:      &stubResponder{},
		LogDir:    t.TempDir(),
		Alerts:    &stubAlertSource{err: fmt.Errorf("db gone")},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	detector.ProcessNew(context.Background(), []core.Transfer{
		{Hash: "0xring", From: "0x1111111111111111111111111111111111111111", To: testBridge, Value: "100000000000000000000"},
	}, time.Now().UTC())

	resp, err := http.Get(ts.URL + "/alerts")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Alerts []core.Alert `json:"alerts"`
		Count  int          `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if payload.Count != 1 || payload.Alerts[0].TxHash != "0xring" {
		t.Errorf("Expected the ring alert, got %+v", payload)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &stubResponder{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if health["healthy"] != true {
		t.Errorf("Expected healthy true, got %v", health["healthy"])
	}
}

func TestSendEndpoint(t *testing.T) {
	chat := &stubResponder{reply: "🐋 all quiet on the bridge"}
	_, ts := newTestServer(t, chat)

	body := bytes.NewBufferString(`{"message": "any whale activity?"}`)
	resp, err := http.Post(ts.URL+"/send", "application/json", body)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var reply sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if !reply.Success {
		t.Error("Expected success true")
	}
	if reply.Response != chat.reply {
		t.Errorf("Expected routed reply, got %q", reply.Response)
	}
	if !strings.HasPrefix(reply.MessageID, "msg_") {
		t.Errorf("Expected msg_ id, got %q", reply.MessageID)
	}
	if chat.lastQuery != "any whale activity?" {
		t.Errorf("Expected query forwarded to the router, got %q", chat.lastQuery)
	}
}

func TestSendEndpointRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, &stubResponder{})

	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "Empty request body"},
		{"invalid json", "{not json", "Invalid JSON"},
		{"missing message", `{"to": "someone"}`, "Missing 'message' field"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/send", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", resp.StatusCode)
			}
			var e map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
				t.Fatalf("Expected JSON error, got %v", err)
			}
			if e["error"] != tc.want {
				t.Errorf("Expected error %q, got %v", tc.want, e["error"])
			}
		})
	}

	resp, err := http.Get(ts.URL + "/send")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", resp.StatusCode)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	srv, ts := newTestServer(t, &stubResponder{})

	// Seed one whale deposit through the detector.
	now := time.Now().UTC()
	transfers := []core.Transfer{{
		Hash:      "0xwhale1",
		From:      "0xaaa1111111111111111111111111111111111111",
		To:        testBridge,
		Value:     "150000000000",
		Token:     "0xaf88d065e77c8cc2239327c5edb3a432268e5831",
		Block:     4200,
		Timestamp: now.Format(time.RFC3339),
	}}
	if got := srv.detector.ProcessNew(context.Background(), transfers, now); len(got) != 1 {
		t.Fatalf("Expected 1 seeded alert, got %d", len(got))
	}

	resp, err := http.Get(ts.URL + "/alerts?limit=10")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Alerts []core.Alert `json:"alerts"`
		Count  int          `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if payload.Count != 1 || len(payload.Alerts) != 1 {
		t.Fatalf("Expected 1 alert, got count=%d len=%d", payload.Count, len(payload.Alerts))
	}
	if payload.Alerts[0].TxHash != "0xwhale1" {
		t.Errorf("Expected tx 0xwhale1, got %s", payload.Alerts[0].TxHash)
	}

	bad, err := http.Get(ts.URL + "/alerts?limit=nope")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", bad.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, &stubResponder{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/send", nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected open CORS origin, got %q", got)
	}
}

func TestLogEndpoints(t *testing.T) {
	chat := &stubResponder{}
	srv := New(Config{
		AgentName: "whale-watch-agent",
		Detector:  newTestDetector(),
		Chat:      chat,
		LogDir:    t.TempDir(),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	date := time.Now().UTC().Format("20060102")
	stamp := time.Now().UTC().Format("2006/01/02 15:04:05")
	content := fmt.Sprintf("%s 🚨 Whale deposit detected\n%s ✅ Alert mailed to ops@example.com\n", stamp, stamp)
	if err := os.WriteFile(filepath.Join(srv.logDir, date+".log"), []byte(content), 0644); err != nil {
		t.Fatalf("Expected log file write to work, got %v", err)
	}

	// Dates
	resp, err := http.Get(ts.URL + "/api/logs/dates")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var dates []string
	if err := json.NewDecoder(resp.Body).Decode(&dates); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	resp.Body.Close()
	if len(dates) != 1 || dates[0] != date {
		t.Fatalf("Expected [%s], got %v", date, dates)
	}

	// Logs with email masking
	resp, err = http.Get(ts.URL + "/api/logs/" + date)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var payload struct {
		Logs []struct {
			Message string `json:"message"`
			TS      string `json:"ts"`
		} `json:"logs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	resp.Body.Close()
	if len(payload.Logs) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(payload.Logs))
	}
	for _, entry := range payload.Logs {
		if strings.Contains(entry.Message, "ops@example.com") {
			t.Errorf("Expected email masked, got %q", entry.Message)
		}
	}
	if !strings.Contains(payload.Logs[1].Message, "[email@address]") {
		t.Errorf("Expected mask placeholder, got %q", payload.Logs[1].Message)
	}

	// Checkpoint
	resp, err = http.Get(ts.URL + "/api/logs/checkpoint/" + date)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var cp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&cp); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	resp.Body.Close()
	if cp["checkpoint"] == "" {
		t.Error("Expected a checkpoint timestamp")
	}

	// Invalid date
	resp, err = http.Get(ts.URL + "/api/logs/not-a-date")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid date, got %d", resp.StatusCode)
	}
}

func TestWebsocketBroadcast(t *testing.T) {
	srv, ts := newTestServer(t, &stubResponder{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Expected websocket dial to work, got %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Wait for the server side to register the subscriber.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected the subscriber to register")
		}
		time.Sleep(10 * time.Millisecond)
	}

	alert := core.Alert{TxHash: "0xwhale1", TokenSymbol: "USDC", ValueUSD: 150000}
	srv.hub.Broadcast(alert)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected a broadcast frame, got %v", err)
	}
	var got core.Alert
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Expected alert JSON, got %v", err)
	}
	if got.TxHash != "0xwhale1" || got.ValueUSD != 150000 {
		t.Errorf("Expected the broadcast alert, got %+v", got)
	}
}

func TestMaskEmails(t *testing.T) {
	in := "mailed alice.smith+tag@example.co.uk and bob@test.io"
	out := maskEmails(in)
	if strings.Contains(out, "alice") || strings.Contains(out, "bob@") {
		t.Errorf("Expected all emails masked, got %q", out)
	}
	if strings.Count(out, "[email@address]") != 2 {
		t.Errorf("Expected 2 masks, got %q", out)
	}
}
