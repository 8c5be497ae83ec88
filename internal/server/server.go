// Package server exposes the agent over HTTP: status, health, the synchronous
// chat entry, the recent alert ring, the log query API and the websocket
// alert stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"whale-watch/internal/core"
	"whale-watch/internal/store"
)

// Responder answers one chat query with formatted text.
type Responder interface {
	Respond(ctx context.Context, text string) string
}

// ChainProbe reports the chain head for the /status liveness check.
type ChainProbe interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// AlertSource serves persisted alerts; backed by MySQL when configured.
type AlertSource interface {
	RecentAlerts(ctx context.Context, limit int) ([]core.Alert, error)
}

// Config wires the facade. Detector and Chat are required; Hub, ESLog, Chain
// and Alerts are optional.
type Config struct {
	AgentName string
	Detector  *core.Detector
	Chat      Responder
	Hub       *Hub
	LogDir    string
	ESLog     *store.ESClient
	Chain     ChainProbe
	Alerts    AlertSource
	BusWired  bool
	StoreKind string
}

// Server is the HTTP facade over the running agent.
type Server struct {
	agentName string
	detector  *core.Detector
	chat      Responder
	hub       *Hub
	logDir    string
	esLog     *store.ESClient
	chain     ChainProbe
	alerts    AlertSource
	busWired  bool
	storeKind string
	started   time.Time
}

// New creates the facade.
func New(cfg Config) *Server {
	storeKind := cfg.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	return &Server{
		agentName: cfg.AgentName,
		detector:  cfg.Detector,
		chat:      cfg.Chat,
		hub:       cfg.Hub,
		logDir:    cfg.LogDir,
		esLog:     cfg.ESLog,
		chain:     cfg.Chain,
		alerts:    cfg.Alerts,
		busWired:  cfg.BusWired,
		storeKind: storeKind,
		started:   time.Now(),
	}
}

// Handler builds the route table. More-specific prefixes must be registered
// before the catch-all /api/logs/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", corsHandler(s.handleStatus))
	mux.HandleFunc("/health", corsHandler(s.handleHealth))
	mux.HandleFunc("/send", corsHandler(s.handleSend))
	mux.HandleFunc("/alerts", corsHandler(s.handleAlerts))
	mux.HandleFunc("/api/logs/dates", corsHandler(s.handleLogDates))
	mux.HandleFunc("/api/logs/checkpoint/", corsHandler(s.handleLogCheckpoint))
	mux.HandleFunc("/api/logs/", corsHandler(s.handleLogs))
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}
	return mux
}

// corsHandler allows the dashboard frontend to call from another origin.
func corsHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

type statusResponse struct {
	Status          string  `json:"status"`
	AgentAddress    string  `json:"agent_address"`
	Timestamp       string  `json:"timestamp"`
	Running         bool    `json:"running"`
	ChainID         string  `json:"chain_id"`
	Bridge          string  `json:"bridge"`
	ThresholdUSD    float64 `json:"threshold_usd"`
	LookbackMinutes int     `json:"lookback_minutes"`
	RuleEnabled     bool    `json:"rule_enabled"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	AlertsEmitted   int     `json:"alerts_emitted"`
	LastAlertAt     string  `json:"last_alert_at,omitempty"`
	LatestBlock     uint64  `json:"latest_block,omitempty"`
	ChainReachable  bool    `json:"chain_reachable"`
	BusConnected    bool    `json:"bus_connected"`
	Store           string  `json:"store"`
	Subscribers     int     `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rule := s.detector.Rule()
	subscribers := 0
	if s.hub != nil {
		subscribers = s.hub.Count()
	}

	lastAlert := ""
	if trig, ok := s.detector.LastTriggered(); ok {
		lastAlert = trig.Format(time.RFC3339)
	}

	// Chain liveness probe, best effort
	var latestBlock uint64
	reachable := false
	if s.chain != nil {
		probeCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		block, err := s.chain.LatestBlock(probeCtx)
		cancel()
		if err != nil {
			log.Printf("⚠️  /status chain probe failed: %v", err)
		} else {
			latestBlock = block
			reachable = true
		}
	}

	writeJSON(w, statusResponse{
		Status:          "online",
		AgentAddress:    s.agentName,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Running:         true,
		ChainID:         rule.ChainID,
		Bridge:          rule.Bridge.Hex(),
		ThresholdUSD:    rule.ThresholdUSD,
		LookbackMinutes: rule.LookbackMinutes,
		RuleEnabled:     rule.Enabled,
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		AlertsEmitted:   s.detector.AlertCount(),
		LastAlertAt:     lastAlert,
		LatestBlock:     latestBlock,
		ChainReachable:  reachable,
		BusConnected:    s.busWired,
		Store:           s.storeKind,
		Subscribers:     subscribers,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, map[string]interface{}{
		"healthy":   true,
		"service":   s.agentName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	Success      bool   `json:"success"`
	Response     string `json:"response"`
	MessageID    string `json:"message_id"`
	Timestamp    string `json:"timestamp"`
	AgentAddress string `json:"agent_address"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if r.Body == nil || r.ContentLength == 0 {
		sendError(w, http.StatusBadRequest, "Empty request body")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Message == "" {
		sendError(w, http.StatusBadRequest, "Missing 'message' field")
		return
	}

	log.Printf("📨 Received message: %s", req.Message)
	reply := s.chat.Respond(r.Context(), req.Message)

	writeJSON(w, sendResponse{
		Success:      true,
		Response:     reply,
		MessageID:    fmt.Sprintf("msg_%d", time.Now().Unix()),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		AgentAddress: s.agentName,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	// The persistent store sees alerts from every run; the in-memory ring
	// only since startup. Fall back to the ring when the store misbehaves.
	var alerts []core.Alert
	if s.alerts != nil {
		stored, err := s.alerts.RecentAlerts(r.Context(), limit)
		if err != nil {
			log.Printf("⚠️  /alerts store read failed, serving the ring: %v", err)
		} else {
			alerts = stored
		}
	}
	if alerts == nil {
		alerts = s.detector.RecentAlerts(limit)
	}
	writeJSON(w, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":       message,
		"status_code": status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}
