package server

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"whale-watch/internal/store"
)

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// maskEmails hides alert recipient addresses before log lines leave the
// service.
func maskEmails(s string) string {
	return emailRegex.ReplaceAllStringFunc(s, func(string) string {
		return "[email@address]"
	})
}

// handleLogDates lists the dates that have logs, from Elasticsearch and the
// log directory combined. Route: GET /api/logs/dates
func (s *Server) handleLogDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	dateSet := make(map[string]struct{})

	if s.esLog != nil {
		dates, err := s.esLog.GetDates(r.Context())
		if err != nil {
			log.Printf("ES GetDates error: %v", err)
		} else {
			for _, d := range dates {
				dateSet[d] = struct{}{}
			}
		}
	}

	files, err := os.ReadDir(s.logDir)
	if err != nil && !os.IsNotExist(err) {
		sendError(w, http.StatusInternalServerError, "Failed to read log directory")
		return
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if len(name) == 12 && strings.HasSuffix(name, ".log") {
			dateStr := name[:8]
			if _, err := time.Parse("20060102", dateStr); err == nil {
				dateSet[dateStr] = struct{}{}
			}
		}
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	writeJSON(w, dates)
}

// handleLogCheckpoint returns the RFC3339 timestamp of the most recent log
// entry for a date. Route: GET /api/logs/checkpoint/{yyyyMMdd}
// Response: { "checkpoint": "<RFC3339 or empty string>" }
func (s *Server) handleLogCheckpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	dateStr := strings.TrimPrefix(r.URL.Path, "/api/logs/checkpoint/")
	if len(dateStr) != 8 {
		sendError(w, http.StatusBadRequest, "Invalid date format. Expected yyyyMMdd")
		return
	}
	if _, err := time.Parse("20060102", dateStr); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid date format. Expected yyyyMMdd")
		return
	}

	var checkpoint string

	// Prefer Elasticsearch
	if s.esLog != nil {
		cp, err := s.esLog.GetCheckpoint(r.Context(), dateStr)
		if err != nil {
			log.Printf("ES GetCheckpoint error: %v", err)
		} else {
			checkpoint = cp
		}
	}

	// Fall back to the log file
	if checkpoint == "" {
		logFile := filepath.Join(s.logDir, dateStr+".log")
		if content, err := os.ReadFile(logFile); err == nil {
			checkpoint = store.LastFileCheckpoint(string(content))
		}
	}

	writeJSON(w, map[string]string{"checkpoint": checkpoint})
}

// handleLogs returns log entries for a date.
// Route: GET /api/logs/{yyyyMMdd}[?since=<RFC3339>&q=<search>&service=<tag>]
//   - since:   when provided, returns only entries strictly after that timestamp
//   - q:       optional message content filter
//   - service: optional binary filter (agent, toolagent, notifier); ES only,
//     file fallback lines carry no service tag
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	dateStr := strings.TrimPrefix(r.URL.Path, "/api/logs/")
	if dateStr == "" {
		sendError(w, http.StatusBadRequest, "Date parameter required")
		return
	}
	if len(dateStr) != 8 {
		sendError(w, http.StatusBadRequest, "Invalid date format. Expected yyyyMMdd")
		return
	}
	if _, err := time.Parse("20060102", dateStr); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid date format. Expected yyyyMMdd")
		return
	}

	query := store.LogQuery{
		Date:    dateStr,
		Since:   strings.TrimSpace(r.URL.Query().Get("since")),
		Search:  strings.TrimSpace(r.URL.Query().Get("q")),
		Service: strings.TrimSpace(r.URL.Query().Get("service")),
	}

	var entries []store.LogEntry

	// Prefer Elasticsearch when available
	if s.esLog != nil {
		ents, err := s.esLog.SearchLogs(r.Context(), query)
		if err != nil {
			log.Printf("ES SearchLogs error: %v", err)
		} else if len(ents) > 0 {
			entries = ents
		}
	}

	// Fall back to the log file when no ES data
	if len(entries) == 0 {
		logFile := filepath.Join(s.logDir, dateStr+".log")
		if content, err := os.ReadFile(logFile); err == nil {
			entries = store.ParseLogFile(string(content), store.FileLogFilter{
				Since:  query.Since,
				Search: query.Search,
			})
		}
	}

	// Mask emails before the lines leave the service
	for i := range entries {
		entries[i].Message = maskEmails(entries[i].Message)
	}

	writeJSON(w, map[string]interface{}{
		"logs": entries,
	})
}
