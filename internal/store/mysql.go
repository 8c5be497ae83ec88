package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"whale-watch/internal/config"
	"whale-watch/internal/core"

	_ "github.com/go-sql-driver/mysql"
)

const (
	whaleRuleTable = "alert_rule_whale_config"
	alertTable     = "whale_alerts"
)

// LoadWhaleRulesFromMySQL loads whale watch rules from the web3 database.
// Table: alert_rule_whale_config. The config column is stored as JSON (MySQL
// JSON type is returned as []byte); recipient columns override empty JSON
// fields so operators can update delivery without editing the rule body.
func LoadWhaleRulesFromMySQL(dsn string) ([]*core.WhaleRule, error) {
	if dsn == "" {
		return nil, fmt.Errorf("MySQL DSN is required to load whale rules; set MYSQL_DSN")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysql ping: %w", err)
	}

	return loadWhaleRules(db)
}

func loadWhaleRules(db *sql.DB) ([]*core.WhaleRule, error) {
	query := `SELECT id, config, enabled, COALESCE(recipient_email, ''), COALESCE(telegram_chat_id, '') FROM ` + whaleRuleTable
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*core.WhaleRule
	for rows.Next() {
		var id int64
		var enabled bool
		var configJSON []byte
		var recipientEmail, telegramChatID string

		if err := rows.Scan(&id, &configJSON, &enabled, &recipientEmail, &telegramChatID); err != nil {
			return nil, err
		}

		var rc config.WhaleRuleConfig
		if err := json.Unmarshal(configJSON, &rc); err != nil {
			return nil, fmt.Errorf("whale rule id %d: invalid config JSON: %w", id, err)
		}
		rc.Enabled = enabled
		if rc.RecipientEmail == "" {
			rc.RecipientEmail = recipientEmail
		}
		if rc.TelegramChatID == "" {
			rc.TelegramChatID = telegramChatID
		}

		rule, err := config.ParseWhaleRule(rc)
		if err != nil {
			return nil, fmt.Errorf("whale rule id %d: %w", id, err)
		}
		rule.ID = id
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// MySQL persists emitted alerts. The DSN must include parseTime=true so
// timestamp columns scan into time.Time.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL connects and verifies the alerts database.
func OpenMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return &MySQL{db: db}, nil
}

// Close releases the connection pool.
func (s *MySQL) Close() error {
	return s.db.Close()
}

// InsertAlert writes one emitted alert.
func (s *MySQL) InsertAlert(ctx context.Context, a core.Alert) error {
	query := `INSERT INTO ` + alertTable + `
		(chain_id, tx_hash, from_address, to_address, token_symbol, amount, value_usd, block_number, observed_at, alert_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		a.ChainID, a.TxHash, a.From, a.To, a.TokenSymbol,
		a.Amount, a.ValueUSD, a.BlockNumber, a.Timestamp, a.AlertType)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.TxHash, err)
	}
	return nil
}

// RecentAlerts returns the newest alerts, most recent first.
func (s *MySQL) RecentAlerts(ctx context.Context, limit int) ([]core.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT chain_id, tx_hash, from_address, to_address, token_symbol, amount, value_usd, block_number, observed_at, alert_type
		FROM ` + alertTable + ` ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		var a core.Alert
		if err := rows.Scan(&a.ChainID, &a.TxHash, &a.From, &a.To, &a.TokenSymbol,
			&a.Amount, &a.ValueUSD, &a.BlockNumber, &a.Timestamp, &a.AlertType); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
