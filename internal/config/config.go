package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"whale-watch/internal/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Agent identity
	AgentName string

	// Blockscout Configuration
	MCPServerURL string // Hosted Blockscout MCP endpoint
	RESTBaseURL  string // Blockscout REST v2 base URL (fallback path)
	ChainID      string // Chain the bridge lives on ("42161" = Arbitrum One)

	// Whale Rule Configuration
	BridgeContract  string  // Bridge contract address to watch for deposits
	ThresholdUSD    float64 // Minimum USD value for a transfer to count as a whale deposit
	LookbackMinutes int     // How far back a scan looks
	MaxTransfers    int     // Cap on transfers reported per scan
	PollInterval    int     // Seconds between monitor scans
	EthUSDRate      float64 // Static ETH/USD rate used when no oracle refresh is available

	// Pyth Oracle Configuration (optional ETH/USD refresh)
	PythAPIURL string
	PythAPIKey string

	// Hyperliquid Configuration
	HyperliquidAPIURL string

	// ASI:One LLM Configuration (optional, for natural-language report phrasing)
	ASI1APIKey  string
	ASI1BaseURL string
	ASI1Model   string

	// Resend Email Configuration
	ResendAPIKey    string
	ResendFromEmail string
	AlertRecipients []string // Default recipients when a rule has none

	// Telegram Configuration
	TelegramBotToken string
	TelegramChatIDs  []string // Default chat IDs when a rule has none

	// Store Configuration
	MySQLDSN  string // MySQL DSN for the rules/alerts database (empty = disabled)
	RedisAddr string // Redis address for cross-restart dedup (empty = in-memory only)
	RedisDB   int

	// Logging Configuration
	LogDir string // Directory for log files (default: "logs")

	// Elasticsearch Configuration (optional, for log shipping)
	ESEnabled   bool     // Enable shipping logs to Elasticsearch
	ESAddresses []string // ES endpoints, e.g. []string{"http://localhost:9200"}
	ESIndex     string   // Index name for logs (default: "whale-watch-logs")

	// Kafka Configuration
	BusEnabled        bool     // Enable the Kafka bus (tool request/reply + alert fan-out)
	KafkaBrokers      []string // Kafka broker addresses, e.g. []string{"localhost:9092"}
	AlertTopic        string
	ToolRequestTopic  string
	ToolResponseTopic string

	// HTTP facade
	HTTPPort int

	// Hot-swap Configuration
	RuleReloadInterval int // seconds between MySQL rule re-reads (0 = disabled)
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		AgentName:         getEnv("AGENT_NAME", "whale-watch-agent"),
		MCPServerURL:      getEnv("BLOCKSCOUT_MCP_URL", "https://mcp.blockscout.com/mcp"),
		RESTBaseURL:       getEnv("BLOCKSCOUT_REST_URL", "https://arbitrum.blockscout.com"),
		ChainID:           getEnv("CHAIN_ID", "42161"),
		BridgeContract:    getEnv("BRIDGE_CONTRACT", "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"),
		ThresholdUSD:      getEnvFloat("WHALE_THRESHOLD_USD", 100000),
		LookbackMinutes:   getEnvInt("LOOKBACK_MINUTES", 60),
		MaxTransfers:      getEnvInt("MAX_TRANSFERS", 50),
		PollInterval:      getEnvInt("POLL_INTERVAL", 30),
		EthUSDRate:        getEnvFloat("ETH_USD_RATE", 2500),
		PythAPIURL:        getEnv("PYTH_API_URL", "https://hermes.pyth.network"),
		PythAPIKey:        getEnv("PYTH_API_KEY", ""),
		HyperliquidAPIURL: getEnv("HYPERLIQUID_API_URL", "https://api.hyperliquid.xyz"),
		ASI1APIKey:        getEnv("ASI1_API_KEY", ""),
		ASI1BaseURL:       getEnv("ASI1_BASE_URL", "https://api.asi1.ai/v1"),
		ASI1Model:         getEnv("ASI1_MODEL", "asi1-mini"),
		ResendAPIKey:      getEnv("RESEND_API_KEY", ""),
		ResendFromEmail:   getEnv("RESEND_FROM_EMAIL", ""),
		AlertRecipients:   getEnvSlice("ALERT_RECIPIENTS", nil),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:   getEnvSlice("TELEGRAM_CHAT_IDS", nil),
		MySQLDSN:          getEnv("MYSQL_DSN", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		LogDir:            getEnv("LOG_DIR", "logs"), // Default log directory
		ESEnabled:         getEnvBool("ES_ENABLED", false),
		ESAddresses:       getEnvSlice("ES_ADDRESSES", []string{"http://localhost:9200"}),
		ESIndex:           getEnv("ES_INDEX", "whale-watch-logs"),
		BusEnabled:        getEnvBool("BUS_ENABLED", false),
		KafkaBrokers:      getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		AlertTopic:        getEnv("ALERT_TOPIC", "whale.alerts"),
		ToolRequestTopic:  getEnv("TOOL_REQUEST_TOPIC", "tools.requests"),
		ToolResponseTopic: getEnv("TOOL_RESPONSE_TOPIC", "tools.responses"),
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),

		RuleReloadInterval: getEnvInt("RULE_RELOAD_INTERVAL", 60),
	}

	return config, nil
}

// WhaleRuleConfig represents a whale watch rule in JSON format (rule files and
// the MySQL rules table share this shape)
type WhaleRuleConfig struct {
	Name            string  `json:"name,omitempty"`
	ChainID         string  `json:"chain_id"`
	BridgeContract  string  `json:"bridge_contract"`
	ThresholdUSD    float64 `json:"threshold_usd"`
	LookbackMinutes int     `json:"lookback_minutes"`
	MaxTransfers    int     `json:"max_transfers,omitempty"`
	Enabled         bool    `json:"enabled"`
	RecipientEmail  string  `json:"recipient_email,omitempty"`
	TelegramChatID  string  `json:"telegram_chat_id,omitempty"`
}

// ParseWhaleRule converts WhaleRuleConfig to core.WhaleRule (exported for MySQL/store use).
func ParseWhaleRule(rc WhaleRuleConfig) (*core.WhaleRule, error) {
	// Validate bridge contract
	if rc.BridgeContract == "" {
		return nil, fmt.Errorf("bridge_contract cannot be empty in whale rule")
	}
	if !common.IsHexAddress(rc.BridgeContract) {
		return nil, fmt.Errorf("invalid bridge_contract '%s', must be a hex address", rc.BridgeContract)
	}

	// Validate chain ID
	if rc.ChainID == "" {
		return nil, fmt.Errorf("chain_id cannot be empty in whale rule")
	}

	// Validate threshold
	if rc.ThresholdUSD <= 0 {
		return nil, fmt.Errorf("threshold_usd must be positive for bridge %s", rc.BridgeContract)
	}

	// Validate lookback
	if rc.LookbackMinutes <= 0 {
		return nil, fmt.Errorf("lookback_minutes must be positive for bridge %s", rc.BridgeContract)
	}

	// Validate transfer cap (0 = use default)
	if rc.MaxTransfers < 0 {
		return nil, fmt.Errorf("max_transfers must be non-negative for bridge %s", rc.BridgeContract)
	}
	maxTransfers := rc.MaxTransfers
	if maxTransfers == 0 {
		maxTransfers = core.DefaultMaxTransfers
	}

	name := rc.Name
	if name == "" {
		name = fmt.Sprintf("bridge-%s", strings.ToLower(rc.BridgeContract[:10]))
	}

	return &core.WhaleRule{
		Name:            name,
		ChainID:         rc.ChainID,
		Bridge:          common.HexToAddress(rc.BridgeContract),
		ThresholdUSD:    rc.ThresholdUSD,
		LookbackMinutes: rc.LookbackMinutes,
		MaxTransfers:    maxTransfers,
		Enabled:         rc.Enabled,
		RecipientEmail:  rc.RecipientEmail,
		TelegramChatID:  rc.TelegramChatID,
	}, nil
}

// WhaleRule builds the default rule from the environment-derived settings.
func (c *Config) WhaleRule() (*core.WhaleRule, error) {
	return ParseWhaleRule(WhaleRuleConfig{
		ChainID:         c.ChainID,
		BridgeContract:  c.BridgeContract,
		ThresholdUSD:    c.ThresholdUSD,
		LookbackMinutes: c.LookbackMinutes,
		MaxTransfers:    c.MaxTransfers,
		Enabled:         true,
	})
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns true if the env var is set to "1", "true", "yes" (case-insensitive)
func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	switch v {
	case "1", "true", "yes", "TRUE", "YES":
		return true
	case "0", "false", "no", "FALSE", "NO":
		return false
	}
	return defaultValue
}

// getEnvInt returns an integer from an env var; if empty or invalid, returns defaultValue
func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultValue
}

// getEnvFloat returns a float from an env var; if empty or invalid, returns defaultValue
func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return defaultValue
}

// getEnvSlice returns a slice from a comma-separated env var; if empty, returns defaultSlice
func getEnvSlice(key string, defaultSlice []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultSlice
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultSlice
	}
	return out
}
