package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"whale-watch/internal/bus"
	"whale-watch/internal/chain"
	"whale-watch/internal/chat"
	"whale-watch/internal/config"
	"whale-watch/internal/core"
	"whale-watch/internal/llm"
	"whale-watch/internal/logger"
	"whale-watch/internal/monitor"
	"whale-watch/internal/price"
	"whale-watch/internal/server"
	"whale-watch/internal/store"
	"whale-watch/internal/tools"
	"whale-watch/internal/trading"
)

const toolResponseGroup = "whale-agent"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger with date-based file rotation and optional Elasticsearch
	esConfig := &logger.ESConfig{
		Enabled:   cfg.ESEnabled,
		Addresses: cfg.ESAddresses,
		Index:     cfg.ESIndex,
		Service:   "agent",
	}
	if err := logger.InitLogger(cfg.LogDir, esConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.GetLogger().Close()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Load the whale rule from MySQL or environment variables
	var rule *core.WhaleRule
	if cfg.MySQLDSN != "" {
		rules, err := store.LoadWhaleRulesFromMySQL(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("Failed to load whale rules from MySQL: %v", err)
		}
		rule = pickEnabledRule(rules)
		if rule == nil {
			log.Fatal("No enabled whale rule found in MySQL")
		}
		log.Printf("✅ Loaded whale rule from MySQL: %s", rule.Name)
	} else {
		rule, err = cfg.WhaleRule()
		if err != nil {
			log.Fatalf("Invalid whale rule configuration: %v", err)
		}
		log.Printf("✅ Loaded whale rule from environment: %s", rule.Name)
	}

	// Token registry seeded with the static ETH rate; Pyth refreshes it later
	tokens := core.NewTokenRegistry(cfg.EthUSDRate)

	// Dedup store: Redis survives restarts, the in-memory set does not
	var seen core.ProcessedSet
	if cfg.RedisAddr != "" {
		redisSet, err := store.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisSet.Close()
		seen = redisSet
		log.Printf("✅ Redis dedup store connected: %s", cfg.RedisAddr)
	} else {
		seen = core.NewMemorySet()
	}

	detector := core.NewDetector(rule, tokens, seen)

	// Chain data clients
	restClient := chain.NewRESTClient(cfg.RESTBaseURL)
	var mcpClient *chain.MCPClient
	if cfg.MCPServerURL != "" {
		mcpClient = chain.NewMCPClient(cfg.MCPServerURL, cfg.AgentName)
	}
	var rpcClient *chain.RPCClient
	if rc, err := chain.NewRPCClient(cfg.ChainID); err != nil {
		log.Printf("⚠️  On-chain token metadata lookups disabled: %v", err)
	} else {
		rpcClient = rc
		defer rpcClient.Close()
	}
	pythClient := price.NewPythClient(cfg.PythAPIURL, cfg.PythAPIKey)
	hlClient := trading.NewClient(cfg.HyperliquidAPIURL)

	// Alert persistence (optional)
	var alertStore *store.MySQL
	storeKind := "memory"
	if cfg.MySQLDSN != "" {
		alertStore, err = store.OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("Failed to open MySQL alert store: %v", err)
		}
		defer alertStore.Close()
		storeKind = "mysql"
	}

	// Tool execution: in-process by default, over Kafka when the bus is enabled
	toolService := tools.NewService(detector, restClient, mcpClient, hlClient)
	var invoker tools.Invoker = toolService
	var publisher *bus.Publisher
	if cfg.BusEnabled {
		publisher = bus.NewPublisher(cfg.KafkaBrokers, cfg.AlertTopic, cfg.ToolRequestTopic, cfg.ToolResponseTopic)
		defer publisher.Close()

		registry := bus.NewRegistry(30 * time.Second)
		invoker = tools.NewBusInvoker(publisher, registry)

		bus.WaitForGroupCoordinator(ctx, cfg.KafkaBrokers)
		bus.InitGroupOffsets(ctx, cfg.KafkaBrokers, []bus.GroupSpec{
			{GroupID: toolResponseGroup, Topic: cfg.ToolResponseTopic},
		})
		go consumeToolResponses(ctx, cfg, registry)
		log.Printf("✅ Kafka bus wired: tool calls dispatch through %s", cfg.ToolRequestTopic)
	}

	// Chat router with optional ASI:One rephrasing
	llmClient := llm.NewClient(cfg.ASI1APIKey, cfg.ASI1BaseURL, cfg.ASI1Model)
	if llmClient.Enabled() {
		log.Printf("✅ ASI:One rephrasing enabled (model %s)", cfg.ASI1Model)
	}
	router := chat.NewRouter(invoker, llmClient, rule.ThresholdUSD)

	// Websocket hub for live alert fan-out
	hub := server.NewHub()

	// Bridge monitor loop
	mcfg := monitor.Config{
		Detector:     detector,
		REST:         restClient,
		MCP:          mcpClient,
		RPC:          rpcClient,
		Pyth:         pythClient,
		Hub:          hub,
		PollInterval: time.Duration(cfg.PollInterval) * time.Second,
	}
	if publisher != nil {
		mcfg.Publisher = publisher
	}
	if alertStore != nil {
		mcfg.Store = alertStore
	}
	if cfg.MySQLDSN != "" && cfg.RuleReloadInterval > 0 {
		dsn := cfg.MySQLDSN
		mcfg.Rules = func(context.Context) ([]*core.WhaleRule, error) {
			return store.LoadWhaleRulesFromMySQL(dsn)
		}
		mcfg.RuleReload = time.Duration(cfg.RuleReloadInterval) * time.Second
	}
	go monitor.New(mcfg).Run(ctx)

	// Optional: ES client for log data (when ES is enabled)
	var esLog *store.ESClient
	if cfg.ESEnabled && len(cfg.ESAddresses) > 0 && cfg.ESIndex != "" {
		var err error
		esLog, err = store.NewESClient(cfg.ESAddresses, cfg.ESIndex)
		if err != nil {
			log.Printf("⚠️ Elasticsearch log source disabled: %v", err)
			esLog = nil
		} else {
			defer esLog.Close()
			log.Printf("📊 Log API will also read from Elasticsearch index: %s", cfg.ESIndex)
		}
	}

	// HTTP facade: status, health, chat, alerts, logs, websocket
	scfg := server.Config{
		AgentName: cfg.AgentName,
		Detector:  detector,
		Chat:      router,
		Hub:       hub,
		LogDir:    cfg.LogDir,
		ESLog:     esLog,
		BusWired:  cfg.BusEnabled,
		StoreKind: storeKind,
	}
	if rpcClient != nil {
		scfg.Chain = rpcClient
	}
	if alertStore != nil {
		scfg.Alerts = alertStore
	}
	srv := server.New(scfg)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Printf("🌐 HTTP facade listening on %s", addr)
		if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Println("🚀 Hyperliquid Whale Watcher started")
	log.Printf("📊 Watching bridge %s on chain %s (threshold $%.0f, lookback %d min)",
		rule.Bridge.Hex(), rule.ChainID, rule.ThresholdUSD, rule.LookbackMinutes)
	log.Printf("⏱️  Scan interval: %d seconds", cfg.PollInterval)
	log.Println("Press Ctrl+C to stop...")

	// Wait for shutdown signal
	<-sigChan
	log.Println("\n🛑 Shutting down...")
	cancel()
	time.Sleep(1 * time.Second)
	log.Println("✅ Shutdown complete")
}

// consumeToolResponses feeds bus tool responses back into the pending-call
// registry. Responses whose caller already timed out are logged and dropped.
func consumeToolResponses(ctx context.Context, cfg *config.Config, registry *bus.Registry) {
	bus.ConsumeWithBackoff(ctx, cfg.KafkaBrokers, cfg.ToolResponseTopic, toolResponseGroup,
		func(ctx context.Context, r *kafka.Reader) error {
			msg, err := r.ReadMessage(ctx)
			if err != nil {
				return err
			}
			var resp bus.ToolResponse
			if err := json.Unmarshal(msg.Value, &resp); err != nil {
				log.Printf("⚠️  Dropping malformed tool response: %v", err)
				return nil
			}
			if !registry.ResolveResponse(resp) {
				log.Printf("⚠️  Tool response %s arrived after its caller gave up", resp.CorrelationID)
			}
			return nil
		})
}

// pickEnabledRule returns the first enabled rule, or nil when none is.
func pickEnabledRule(rules []*core.WhaleRule) *core.WhaleRule {
	for _, r := range rules {
		if r.Enabled {
			return r
		}
	}
	return nil
}
