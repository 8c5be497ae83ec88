package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"whale-watch/internal/bus"
	"whale-watch/internal/chain"
	"whale-watch/internal/config"
	"whale-watch/internal/core"
	"whale-watch/internal/logger"
	"whale-watch/internal/store"
	"whale-watch/internal/tools"
	"whale-watch/internal/trading"
)

const toolRequestGroup = "whale-toolagent"

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
		Service:   "toolagent",
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

	// The tool agent shares the agent's rule so passthrough tools default to
	// the right chain ID and whale_report scans the right bridge.
	var rule *core.WhaleRule
	if cfg.MySQLDSN != "" {
		rules, err := store.LoadWhaleRulesFromMySQL(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("Failed to load whale rules from MySQL: %v", err)
		}
		for _, r := range rules {
			if r.Enabled {
				rule = r
				break
			}
		}
	}
	if rule == nil {
		rule, err = cfg.WhaleRule()
		if err != nil {
			log.Fatalf("Invalid whale rule configuration: %v", err)
		}
	}

	// Chat-triggered scans run on throwaway detectors, so the tool agent never
	// needs the shared dedup store.
	tokens := core.NewTokenRegistry(cfg.EthUSDRate)
	detector := core.NewDetector(rule, tokens, core.NewMemorySet())

	restClient := chain.NewRESTClient(cfg.RESTBaseURL)
	var mcpClient *chain.MCPClient
	if cfg.MCPServerURL != "" {
		mcpClient = chain.NewMCPClient(cfg.MCPServerURL, cfg.AgentName+"-toolagent")
		if err := mcpClient.Initialize(ctx); err != nil {
			log.Printf("⚠️  MCP server unreachable, tools will use the REST API: %v", err)
		} else {
			log.Println("✅ MCP session established")
		}
	}
	hlClient := trading.NewClient(cfg.HyperliquidAPIURL)

	service := tools.NewService(detector, restClient, mcpClient, hlClient)

	publisher := bus.NewPublisher(cfg.KafkaBrokers, cfg.AlertTopic, cfg.ToolRequestTopic, cfg.ToolResponseTopic)
	defer publisher.Close()

	// Block until the Kafka group coordinator is truly ready.
	// kafka.NewReader with a GroupID spawns a background goroutine that immediately
	// calls JoinGroup. Creating readers before the coordinator is ready floods the
	// logs with "Group Coordinator Not Available" errors from that goroutine.
	bus.WaitForGroupCoordinator(ctx, cfg.KafkaBrokers)

	bus.InitGroupOffsets(ctx, cfg.KafkaBrokers, []bus.GroupSpec{
		{GroupID: toolRequestGroup, Topic: cfg.ToolRequestTopic},
	})

	go consumeToolRequests(ctx, cfg, service, publisher)

	log.Printf("🔧 Tool agent started. Listening on brokers: %v", cfg.KafkaBrokers)
	log.Printf("📚 Serving %d tool(s) for chain %s", len(tools.Catalog()), rule.ChainID)
	log.Println("Press Ctrl+C to stop...")

	<-sigChan
	log.Println("🛑 Shutting down tool agent...")
	cancel()
	time.Sleep(1 * time.Second)
	log.Println("✅ Shutdown complete")
}

// consumeToolRequests reads tool-call requests, runs them and publishes the
// correlated responses. Requests are committed whether or not the call
// succeeded; the caller's timeout covers lost responses.
func consumeToolRequests(ctx context.Context, cfg *config.Config, service *tools.Service, publisher *bus.Publisher) {
	bus.ConsumeWithBackoff(ctx, cfg.KafkaBrokers, cfg.ToolRequestTopic, toolRequestGroup,
		func(ctx context.Context, r *kafka.Reader) error {
			msg, err := r.FetchMessage(ctx)
			if err != nil {
				return err
			}
			var req bus.ToolRequest
			if err := json.Unmarshal(msg.Value, &req); err != nil {
				log.Printf("⚠️  [%s] unmarshal error: %v", cfg.ToolRequestTopic, err)
				_ = r.CommitMessages(ctx, msg)
				return nil
			}

			log.Printf("🔧 [%s] running tool %s (correlation %s)", cfg.ToolRequestTopic, req.Tool, req.CorrelationID)
			resp := bus.ToolResponse{CorrelationID: req.CorrelationID}
			result, err := service.Invoke(ctx, req.Tool, req.Args)
			if err != nil {
				resp.Error = err.Error()
				log.Printf("❌ [%s] tool %s failed: %v", cfg.ToolRequestTopic, req.Tool, err)
			} else {
				resp.Success = true
				resp.Result = result
			}

			if err := publisher.PublishToolResponse(ctx, resp); err != nil {
				log.Printf("❌ [%s] failed to publish response %s: %v", cfg.ToolRequestTopic, req.CorrelationID, err)
			} else if resp.Success {
				log.Printf("✅ [%s] tool %s answered (correlation %s)", cfg.ToolRequestTopic, req.Tool, req.CorrelationID)
			}
			_ = r.CommitMessages(ctx, msg)
			return nil
		},
	)
}
