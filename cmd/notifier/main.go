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
	"whale-watch/internal/config"
	"whale-watch/internal/logger"
	"whale-watch/internal/notify"
)

const alertGroup = "whale-notifier"

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
		Service:   "notifier",
	}
	if err := logger.InitLogger(cfg.LogDir, esConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.GetLogger().Close()

	if cfg.ResendAPIKey == "" {
		log.Fatal("RESEND_API_KEY is required")
	}
	if cfg.ResendFromEmail == "" {
		log.Fatal("RESEND_FROM_EMAIL is required")
	}

	resend := notify.NewEmailSender(cfg.ResendAPIKey, cfg.ResendFromEmail)

	var tg *notify.TelegramSender
	if cfg.TelegramBotToken != "" {
		tg = notify.NewTelegramSender(cfg.TelegramBotToken)
		log.Println("📨 Telegram notifications enabled")
	} else {
		log.Println("ℹ️  TELEGRAM_BOT_TOKEN not set — Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Block until the Kafka group coordinator is truly ready.
	// kafka.NewReader with a GroupID spawns a background goroutine that immediately
	// calls JoinGroup. Creating readers before the coordinator is ready floods the
	// logs with "Group Coordinator Not Available" errors from that goroutine.
	bus.WaitForGroupCoordinator(ctx, cfg.KafkaBrokers)

	// For a consumer group that has no committed offset (fresh deploy, first run,
	// or after a coordinator failure that prevented committing), explicitly commit
	// the earliest available offset so the group starts from the beginning.
	// Groups that already have a committed offset are left completely untouched —
	// no duplicate emails on normal restarts.
	bus.InitGroupOffsets(ctx, cfg.KafkaBrokers, []bus.GroupSpec{
		{GroupID: alertGroup, Topic: cfg.AlertTopic},
	})

	go consumeWhaleAlerts(ctx, cfg, resend, tg)

	log.Printf("🔔 Whale notifier started. Listening on brokers: %v", cfg.KafkaBrokers)
	log.Println("Press Ctrl+C to stop...")

	<-sigChan
	log.Println("🛑 Shutting down notifier...")
	cancel()
	time.Sleep(1 * time.Second)
	log.Println("✅ Shutdown complete")
}

// consumeWhaleAlerts reads whale alert events and fans each one out to email
// and Telegram. Rule-level recipients win over the configured defaults. Send
// failures are logged and the message is committed anyway; alerts are not
// retried into a second email storm.
func consumeWhaleAlerts(ctx context.Context, cfg *config.Config, resend *notify.EmailSender, tg *notify.TelegramSender) {
	bus.ConsumeWithBackoff(ctx, cfg.KafkaBrokers, cfg.AlertTopic, alertGroup,
		func(ctx context.Context, r *kafka.Reader) error {
			msg, err := r.FetchMessage(ctx)
			if err != nil {
				return err
			}
			var event bus.AlertEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("⚠️  [%s] unmarshal error: %v", cfg.AlertTopic, err)
				_ = r.CommitMessages(ctx, msg)
				return nil
			}

			emails := cfg.AlertRecipients
			if event.RecipientEmail != "" {
				emails = []string{event.RecipientEmail}
			}
			chats := cfg.TelegramChatIDs
			if event.TelegramChatID != "" {
				chats = []string{event.TelegramChatID}
			}

			for _, email := range emails {
				if err := resend.SendAlert(email, event); err != nil {
					log.Printf("❌ [%s] failed to send email to %s: %v", cfg.AlertTopic, email, err)
				} else {
					log.Printf("✅ [%s] sent email alert for tx %s to %s", cfg.AlertTopic, event.TxHash, email)
				}
			}
			if tg != nil {
				for _, chat := range chats {
					if err := tg.SendAlert(chat, event); err != nil {
						log.Printf("❌ [%s] failed to send Telegram to chat %s: %v", cfg.AlertTopic, chat, err)
					} else {
						log.Printf("✅ [%s] sent Telegram alert for tx %s to chat %s", cfg.AlertTopic, event.TxHash, chat)
					}
				}
			}
			_ = r.CommitMessages(ctx, msg)
			return nil
		},
	)
}
