package bus

import (
	"context"
	"log"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// NewReader builds a consumer-group reader for one topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       1e6,
		StartOffset:    kafka.FirstOffset,
		SessionTimeout: 30 * time.Second,
		MaxWait:        10 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Printf("[kafka-go][%s] ERROR: "+msg, append([]interface{}{topic}, args...)...)
		}),
	})
}

// ConsumeWithBackoff runs the consume loop for a topic/group, recreating the
// reader with exponential backoff whenever the handler returns a persistent
// error. This handles transient broker errors (e.g. "Group Coordinator Not
// Available") without spinning the CPU.
func ConsumeWithBackoff(
	ctx context.Context,
	brokers []string,
	topic, groupID string,
	handle func(context.Context, *kafka.Reader) error,
) {
	log.Printf("🔄 [%s] consumer goroutine started, waiting for messages...", topic)

	const (
		backoffMin = 2 * time.Second
		backoffMax = 60 * time.Second
	)
	backoff := backoffMin

	for {
		if ctx.Err() != nil {
			return
		}

		r := NewReader(brokers, topic, groupID)
		for {
			if err := handle(ctx, r); err != nil {
				if ctx.Err() != nil {
					r.Close()
					return
				}
				log.Printf("⚠️  [%s] read error (retrying in %v): %v", topic, backoff, err)
				r.Close()
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				// Exponential backoff, capped at backoffMax
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				break // recreate the reader
			}
			backoff = backoffMin // reset on successful message
		}
	}
}

// GroupSpec names one consumer group and the topic it reads.
type GroupSpec struct {
	GroupID string
	Topic   string
}

// InitGroupOffsets ensures every consumer group starts from the earliest
// available message when no committed offset exists. On normal restarts the
// group already has a committed offset, so this function is a no-op and
// duplicate deliveries never happen.
func InitGroupOffsets(ctx context.Context, brokers []string, specs []GroupSpec) {
	if len(brokers) == 0 {
		return
	}
	client := &kafka.Client{
		Addr:    kafka.TCP(brokers[0]),
		Timeout: 10 * time.Second,
	}
	for _, spec := range specs {
		initGroupOffset(ctx, client, brokers[0], spec)
	}
}

// initGroupOffset seeds one group/topic pair. Groups with a committed offset
// are left alone.
func initGroupOffset(ctx context.Context, client *kafka.Client, broker string, spec GroupSpec) {
	fetchResp, err := client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: spec.GroupID,
		Topics:  map[string][]int{spec.Topic: {0}},
	})
	if err != nil {
		log.Printf("⚠️  [%s] offset check failed: %v", spec.GroupID, err)
		return
	}
	partitions := fetchResp.Topics[spec.Topic]
	if len(partitions) == 0 {
		return
	}
	p := partitions[0]
	if p.Error != nil || p.CommittedOffset >= 0 {
		if p.CommittedOffset >= 0 {
			log.Printf("📌 [%s/%s] committed offset=%d, resuming from there", spec.GroupID, spec.Topic, p.CommittedOffset)
		}
		return
	}

	first, err := earliestOffset(ctx, broker, spec.Topic)
	if err != nil {
		log.Printf("⚠️  [%s] earliest offset lookup failed: %v", spec.GroupID, err)
		return
	}

	// Commit the earliest offset so kafka-go starts consuming from there.
	if _, err = client.OffsetCommit(ctx, &kafka.OffsetCommitRequest{
		GroupID:      spec.GroupID,
		GenerationID: -1, // -1 = standalone commit outside an active group session
		Topics: map[string][]kafka.OffsetCommit{
			spec.Topic: {{Partition: 0, Offset: first}},
		},
	}); err != nil {
		log.Printf("⚠️  [%s] offset init failed: %v", spec.GroupID, err)
		return
	}
	log.Printf("📌 [%s/%s] no prior offset found, initialized to %d (earliest)", spec.GroupID, spec.Topic, first)
}

// earliestOffset dials the partition 0 leader and returns its first offset.
func earliestOffset(ctx context.Context, broker, topic string) (int64, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", broker, topic, 0)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	first, _, err := conn.ReadOffsets()
	return first, err
}

// WaitForGroupCoordinator polls the Kafka group coordinator API with
// exponential backoff until it responds successfully. Using
// kafka.Client.FindCoordinator directly avoids creating a full Reader (which
// would itself trigger the noisy background join goroutine).
func WaitForGroupCoordinator(ctx context.Context, brokers []string) {
	if len(brokers) == 0 || ctx.Err() != nil {
		return
	}
	client := &kafka.Client{
		Addr:    kafka.TCP(brokers[0]),
		Timeout: 5 * time.Second,
	}
	backoff := 1 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		resp, err := client.FindCoordinator(ctx, &kafka.FindCoordinatorRequest{
			Addr:    kafka.TCP(brokers[0]),
			Key:     "__whale_watch_healthcheck__",
			KeyType: kafka.CoordinatorKeyTypeConsumer,
		})
		if err == nil && resp.Error == nil {
			log.Printf("✅ Kafka group coordinator is ready")
			return
		}
		reason := "unknown"
		if err != nil {
			reason = err.Error()
		} else if resp.Error != nil {
			reason = resp.Error.Error()
		}
		log.Printf("⏳ Waiting for Kafka group coordinator (%s), retrying in %v...", reason, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
