package bus

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
)

// Publisher writes alert and tool messages to Kafka. The chat agent publishes
// tool requests, the tool agent publishes responses, and the monitor publishes
// whale alerts for the notifier to consume.
type Publisher struct {
	writer        *kafka.Writer
	alertTopic    string
	requestTopic  string
	responseTopic string
}

// NewPublisher creates a publisher that writes to the given Kafka brokers.
// Empty topic names fall back to the defaults.
func NewPublisher(brokers []string, alertTopic, requestTopic, responseTopic string) *Publisher {
	if alertTopic == "" {
		alertTopic = TopicAlerts
	}
	if requestTopic == "" {
		requestTopic = TopicToolRequests
	}
	if responseTopic == "" {
		responseTopic = TopicToolResponses
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{
		writer:        w,
		alertTopic:    alertTopic,
		requestTopic:  requestTopic,
		responseTopic: responseTopic,
	}
}

// Close shuts down the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// PublishAlert publishes a whale alert to the alerts topic.
func (p *Publisher) PublishAlert(ctx context.Context, event AlertEvent) error {
	return p.publish(ctx, p.alertTopic, event)
}

// PublishToolRequest publishes a correlated tool request.
func (p *Publisher) PublishToolRequest(ctx context.Context, req ToolRequest) error {
	return p.publish(ctx, p.requestTopic, req)
}

// PublishToolResponse publishes the outcome of a tool request.
func (p *Publisher) PublishToolResponse(ctx context.Context, resp ToolResponse) error {
	return p.publish(ctx, p.responseTopic, resp)
}

func (p *Publisher) publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal kafka event for topic %s: %w", topic, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: data,
	})
}
