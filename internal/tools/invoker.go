package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"whale-watch/internal/bus"
)

// Invoker runs one tool call and returns its JSON payload. Service satisfies
// it in-process; BusInvoker satisfies it across Kafka.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error)
}

// RequestPublisher is the slice of the bus publisher the invoker needs.
type RequestPublisher interface {
	PublishToolRequest(ctx context.Context, req bus.ToolRequest) error
}

// BusInvoker sends tool calls to a remote tool agent over Kafka. Each call
// registers a pending slot under a fresh correlation ID, publishes the
// request, then blocks until the correlated response resolves the slot or the
// timeout fires.
type BusInvoker struct {
	publisher RequestPublisher
	registry  *bus.Registry
}

// NewBusInvoker wires the bus-backed invoker. The caller owns the consume
// loop that feeds responses into the registry.
func NewBusInvoker(publisher RequestPublisher, registry *bus.Registry) *BusInvoker {
	return &BusInvoker{publisher: publisher, registry: registry}
}

var _ Invoker = (*BusInvoker)(nil)

// Invoke publishes a correlated tool request and awaits the response.
func (b *BusInvoker) Invoke(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	call := b.registry.Register(id)

	req := bus.ToolRequest{
		CorrelationID: id,
		Tool:          name,
		Args:          args,
		RequestedAt:   time.Now().UTC(),
	}
	if err := b.publisher.PublishToolRequest(ctx, req); err != nil {
		b.registry.Resolve(id, nil, err)
		return nil, fmt.Errorf("publish tool request %s: %w", name, err)
	}
	return b.registry.Await(ctx, call)
}
