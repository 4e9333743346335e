package agentbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Notifier fans a just-sent message out to live listeners. Delivery is best
// effort; the durable copy in the store is what agents poll, so a lost
// notification only delays pickup.
type Notifier interface {
	Notify(ctx context.Context, msg AgentMessage) error
}

// NATSNotifier publishes sent messages to subjects of the form
//
//	agents.{tenant}.{recipient}.{topic}
//
// so listeners can subscribe per agent (agents.acme.budtender.>) or per
// tenant (agents.acme.>).
type NATSNotifier struct {
	nc *nats.Conn
}

// NewNATSNotifier wraps an established NATS connection.
func NewNATSNotifier(nc *nats.Conn) (*NATSNotifier, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	return &NATSNotifier{nc: nc}, nil
}

// Notify implements Notifier.
func (n *NATSNotifier) Notify(ctx context.Context, msg AgentMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	subject := fmt.Sprintf("agents.%s.%s.%s", msg.TenantID, msg.ToAgent, msg.Topic)
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
