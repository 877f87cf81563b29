package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/stagecart/api/internal/services"
)

// PubSubChangePublisher publishes order-change lifecycle events to a Pub/Sub topic.
type PubSubChangePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubChangePublisher constructs a Pub/Sub backed change event publisher.
func NewPubSubChangePublisher(topic *pubsub.Topic) (*PubSubChangePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub change publisher: topic is required")
	}
	return &PubSubChangePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type changeEventPayload struct {
	Type          string         `json:"type"`
	OrderID       string         `json:"orderId"`
	OrderChangeID string         `json:"orderChangeId,omitempty"`
	ChangeType    string         `json:"changeType,omitempty"`
	ActorID       string         `json:"actorId,omitempty"`
	OrderVersion  int            `json:"orderVersion,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// PublishChangeEvent enqueues the event on the configured topic and waits for
// the server-assigned message id.
func (p *PubSubChangePublisher) PublishChangeEvent(ctx context.Context, event services.ChangeEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub change publisher: not initialised")
	}

	payload := changeEventPayload{
		Type:          event.Type,
		OrderID:       event.OrderID,
		OrderChangeID: event.OrderChangeID,
		ChangeType:    string(event.ChangeType),
		ActorID:       event.ActorID,
		OrderVersion:  event.OrderVersion,
		OccurredAt:    event.OccurredAt,
		Metadata:      event.Metadata,
	}
	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderChangeId", event.OrderChangeID)
	setAttr(attrs, "changeType", string(event.ChangeType))
	if event.OrderVersion > 0 {
		attrs["orderVersion"] = strconv.Itoa(event.OrderVersion)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.ChangeEventPublisher = (*PubSubChangePublisher)(nil)
