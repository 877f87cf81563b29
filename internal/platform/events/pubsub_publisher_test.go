package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/stagecart/api/internal/domain"
	"github.com/stagecart/api/internal/services"
)

func TestPubSubChangePublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-change-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubChangePublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubChangePublisher: %v", err)
	}

	occurredAt := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	event := services.ChangeEvent{
		Type:          "order.change.confirmed",
		OrderID:       "ord_test",
		OrderChangeID: "ordch_test",
		ChangeType:    domain.ChangeTypeEdit,
		ActorID:       "usr_test",
		OrderVersion:  2,
		OccurredAt:    occurredAt,
		Metadata:      map[string]any{"actionCount": 3},
	}

	if err := publisher.PublishChangeEvent(ctx, event); err != nil {
		t.Fatalf("PublishChangeEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["type"] != "order.change.confirmed" || payload["orderId"] != "ord_test" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["orderChangeId"]; attr != "ordch_test" {
		t.Fatalf("expected order change id attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderVersion"]; attr != "2" {
		t.Fatalf("expected order version attribute, got %q", attr)
	}
}

func TestPubSubChangePublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubChangePublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
