package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/wolfman30/salon-concierge/internal/config"
	"github.com/wolfman30/salon-concierge/internal/conversation"
	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/observability/metrics"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

func TestSetupMetricsExposesConversationMetrics(t *testing.T) {
	registry, handler := setupMetrics()
	m := metrics.NewBookingMetrics(registry)
	m.ObserveInbound("text", "offered")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "salon_assistant_inbound_events_total") {
		t.Fatalf("expected inbound counter to be exported")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors to be exported")
	}
}

func TestSetupQueue(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	ctx := context.Background()

	q, err := setupQueue(ctx, &appconfig.Config{UseMemoryQueue: true}, logger)
	if err != nil {
		t.Fatalf("memory queue: %v", err)
	}
	if _, ok := q.(*conversation.MemoryQueue); !ok {
		t.Fatalf("expected memory queue, got %T", q)
	}

	q, err = setupQueue(ctx, &appconfig.Config{}, logger)
	if err != nil || q != nil {
		t.Fatalf("expected no queue without config, got %T %v", q, err)
	}

	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	q, err = setupQueue(ctx, &appconfig.Config{
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
		InboundQueueURL:    "http://localhost:4566/000000000000/inbound.fifo",
	}, logger)
	if err != nil {
		t.Fatalf("sqs queue: %v", err)
	}
	if _, ok := q.(*conversation.SQSQueue); !ok {
		t.Fatalf("expected SQS queue, got %T", q)
	}
}

type countingProcessor struct {
	calls chan events.InboundEvent
}

func (p countingProcessor) Process(_ context.Context, evt events.InboundEvent) (conversation.Outcome, error) {
	p.calls <- evt
	return conversation.Outcome{Reply: conversation.TextReply("ok")}, nil
}

func TestSetupInlineWorkerOnlyForMemoryQueue(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	cfg := &appconfig.Config{WorkerCount: 1}
	proc := countingProcessor{calls: make(chan events.InboundEvent, 1)}

	if w := setupInlineWorker(context.Background(), cfg, nil, proc, logger); w != nil {
		t.Fatalf("expected no worker without a queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	queue := conversation.NewMemoryQueue(time.Minute)
	worker := setupInlineWorker(ctx, cfg, queue, proc, logger)
	if worker == nil {
		t.Fatalf("expected worker for memory queue")
	}

	evt := events.InboundEvent{
		TransportEventID: "m1",
		Key:              events.ConversationKey{SalonID: "salon-1", CustomerHandle: "+15551234567"},
		Type:             events.EventTypeText,
		Text:             "hi",
	}
	if _, err := conversation.NewPublisher(queue, logger).Enqueue(context.Background(), evt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case got := <-proc.calls:
		if got.TransportEventID != "m1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("inline worker did not process the event")
	}

	cancel()
	worker.Wait()
}
