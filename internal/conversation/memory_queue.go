package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultVisibilityTimeout = 30 * time.Second

// MemoryQueue is an in-process Queue. Like SQS, a received message
// stays invisible until it is deleted or its visibility timeout passes, at
// which point it is delivered again.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []queueMessage
	inFlight   map[string]inFlightMessage
	visibility time.Duration
	notify     chan struct{}
}

type inFlightMessage struct {
	msg      queueMessage
	deadline time.Time
}

// NewMemoryQueue creates a MemoryQueue; visibility <= 0 uses 30s.
func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	if visibility <= 0 {
		visibility = defaultVisibilityTimeout
	}
	return &MemoryQueue{
		inFlight:   make(map[string]inFlightMessage),
		visibility: visibility,
		notify:     make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Send(_ context.Context, out outboundMessage) error {
	q.mu.Lock()
	q.ready = append(q.ready, queueMessage{ID: uuid.NewString(), Body: out.Body})
	q.mu.Unlock()
	q.wake()
	return nil
}

// Receive returns up to maxMessages, waiting up to waitSeconds for the first.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	deadline := time.Now().Add(time.Duration(waitSeconds) * time.Second)
	for {
		if msgs := q.take(maxMessages); len(msgs) > 0 {
			return msgs, nil
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		// Poll at least every visibility period so expired claims resurface.
		if wait > q.visibility {
			wait = q.visibility
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Delete acknowledges a received message.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, receiptHandle)
	return nil
}

// Len reports queued plus in-flight messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inFlight)
}

func (q *MemoryQueue) take(max int) []queueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for handle, f := range q.inFlight {
		if now.After(f.deadline) {
			delete(q.inFlight, handle)
			q.ready = append(q.ready, f.msg)
		}
	}

	n := min(max, len(q.ready))
	if n == 0 {
		return nil
	}
	out := make([]queueMessage, 0, n)
	for _, msg := range q.ready[:n] {
		msg.ReceiptHandle = uuid.NewString()
		q.inFlight[msg.ReceiptHandle] = inFlightMessage{msg: msg, deadline: now.Add(q.visibility)}
		out = append(out, msg)
	}
	q.ready = append([]queueMessage(nil), q.ready[n:]...)
	return out
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
