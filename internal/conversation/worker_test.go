package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

func TestWorkerProcessesAndSendsReply(t *testing.T) {
	queue := newScriptedQueue()
	processor := &stubProcessor{outcome: Outcome{Reply: TextReply("hello back")}}
	sender := &recordingSender{}
	worker := NewWorker(processor, queue, sender, logging.Default(), WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{ID: "msg-1", Body: mustPayload(t, textEvent("evt-1", "hi")), ReceiptHandle: "rh-1"})

	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	if processor.count() != 1 {
		t.Fatalf("expected 1 process call, got %d", processor.count())
	}
	sent := sender.all()
	if len(sent) != 1 || sent[0].reply.Body != "hello back" || sent[0].key != testKey {
		t.Fatalf("unexpected sends: %+v", sent)
	}
}

func TestWorkerDoesNotResendDuplicates(t *testing.T) {
	queue := newScriptedQueue()
	processor := &stubProcessor{outcome: Outcome{Duplicate: true, Reply: TextReply("old")}}
	sender := &recordingSender{}
	worker := NewWorker(processor, queue, sender, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{ID: "msg-1", Body: mustPayload(t, textEvent("evt-1", "hi")), ReceiptHandle: "rh-1"})
	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	if len(sender.all()) != 0 {
		t.Fatalf("duplicates must not be answered twice, sent %+v", sender.all())
	}
}

func TestWorkerLeavesMessageWhenLedgerDown(t *testing.T) {
	queue := newScriptedQueue()
	processor := &stubProcessor{err: ErrStorageUnavailable}
	worker := NewWorker(processor, queue, &recordingSender{}, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{ID: "msg-1", Body: mustPayload(t, textEvent("evt-1", "hi")), ReceiptHandle: "rh-1"})
	waitFor(func() bool { return processor.count() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	if queue.deletedCount() != 0 {
		t.Fatal("message should stay on the queue for redelivery")
	}
}

func TestWorkerDropsInvalidAndUndecodableMessages(t *testing.T) {
	queue := newScriptedQueue()
	processor := &stubProcessor{err: events.ErrInvalidEvent}
	worker := NewWorker(processor, queue, &recordingSender{}, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{ID: "msg-1", Body: "{not json", ReceiptHandle: "rh-1"})
	queue.enqueue(queueMessage{ID: "msg-2", Body: mustPayload(t, textEvent("evt-2", "hi")), ReceiptHandle: "rh-2"})
	waitFor(func() bool { return queue.deletedCount() == 2 }, time.Second, t)
	cancel()
	worker.Wait()

	if processor.count() != 1 {
		t.Fatalf("undecodable message should never reach the processor, got %d calls", processor.count())
	}
}

func TestWorkerRedeliversFromMemoryQueue(t *testing.T) {
	queue := NewMemoryQueue(50 * time.Millisecond)
	processor := &stubProcessor{errs: []error{ErrStorageUnavailable}, outcome: Outcome{Reply: TextReply("ok")}}
	sender := &recordingSender{}
	worker := NewWorker(processor, queue, sender, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	publisher := NewPublisher(queue, logging.Default())
	if _, err := publisher.Enqueue(ctx, textEvent("evt-1", "hi")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(func() bool { return len(sender.all()) == 1 }, 2*time.Second, t)
	waitFor(func() bool { return queue.Len() == 0 }, time.Second, t)
	cancel()
	worker.Wait()

	if processor.count() != 2 {
		t.Fatalf("expected a failed attempt and a redelivery, got %d calls", processor.count())
	}
}

func mustPayload(t *testing.T, evt events.InboundEvent) string {
	t.Helper()
	_, body, err := encodePayload(queuePayload{Kind: jobTypeInbound, Event: evt})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return body
}

type stubProcessor struct {
	mu      sync.Mutex
	calls   int
	outcome Outcome
	err     error
	errs    []error
}

func (p *stubProcessor) Process(_ context.Context, _ events.InboundEvent) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return Outcome{}, err
	}
	if p.err != nil {
		return Outcome{}, p.err
	}
	return p.outcome, nil
}

func (p *stubProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type sentReply struct {
	key   events.ConversationKey
	reply Reply
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentReply
}

func (s *recordingSender) SendReply(_ context.Context, key events.ConversationKey, reply Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentReply{key: key, reply: reply})
	return nil
}

func (s *recordingSender) all() []sentReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentReply(nil), s.sent...)
}

type scriptedQueue struct {
	ch       chan queueMessage
	sent     []outboundMessage
	deleted  int
	delMutex sync.Mutex
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{
		ch: make(chan queueMessage, 10),
	}
}

func (s *scriptedQueue) enqueue(msg queueMessage) {
	s.ch <- msg
}

func (s *scriptedQueue) Send(_ context.Context, msg outboundMessage) error {
	s.delMutex.Lock()
	defer s.delMutex.Unlock()
	if msg.Body == "" {
		return errors.New("empty body")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []queueMessage{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(ctx context.Context, receiptHandle string) error {
	s.delMutex.Lock()
	s.deleted++
	s.delMutex.Unlock()
	return nil
}

func (s *scriptedQueue) deletedCount() int {
	s.delMutex.Lock()
	defer s.delMutex.Unlock()
	return s.deleted
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestDecodePayloadRejectsUnknownKind(t *testing.T) {
	body, _ := json.Marshal(queuePayload{ID: "x", Kind: "start.v1"})
	if _, err := decodePayload(string(body)); err == nil {
		t.Fatal("expected unknown job type error")
	}
}
