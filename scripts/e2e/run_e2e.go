// Package main runs booking scenarios against a live API started with the
// bundled seed catalog (USE_MEMORY_STORES=true SEED_CATALOG_PATH=testdata/salons.json
// LLM_PROVIDER=rules).
//
// Scenarios:
//   - happy-path: text, tap a slot, tap confirm
//   - shortcuts: reply "1" and "yes" instead of tapping
//   - duplicate: the same transport event twice returns the stored reply
//   - cancel: tap cancel on the confirm card
//   - stale-tap: a button from an old card re-shows the current one
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go [scenario-name]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-concierge/internal/conversation"
	"github.com/wolfman30/salon-concierge/internal/events"
)

const salonID = "studio-one"

var (
	apiBase string
	client  = &http.Client{Timeout: 30 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed   int
	failed   int
	customer string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

func (t *T) post(evt events.InboundEvent) (conversation.Outcome, bool) {
	if evt.TransportEventID == "" {
		evt.TransportEventID = "e2e-" + uuid.NewString()
	}
	evt.Key = events.ConversationKey{SalonID: salonID, CustomerHandle: t.customer}
	body, _ := json.Marshal(evt)
	resp, err := client.Post(apiBase+"/v1/inbound", "application/json", bytes.NewReader(body))
	if err != nil {
		t.fatalf("post: %v", err)
		return conversation.Outcome{}, false
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.fatalf("HTTP %d: %s", resp.StatusCode, string(raw))
		return conversation.Outcome{}, false
	}
	var out conversation.Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		t.fatalf("decode: %v", err)
		return conversation.Outcome{}, false
	}
	fmt.Printf("    <- %s %q (%d options)\n", out.Reply.Kind, out.Reply.Body, len(out.Reply.Options))
	return out, true
}

func (t *T) text(s string) (conversation.Outcome, bool) {
	fmt.Printf("    -> %q\n", s)
	return t.post(events.InboundEvent{Type: events.EventTypeText, Text: s})
}

func (t *T) tap(payloadID string) (conversation.Outcome, bool) {
	fmt.Printf("    -> tap %s\n", payloadID)
	return t.post(events.InboundEvent{Type: events.EventTypeInteractiveReply, PayloadID: payloadID})
}

// nextWeekday names a weekday at least two days out so lead time never
// empties the search.
func nextWeekday() string {
	d := time.Now().AddDate(0, 0, 2)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return strings.ToLower(d.Weekday().String())
}

func offer(t *T) (conversation.Outcome, bool) {
	out, ok := t.text("can I get a haircut " + nextWeekday() + " around 2pm")
	if !ok {
		return out, false
	}
	t.check("offer is interactive", out.Reply.Kind == conversation.ReplyInteractive)
	t.check("offer has 1-3 slots", len(out.Reply.Options) >= 1 && len(out.Reply.Options) <= conversation.MaxOptions)
	return out, len(out.Reply.Options) > 0
}

func happyPath(t *T) {
	o, ok := offer(t)
	if !ok {
		return
	}
	c, ok := t.tap(o.Reply.Options[0].PayloadID)
	if !ok {
		return
	}
	t.check("confirm card has confirm and cancel", len(c.Reply.Options) == 2)
	b, ok := t.tap(c.Reply.Options[0].PayloadID)
	if !ok {
		return
	}
	t.check("booked", strings.Contains(b.Reply.Body, "booked"))
}

func shortcuts(t *T) {
	if _, ok := offer(t); !ok {
		return
	}
	c, ok := t.text("1")
	if !ok {
		return
	}
	t.check("number picks a slot", c.Reply.Kind == conversation.ReplyInteractive && len(c.Reply.Options) == 2)
	b, ok := t.text("yes")
	if !ok {
		return
	}
	t.check("yes confirms", strings.Contains(b.Reply.Body, "booked"))
}

func duplicate(t *T) {
	evt := events.InboundEvent{TransportEventID: "e2e-dup-" + uuid.NewString(), Type: events.EventTypeText, Text: "haircut " + nextWeekday() + " at 3pm"}
	first, ok := t.post(evt)
	if !ok {
		return
	}
	second, ok := t.post(evt)
	if !ok {
		return
	}
	t.check("second delivery flagged duplicate", second.Duplicate)
	t.check("stored reply replayed", second.Reply.Body == first.Reply.Body && len(second.Reply.Options) == len(first.Reply.Options))
}

func cancel(t *T) {
	o, ok := offer(t)
	if !ok {
		return
	}
	c, ok := t.tap(o.Reply.Options[0].PayloadID)
	if !ok || len(c.Reply.Options) < 2 {
		return
	}
	x, ok := t.tap(c.Reply.Options[1].PayloadID)
	if !ok {
		return
	}
	t.check("cancelled is plain text", x.Reply.Kind == conversation.ReplyText)
}

func staleTap(t *T) {
	first, ok := offer(t)
	if !ok {
		return
	}
	if _, ok := offer(t); !ok {
		return
	}
	again, ok := t.tap(first.Reply.Options[0].PayloadID)
	if !ok {
		return
	}
	t.check("old button re-shows the current card", again.Reply.Kind == conversation.ReplyInteractive)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}

	scenarios := []scenario{
		{"happy-path", happyPath},
		{"shortcuts", shortcuts},
		{"duplicate", duplicate},
		{"cancel", cancel},
		{"stale-tap", staleTap},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	var passed, failed int
	for _, sc := range scenarios {
		if filter != "" && sc.Name != filter {
			continue
		}
		fmt.Printf("\n=== %s\n", sc.Name)
		t := &T{customer: "+1555" + fmt.Sprintf("%07d", time.Now().UnixNano()%10_000_000)}
		sc.Fn(t)
		passed += t.passed
		failed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
