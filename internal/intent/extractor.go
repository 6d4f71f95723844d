package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-concierge/internal/observability/metrics"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

var (
	// ErrOracleTimeout means no attempt produced an answer within its deadline.
	ErrOracleTimeout = errors.New("intent: oracle timed out")
	// ErrOracleFailed means the oracle call returned an error other than a timeout.
	ErrOracleFailed = errors.New("intent: oracle call failed")
	// ErrOracleUnparsable means every answer failed to decode as the output schema.
	ErrOracleUnparsable = errors.New("intent: oracle output unparsable")
)

const (
	defaultAttemptTimeout = 4 * time.Second
	defaultMaxTokens      = 256
)

var languageTagRE = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,4})?$`)

const systemPrompt = `You extract appointment booking details from one chat message sent to a salon.
Reply with a single JSON object and nothing else. Use exactly these keys and omit any key you are not sure about:
  "service_name": one of known_service_names, copied exactly
  "date": calendar date as YYYY-MM-DD, resolved against "today" in the salon time zone
  "day_of_week": lower-case English weekday name, only when the customer names a weekday without a date
  "time": 24-hour HH:MM when the customer asks for a specific time
  "is_flexible": true when the customer says any time works
  "language": BCP-47 language code of the message
Never invent values. The prior_intent field shows what the customer already told us; only report what this message adds or changes.`

// Context carries what the extractor needs besides the message text.
type Context struct {
	Catalog *schedule.Catalog
	Prior   BookingIntent
	Now     time.Time
}

type extractionInput struct {
	Text          string         `json:"text"`
	KnownServices []string       `json:"known_service_names"`
	Prior         *BookingIntent `json:"prior_intent,omitempty"`
	Today         string         `json:"today"`
	Weekday       string         `json:"weekday"`
	Timezone      string         `json:"timezone"`
}

// Extractor turns free text into a validated BookingIntent using an LLM.
type Extractor struct {
	client  LLMClient
	model   string
	timeout time.Duration
	retries int
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	tracer  trace.Tracer
}

type ExtractorOption func(*Extractor)

func WithModel(model string) ExtractorOption {
	return func(e *Extractor) { e.model = strings.TrimSpace(model) }
}

// WithAttemptTimeout bounds each oracle call.
func WithAttemptTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetries sets how many extra attempts follow a timed-out or unparsable answer.
func WithRetries(n int) ExtractorOption {
	return func(e *Extractor) {
		if n >= 0 {
			e.retries = n
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) ExtractorOption {
	return func(e *Extractor) { e.metrics = m }
}

func NewExtractor(client LLMClient, logger *logging.Logger, opts ...ExtractorOption) *Extractor {
	if client == nil {
		panic("intent: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Extractor{
		client:  client,
		timeout: defaultAttemptTimeout,
		retries: 1,
		logger:  logger,
		tracer:  otel.Tracer("salon.internal.intent"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the oracle what text says, validates each field on its own
// and merges the result into c.Prior.
func (e *Extractor) Extract(ctx context.Context, text string, c Context) (BookingIntent, error) {
	ctx, span := e.tracer.Start(ctx, "intent.extract")
	defer span.End()

	if c.Catalog == nil {
		return c.Prior, errors.New("intent: catalog required")
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	req, err := e.buildRequest(text, c)
	if err != nil {
		return c.Prior, err
	}

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		span.SetAttributes(attribute.Int("intent.attempt", attempt+1))
		update, err := e.attempt(ctx, req, c)
		if err == nil {
			return Merge(c.Prior, update), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		e.logger.Warn("intent extraction attempt failed", "attempt", attempt+1, "error", err)
	}
	span.RecordError(lastErr)
	return c.Prior, lastErr
}

func (e *Extractor) attempt(ctx context.Context, req LLMRequest, c Context) (BookingIntent, error) {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	resp, err := e.client.Complete(actx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.metrics.ObserveExtraction("timeout", time.Since(started))
			return BookingIntent{}, fmt.Errorf("%w: %v", ErrOracleTimeout, err)
		}
		e.metrics.ObserveExtraction("error", time.Since(started))
		return BookingIntent{}, fmt.Errorf("%w: %v", ErrOracleFailed, err)
	}
	update, err := parseOutput(resp.Text, c)
	if err != nil {
		e.metrics.ObserveExtraction("unparsable", time.Since(started))
		return BookingIntent{}, err
	}
	e.metrics.ObserveExtraction("ok", time.Since(started))
	return update, nil
}

func (e *Extractor) buildRequest(text string, c Context) (LLMRequest, error) {
	loc := c.Catalog.Location()
	now := c.Now.In(loc)
	in := extractionInput{
		Text:          strings.TrimSpace(text),
		KnownServices: c.Catalog.ServiceNames(),
		Today:         schedule.DateOf(now).String(),
		Weekday:       strings.ToLower(now.Weekday().String()),
		Timezone:      loc.String(),
	}
	if c.Prior != (BookingIntent{}) {
		prior := c.Prior
		in.Prior = &prior
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return LLMRequest{}, fmt.Errorf("intent: encode request: %w", err)
	}
	return LLMRequest{
		Model:       e.model,
		System:      []string{systemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: string(payload)}},
		MaxTokens:   defaultMaxTokens,
		Temperature: 0,
		JSONOutput:  true,
	}, nil
}

// parseOutput decodes the oracle's JSON object. Unknown or invalid fields are
// dropped one by one; only a missing or non-object body is unparsable.
func parseOutput(text string, c Context) (BookingIntent, error) {
	body := jsonObject(text)
	if body == "" {
		return BookingIntent{}, fmt.Errorf("%w: no JSON object in response", ErrOracleUnparsable)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return BookingIntent{}, fmt.Errorf("%w: %v", ErrOracleUnparsable, err)
	}

	loc := c.Catalog.Location()
	today := schedule.DateOf(c.Now.In(loc))
	var out BookingIntent

	if name, ok := stringField(fields, "service_name"); ok {
		if svc, found := c.Catalog.ResolveService(name); found {
			out.ServiceID = svc.ID
			out.ServiceName = svc.Name
		}
	}
	if raw, ok := stringField(fields, "date"); ok {
		if d, err := schedule.ParseDate(raw); err == nil && !d.Before(today) {
			out.Date = &d
		}
	}
	if out.Date == nil {
		if raw, ok := stringField(fields, "day_of_week"); ok {
			if wd, found := parseWeekday(raw); found {
				d := nextWeekday(today, wd)
				out.Date = &d
			}
		}
	}
	if raw, ok := stringField(fields, "time"); ok {
		if t, err := schedule.ParseTimeOfDay(raw); err == nil && t.Valid() {
			out.Time = &t
		}
	}
	if raw, ok := fields["is_flexible"]; ok && out.Time == nil {
		var flexible bool
		if err := json.Unmarshal(raw, &flexible); err == nil {
			out.IsFlexible = flexible
		}
	}
	if lang, ok := stringField(fields, "language"); ok && languageTagRE.MatchString(lang) {
		out.Language = lang
	}
	return out, nil
}

func jsonObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	return wd, ok
}

// nextWeekday returns the first date on or after from that falls on wd.
func nextWeekday(from schedule.Date, wd time.Weekday) schedule.Date {
	delta := (int(wd) - int(from.Weekday()) + 7) % 7
	return from.AddDays(delta)
}
