package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/salon-concierge/internal/audit"
	"github.com/wolfman30/salon-concierge/internal/bookings"
	appconfig "github.com/wolfman30/salon-concierge/internal/config"
	"github.com/wolfman30/salon-concierge/internal/conversation"
	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/internal/observability/metrics"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/internal/slots"
	"github.com/wolfman30/salon-concierge/pkg/clock"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// DedupLedger is the ledger surface the gateway and janitor need.
type DedupLedger interface {
	conversation.Ledger
	events.Purger
}

// TurnStore records and lists audit turns.
type TurnStore interface {
	conversation.TurnRecorder
	Recent(ctx context.Context, salonID, customerHandle string, limit int) ([]audit.Turn, error)
}

// Deps are the collaborators built outside the conversation stack.
type Deps struct {
	Logger     *logging.Logger
	Registerer prometheus.Registerer
	LLM        intent.LLMClient
	Clock      clock.Clock
}

// ConversationStack is everything a binary needs to run turns.
type ConversationStack struct {
	Catalog  schedule.CatalogReader
	States   conversation.StateStore
	Bookings *bookings.Service
	Router   *conversation.Router
	Gateway  *conversation.Gateway
	Ledger   DedupLedger
	Turns    TurnStore
	Outbox   *events.OutboxStore
	Metrics  *metrics.BookingMetrics

	closers []func()
}

// Close releases database and cache connections.
func (s *ConversationStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// BuildConversationStack wires the gateway, router and its collaborators from
// config. USE_MEMORY_STORES keeps everything in process; otherwise Postgres
// and Redis are required.
func BuildConversationStack(ctx context.Context, cfg *appconfig.Config, deps Deps) (*ConversationStack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	llm := deps.LLM
	if llm == nil {
		llm = intent.NewRuleBasedClient()
	}

	stack := &ConversationStack{Metrics: metrics.NewBookingMetrics(deps.Registerer)}
	var repo bookings.Store

	if cfg.UseMemoryStores {
		catalogs, err := buildMemoryCatalog(cfg.SeedCatalogPath)
		if err != nil {
			return nil, err
		}
		memRepo := bookings.NewMemoryRepository(clk)
		for _, c := range catalogs.Catalogs() {
			ids := make([]string, 0, len(c.Staff))
			for _, st := range c.Staff {
				ids = append(ids, st.ID)
			}
			memRepo.RegisterStaff(c.Salon.ID, ids...)
		}
		stack.Catalog = catalogs
		stack.States = conversation.NewMemoryStateStore(clk)
		stack.Ledger = events.NewMemoryLedger(clk, cfg.DedupClaimLease)
		stack.Turns = audit.NewMemoryRecorder()
		repo = memRepo
		logger.Info("using in-memory stores", "salons", len(catalogs.Catalogs()))
	} else {
		pool, sqlDB, err := BuildPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, pool.Close, func() { _ = sqlDB.Close() })

		redisClient := BuildRedisClient(ctx, cfg, logger, true)
		if redisClient == nil {
			stack.Close()
			return nil, fmt.Errorf("bootstrap: redis is required for conversation state (REDIS_ADDR=%q)", cfg.RedisAddr)
		}
		stack.closers = append(stack.closers, func() { _ = redisClient.Close() })

		stack.Catalog = schedule.NewPostgresStore(pool)
		stack.States = conversation.NewRedisStateStore(redisClient, otel.Tracer("salon.internal.conversation.state"), clk).WithLogger(logger)
		stack.Ledger = events.NewPostgresLedger(pool, cfg.DedupClaimLease)
		stack.Turns = audit.NewRecorder(sqlDB)
		stack.Outbox = events.NewOutboxStore(pool)
		repo = bookings.NewRepository(pool, logger)
		logger.Info("using postgres and redis stores", "redis", cfg.RedisAddr)
	}

	stack.Bookings = bookings.NewService(repo, logger,
		bookings.WithMetrics(stack.Metrics),
		bookings.WithCommitTimeout(cfg.CommitTimeout),
	)
	finder := slots.NewFinder(stack.Catalog, stack.Bookings, logger,
		slots.WithClock(clk),
		slots.WithMinLeadTime(cfg.MinLeadTime),
	)
	extractor := intent.NewExtractor(llm, logger,
		intent.WithModel(extractorModel(cfg)),
		intent.WithAttemptTimeout(cfg.ExtractorTimeout),
		intent.WithRetries(cfg.ExtractorRetries),
		intent.WithMetrics(stack.Metrics),
	)
	stack.Router = conversation.NewRouter(stack.Catalog, stack.States, extractor, finder, stack.Bookings, logger,
		conversation.WithStateTTL(cfg.ConversationStateTTL),
		conversation.WithWidenDays(cfg.SearchWidenDays),
		conversation.WithMaxOffers(cfg.MaxSlotOffers),
		conversation.WithRouterClock(clk),
		conversation.WithRouterMetrics(stack.Metrics),
		conversation.WithTurnRecorder(stack.Turns),
	)
	stack.Gateway = conversation.NewGateway(stack.Ledger, stack.Router, logger, stack.Metrics)
	return stack, nil
}

func buildMemoryCatalog(path string) (*schedule.MemoryStore, error) {
	if strings.TrimSpace(path) == "" {
		return schedule.NewMemoryStore()
	}
	return schedule.LoadMemoryStore(path)
}

func extractorModel(cfg *appconfig.Config) string {
	switch cfg.LLMProvider {
	case "bedrock":
		return cfg.BedrockModelID
	case "gemini":
		return cfg.GeminiModelID
	}
	return ""
}
