package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/salon-concierge/cmd/mainconfig"
	"github.com/wolfman30/salon-concierge/internal/api/router"
	"github.com/wolfman30/salon-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-concierge/internal/config"
	"github.com/wolfman30/salon-concierge/internal/conversation"
	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/salon-concierge/internal/http/middleware"
	"github.com/wolfman30/salon-concierge/pkg/clock"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salon-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, metricsHandler := setupMetrics()

	llm, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build intent extractor", "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	stack, err := bootstrap.BuildConversationStack(ctx, cfg, bootstrap.Deps{
		Logger:     logger,
		Registerer: registry,
		LLM:        llm,
	})
	if err != nil {
		logger.Error("failed to build conversation stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	queue, err := setupQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up inbound queue", "error", err)
		os.Exit(1)
	}
	var enqueuer handlers.EventEnqueuer
	if queue != nil {
		enqueuer = conversation.NewPublisher(queue, logger)
	}
	inlineWorker := setupInlineWorker(ctx, cfg, queue, stack.Gateway, logger)

	janitor := events.NewJanitor(stack.Ledger, cfg.DedupRetention, cfg.TransportRedeliveryWindow, cfg.DedupPurgeInterval, logger).
		WithMetrics(stack.Metrics)
	go janitor.Start(ctx)

	if stack.Outbox != nil {
		deliverer := events.NewDeliverer(stack.Outbox, events.NewLogDeliveryHandler(logger), logger)
		go deliverer.Start(ctx)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		InboundHandler:     handlers.NewInboundHandler(stack.Gateway, enqueuer, logger),
		AdminConversations: handlers.NewAdminConversationsHandler(stack.Turns, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		InboundLimiter:     httpmiddleware.NewRateLimiter(cfg.InboundRateLimit, cfg.InboundRateBurst, clock.New()),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if inlineWorker != nil {
		inlineWorker.Wait()
	}
	logger.Info("server stopped")
}

// setupMetrics registers runtime collectors and returns the registry the
// conversation metrics are added to, plus its /metrics handler.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// setupQueue picks the async intake queue: in-process when USE_MEMORY_QUEUE
// is set, SQS when INBOUND_QUEUE_URL is, otherwise none.
func setupQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Queue, error) {
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory inbound queue")
		return conversation.NewMemoryQueue(0), nil
	}
	if strings.TrimSpace(cfg.InboundQueueURL) == "" {
		logger.Warn("no inbound queue configured; async intake disabled")
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL), nil
}

// setupInlineWorker consumes the in-memory queue inside the API process, since
// no other process can reach it.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, queue conversation.Queue, processor conversation.EventProcessor, logger *logging.Logger) *conversation.Worker {
	mem, ok := queue.(*conversation.MemoryQueue)
	if !ok || mem == nil {
		return nil
	}
	worker := conversation.NewWorker(processor, mem, conversation.NewLogSender(logger), logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)
	logger.Info("inline conversation worker started", "workers", cfg.WorkerCount)
	return worker
}
