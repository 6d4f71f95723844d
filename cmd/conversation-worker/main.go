package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/wolfman30/salon-concierge/cmd/mainconfig"
	"github.com/wolfman30/salon-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-concierge/internal/config"
	"github.com/wolfman30/salon-concierge/internal/conversation"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if strings.TrimSpace(cfg.InboundQueueURL) == "" {
		logger.Error("INBOUND_QUEUE_URL is required for the conversation worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	llm, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, &awsConfig, logger)
	if err != nil {
		logger.Error("failed to build intent extractor", "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	stack, err := bootstrap.BuildConversationStack(ctx, cfg, bootstrap.Deps{Logger: logger, LLM: llm})
	if err != nil {
		logger.Error("failed to build conversation stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.InboundQueueURL)
	worker := conversation.NewWorker(
		stack.Gateway,
		queue,
		conversation.NewLogSender(logger),
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithReceiveWaitSeconds(20),
		conversation.WithReceiveBatchSize(10),
	)
	worker.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount, "queue", cfg.InboundQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
