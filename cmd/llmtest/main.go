// Command llmtest runs the configured intent extractor against messages given
// on the command line and prints what it understood, one turn at a time, so a
// provider can be checked without the rest of the stack.
//
//	llmtest -catalog testdata/salons.json -salon studio-one "haircut monday" "3pm"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/salon-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-concierge/internal/config"
	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	catalogPath := flag.String("catalog", "testdata/salons.json", "seed catalog JSON")
	salonID := flag.String("salon", "studio-one", "salon id in the catalog")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: llmtest [-catalog path] [-salon id] message...")
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := schedule.LoadMemoryStore(*catalogPath)
	if err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	cat, err := store.Catalog(ctx, *salonID)
	if err != nil {
		logger.Error("unknown salon", "salon_id", *salonID, "error", err)
		os.Exit(1)
	}

	llm, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build intent extractor", "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	extractor := intent.NewExtractor(llm, logger,
		intent.WithAttemptTimeout(cfg.ExtractorTimeout),
		intent.WithRetries(cfg.ExtractorRetries),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	var prior intent.BookingIntent
	for i, msg := range flag.Args() {
		start := time.Now()
		got, err := extractor.Extract(ctx, msg, intent.Context{Catalog: cat, Prior: prior, Now: time.Now()})
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			fmt.Printf("[%d] %q failed after %s: %v\n", i+1, msg, elapsed, err)
			continue
		}
		fmt.Printf("[%d] %q (%s, provider=%s) missing=%v\n", i+1, msg, elapsed, cfg.LLMProvider, got.Missing())
		_ = enc.Encode(got)
		prior = got
	}
}
