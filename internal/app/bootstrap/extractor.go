package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/salon-concierge/internal/config"
	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// BuildLLMClient returns the extraction oracle selected by LLM_PROVIDER,
// wrapped with LLM_FALLBACK_PROVIDER when that names a different provider.
// awsCfg may be nil, in which case the default AWS chain is used for
// Bedrock. The returned cleanup closes any SDK clients.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (intent.LLMClient, func(), error) {
	if cfg == nil {
		return nil, func() {}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	build := func(provider string) (intent.LLMClient, error) {
		switch provider {
		case "", "rules":
			return intent.NewRuleBasedClient(), nil
		case "bedrock":
			if cfg.BedrockModelID == "" {
				return nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
			}
			ac := awsCfg
			if ac == nil {
				loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
				if err != nil {
					return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
				}
				ac = &loaded
			}
			return intent.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*ac), cfg.BedrockModelID), nil
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				return nil, fmt.Errorf("bootstrap: GEMINI_API_KEY is required for the gemini provider")
			}
			client, err := intent.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				return nil, err
			}
			closers = append(closers, func() { _ = client.Close() })
			return client, nil
		default:
			return nil, fmt.Errorf("bootstrap: unknown LLM provider %q", provider)
		}
	}

	primary, err := build(cfg.LLMProvider)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	if cfg.LLMFallbackProvider == "" || cfg.LLMFallbackProvider == cfg.LLMProvider {
		logger.Info("intent extractor configured", "provider", cfg.LLMProvider)
		return primary, cleanup, nil
	}
	fallback, err := build(cfg.LLMFallbackProvider)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("bootstrap: fallback provider: %w", err)
	}
	logger.Info("intent extractor configured", "provider", cfg.LLMProvider, "fallback", cfg.LLMFallbackProvider)
	return intent.NewFallbackLLMClient(primary, fallback, logger), cleanup, nil
}
