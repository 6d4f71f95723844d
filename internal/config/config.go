package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	UseMemoryQueue  bool
	UseMemoryStores bool
	SeedCatalogPath string
	WorkerCount     int
	DatabaseURL     string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	InboundQueueURL     string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Intent extraction
	LLMProvider         string
	LLMFallbackProvider string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string
	ExtractorTimeout    time.Duration
	ExtractorRetries    int

	// Conversation lifecycle
	ConversationStateTTL      time.Duration
	DedupRetention            time.Duration
	DedupClaimLease           time.Duration
	DedupPurgeInterval        time.Duration
	TransportRedeliveryWindow time.Duration

	// Slot search and commit
	MaxSlotOffers   int
	SearchWidenDays int
	MinLeadTime     time.Duration
	CommitTimeout   time.Duration

	// HTTP surface
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	InboundRateLimit   float64
	InboundRateBurst   int
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", false),
		UseMemoryStores: getEnvAsBool("USE_MEMORY_STORES", false),
		SeedCatalogPath: getEnv("SEED_CATALOG_PATH", ""),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:     getEnv("DATABASE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		InboundQueueURL:     getEnv("INBOUND_QUEUE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "rules"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", "rules"))),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		ExtractorTimeout:    getEnvAsDuration("EXTRACTOR_TIMEOUT", 4*time.Second),
		ExtractorRetries:    getEnvAsInt("EXTRACTOR_RETRIES", 1),

		ConversationStateTTL:      getEnvAsDuration("CONVERSATION_STATE_TTL", 10*time.Minute),
		DedupRetention:            getEnvAsDuration("DEDUP_RETENTION", 24*time.Hour),
		DedupClaimLease:           getEnvAsDuration("DEDUP_CLAIM_LEASE", 2*time.Minute),
		DedupPurgeInterval:        getEnvAsDuration("DEDUP_PURGE_INTERVAL", time.Hour),
		TransportRedeliveryWindow: getEnvAsDuration("TRANSPORT_REDELIVERY_WINDOW", 24*time.Hour),

		MaxSlotOffers:   getEnvAsInt("MAX_SLOT_OFFERS", 3),
		SearchWidenDays: getEnvAsInt("SEARCH_WIDEN_DAYS", 3),
		MinLeadTime:     getEnvAsDuration("MIN_LEAD_TIME", 30*time.Minute),
		CommitTimeout:   getEnvAsDuration("COMMIT_TIMEOUT", 5*time.Second),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		InboundRateLimit:   getEnvAsFloat("INBOUND_RATE_LIMIT", 20),
		InboundRateBurst:   getEnvAsInt("INBOUND_RATE_BURST", 40),
	}
	cfg.normalize()
	return cfg
}

// normalize clamps values that would break conversation guarantees.
func (c *Config) normalize() {
	// A ledger entry that expires before the transport stops redelivering
	// would let a late duplicate through.
	if c.DedupRetention < c.TransportRedeliveryWindow {
		c.DedupRetention = c.TransportRedeliveryWindow
	}
	if c.MaxSlotOffers <= 0 || c.MaxSlotOffers > 3 {
		c.MaxSlotOffers = 3
	}
	if c.ExtractorRetries < 0 {
		c.ExtractorRetries = 0
	}
	if c.SearchWidenDays < 0 {
		c.SearchWidenDays = 0
	}
	if c.ConversationStateTTL <= 0 {
		c.ConversationStateTTL = 10 * time.Minute
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
