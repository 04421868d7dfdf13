// Package config provides environment configuration for the platform.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Database settings
	DatabaseURL string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	DefaultLLM        string
	NormalizerModel   string
	ConversationModel string
	EmbeddingModel    string
	LLMTimeout        time.Duration

	// Ingestion settings
	PollInterval       time.Duration
	SourceFetchTimeout time.Duration

	// Conversation settings
	ConversationConcurrency int
	AutoStartConversations  bool
	DefaultLocale           string
	DefaultCountryCode      string

	// Messaging settings
	ChannelSendTimeout time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	Environment string
	LogLevel    string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/opsplatform?sslmode=disable"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:        getEnv("DEFAULT_LLM", "openai"),
		NormalizerModel:   getEnv("NORMALIZER_MODEL", ""),
		ConversationModel: getEnv("CONVERSATION_MODEL", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMTimeout:        getDurationEnv("LLM_TIMEOUT", 30*time.Second),

		// Ingestion
		PollInterval:       getDurationEnv("POLL_INTERVAL", time.Minute),
		SourceFetchTimeout: getDurationEnv("SOURCE_FETCH_TIMEOUT", 20*time.Second),

		// Conversations
		ConversationConcurrency: getIntEnv("CONVERSATION_CONCURRENCY", 8),
		AutoStartConversations:  getBoolEnv("AUTO_START_CONVERSATIONS", true),
		DefaultLocale:           getEnv("DEFAULT_LOCALE", "en"),
		DefaultCountryCode:      getEnv("DEFAULT_COUNTRY_CODE", "+212"),

		// Messaging
		ChannelSendTimeout: getDurationEnv("CHANNEL_SEND_TIMEOUT", 15*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		Environment: getEnv("ENVIRONMENT", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
