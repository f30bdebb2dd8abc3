package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Upstream service URLs. Only the consumer-facing surfaces route
	// through the gateway; A2A mandate traffic flows service-to-service.
	ShoppingAgentURL       string
	CredentialsProviderURL string
	SettlementURL          string
	ProviderRegistryURL    string
	TrustBrokerURL         string
	IdentityURL            string

	// Rate limiting
	RateLimitPerMinute int
	RateLimitBurstSize int

	// Timeouts
	RequestTimeout time.Duration
	ProxyTimeout   time.Duration

	// CORS
	AllowedOrigins []string

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Environment:            getEnv("ENVIRONMENT", "development"),
		ShoppingAgentURL:       getEnv("SHOPPING_AGENT_URL", "http://localhost:8100"),
		CredentialsProviderURL: getEnv("CREDENTIALS_PROVIDER_URL", "http://localhost:8130"),
		SettlementURL:          getEnv("SETTLEMENT_URL", "http://localhost:8140"),
		ProviderRegistryURL:    getEnv("PROVIDER_REGISTRY_URL", "http://localhost:8150"),
		TrustBrokerURL:         getEnv("TRUST_BROKER_URL", "http://localhost:8170"),
		IdentityURL:            getEnv("IDENTITY_URL", "http://localhost:8180"),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 1000),
		RateLimitBurstSize:     getEnvInt("RATE_LIMIT_BURST_SIZE", 50),
		RequestTimeout:         time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		ProxyTimeout:           time.Duration(getEnvInt("PROXY_TIMEOUT_SECONDS", 25)) * time.Second,
		AllowedOrigins:         []string{"*"},
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
