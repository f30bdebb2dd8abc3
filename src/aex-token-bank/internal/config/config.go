package config

import (
	"os"
	"time"
)

// Config holds the Payment Network's configuration.
type Config struct {
	Port        string
	DID         string
	NetworkName string
	KeysDir     string
	Passphrase  string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8135"),
		DID:          getEnv("PAYMENT_NETWORK_DID", "did:ap2:network:aex-token-bank"),
		NetworkName:  getEnv("NETWORK_NAME", "aex-network"),
		KeysDir:      getEnv("KEYS_DIR", "./keys"),
		Passphrase:   getEnv("AP2_PAYMENT_NETWORK_PASSPHRASE", "dev-insecure-passphrase-change-me"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
