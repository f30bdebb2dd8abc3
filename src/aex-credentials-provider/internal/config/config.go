package config

import (
	"os"
	"strings"
	"time"
)

// Config holds the Credential Provider's configuration.
type Config struct {
	Port     string
	DID      string
	KeysDir  string
	Passphrase string

	MongoURI string
	MongoDB  string

	// PaymentNetworkURL is the Payment Network this provider requests
	// agent_tokens from during /verify/attestation.
	PaymentNetworkURL string

	RPID           string
	AllowedOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8130"),
		DID:                getEnv("CREDENTIALS_PROVIDER_DID", "did:ap2:cp:aex-credentials-provider"),
		KeysDir:            getEnv("KEYS_DIR", "./keys"),
		Passphrase:         getEnv("AP2_CREDENTIALS_PROVIDER_PASSPHRASE", "dev-insecure-passphrase-change-me"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDB:            getEnv("MONGO_DB", "aex"),
		PaymentNetworkURL:  getEnv("PAYMENT_NETWORK_URL", "http://localhost:8135"),
		RPID:               getEnv("WEBAUTHN_RP_ID", "aex.example"),
		AllowedOrigins:     splitCSV(getEnv("WEBAUTHN_ALLOWED_ORIGINS", "https://aex.example")),
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
