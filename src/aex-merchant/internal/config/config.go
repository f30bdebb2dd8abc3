package config

import (
	"os"
	"strings"
	"time"
)

// Config holds the Merchant service's environment-derived configuration.
type Config struct {
	Port string

	DID               string
	PaymentProcessorDID string
	KeysDir           string
	Passphrase        string

	MongoURI string
	MongoDB  string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func Load() Config {
	return Config{
		Port:                 getenv("PORT", "8120"),
		DID:                  getenv("MERCHANT_DID", "did:ap2:merchant:aex-merchant"),
		PaymentProcessorDID:  getenv("PAYMENT_PROCESSOR_DID", "did:ap2:processor:aex-settlement"),
		KeysDir:              getenv("KEYS_DIR", "./keys"),
		Passphrase:           getenv("AP2_MERCHANT_PASSPHRASE", "dev-insecure-passphrase-change-me"),
		MongoURI:             strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDB:              getenv("MONGO_DB", "aex"),
		ReadTimeout:          10 * time.Second,
		WriteTimeout:         20 * time.Second,
		IdleTimeout:          60 * time.Second,
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
