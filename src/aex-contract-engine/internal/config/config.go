package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Settlement (cross-checked when a dispute opens)
	SettlementURL string

	// MongoDB (optional persistence)
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func Load() Config {
	return Config{
		Port:            getenv("PORT", "8190"),
		SettlementURL:   strings.TrimRight(getenv("SETTLEMENT_URL", "http://localhost:8140"), "/"),
		MongoURI:        strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase:   getenv("MONGO_DB", "aex"),
		MongoCollection: getenv("MONGO_COLLECTION_ARTIFACTS", "chain_artifacts"),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    20 * time.Second,
		IdleTimeout:     60 * time.Second,
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
