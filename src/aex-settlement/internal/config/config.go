package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the Payment Processor's environment-derived configuration.
type Config struct {
	Port        string
	Environment string

	DID        string
	KeysDir    string
	Passphrase string

	StoreType string // "memory" or "mongo"
	MongoURI  string
	MongoDB   string

	CredentialsProviderURL string
	ContractEngineURL      string
	TrustBrokerURL         string
	ReceiptBaseURL         string

	// PeerURLs maps a peer DID to the base URL serving its
	// /.well-known/did.json and /a2a/message endpoints.
	PeerURLs map[string]string

	// RiskDeclineThreshold rejects mandates whose advisory risk score is at
	// or above this value. Zero disables the check; the chain validator
	// never relies on the score for correctness either way.
	RiskDeclineThreshold int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8140"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DID:        getEnv("PAYMENT_PROCESSOR_DID", "did:ap2:processor:aex-settlement"),
		KeysDir:    getEnv("KEYS_DIR", "./keys"),
		Passphrase: getEnv("AP2_SETTLEMENT_PASSPHRASE", "dev-insecure-passphrase-change-me"),

		StoreType: getEnv("STORE_TYPE", "memory"),
		MongoURI:  getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:   getEnv("MONGO_DB", "aex"),

		CredentialsProviderURL: getEnv("CREDENTIALS_PROVIDER_URL", "http://localhost:8130"),
		ContractEngineURL:      getEnv("CONTRACT_ENGINE_URL", ""),
		TrustBrokerURL:         getEnv("TRUST_BROKER_URL", ""),
		ReceiptBaseURL:         getEnv("RECEIPT_BASE_URL", "http://localhost:8140"),

		PeerURLs: map[string]string{
			getEnv("MERCHANT_DID", "did:ap2:merchant:aex-merchant"):            getEnv("MERCHANT_URL", "http://localhost:8120"),
			getEnv("MERCHANT_AGENT_DID", "did:ap2:agent:aex-bid-gateway"):      getEnv("MERCHANT_AGENT_URL", "http://localhost:8110"),
			getEnv("SHOPPING_AGENT_DID", "did:ap2:shopper:aex-work-publisher"): getEnv("SHOPPING_AGENT_URL", "http://localhost:8100"),
		},
	}

	if v := os.Getenv("RISK_DECLINE_THRESHOLD"); v != "" {
		threshold, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RISK_DECLINE_THRESHOLD %q: %w", v, err)
		}
		cfg.RiskDeclineThreshold = threshold
	}

	return cfg, nil
}

// PeerURL resolves a peer DID to its base URL, falling back to the trust
// broker's registry when the DID is not in the static map.
func (c *Config) PeerURL(did string) (string, error) {
	if url, ok := c.PeerURLs[did]; ok {
		return url, nil
	}
	if c.TrustBrokerURL != "" {
		return c.TrustBrokerURL + "/dids/" + did + "/did.json", nil
	}
	return "", fmt.Errorf("no URL known for peer %s", did)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
