package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the Merchant Agent's environment-derived configuration.
type Config struct {
	Port        string
	Environment string

	DID        string
	KeysDir    string
	Passphrase string

	MerchantDID string
	MerchantURL string

	PaymentProcessorDID string
	PaymentProcessorURL string

	ShoppingAgentDID string
	ShoppingAgentURL string

	ProviderRegistryURL string
	TrustBrokerURL      string

	// MongoDB for the audit trail; empty URI keeps it in memory.
	MongoURI string
	MongoDB  string

	// Cart building knobs.
	TaxRate     float64
	ShippingFee float64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func Load() Config {
	return Config{
		Port:        getenv("PORT", "8110"),
		Environment: getenv("ENVIRONMENT", "development"),

		DID:        getenv("MERCHANT_AGENT_DID", "did:ap2:agent:aex-bid-gateway"),
		KeysDir:    getenv("KEYS_DIR", "./keys"),
		Passphrase: getenv("AP2_BID_GATEWAY_PASSPHRASE", "dev-insecure-passphrase-change-me"),

		MerchantDID: getenv("MERCHANT_DID", "did:ap2:merchant:aex-merchant"),
		MerchantURL: getenv("MERCHANT_URL", "http://localhost:8120"),

		PaymentProcessorDID: getenv("PAYMENT_PROCESSOR_DID", "did:ap2:processor:aex-settlement"),
		PaymentProcessorURL: getenv("PAYMENT_PROCESSOR_URL", "http://localhost:8140"),

		ShoppingAgentDID: getenv("SHOPPING_AGENT_DID", "did:ap2:shopper:aex-work-publisher"),
		ShoppingAgentURL: getenv("SHOPPING_AGENT_URL", "http://localhost:8100"),

		ProviderRegistryURL: getenv("PROVIDER_REGISTRY_URL", "http://localhost:8150"),
		TrustBrokerURL:      getenv("TRUST_BROKER_URL", ""),

		MongoURI: strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDB:  getenv("MONGO_DB", "aex"),

		TaxRate:     0.10,
		ShippingFee: 5.00,

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// PeerURL resolves a peer DID to its base URL, falling back to the trust
// broker's registry for DIDs outside the static federation map.
func (c Config) PeerURL(did string) (string, error) {
	switch did {
	case c.MerchantDID:
		return c.MerchantURL, nil
	case c.PaymentProcessorDID:
		return c.PaymentProcessorURL, nil
	case c.ShoppingAgentDID:
		return c.ShoppingAgentURL, nil
	}
	if c.TrustBrokerURL != "" {
		return c.TrustBrokerURL + "/dids/" + did + "/did.json", nil
	}
	return "", fmt.Errorf("no URL known for peer %s", did)
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
