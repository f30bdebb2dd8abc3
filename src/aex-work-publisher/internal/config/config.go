package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the Shopping Agent's environment-derived configuration.
type Config struct {
	Port        string
	Environment string

	DID        string
	KeysDir    string
	Passphrase string

	MerchantAgentDID string
	MerchantAgentURL string

	MerchantDID string
	MerchantURL string

	PaymentProcessorDID string
	PaymentProcessorURL string

	CredentialsProviderDID string
	CredentialsProviderURL string
	RiskEngineURL          string
	TrustBrokerURL         string

	AccountCountry  string
	StepUpReturnURL string

	// StoreType selects memory, mongo, or firestore persistence.
	StoreType           string
	MongoURI            string
	MongoDB             string
	MongoCollection     string
	FirestoreProjectID  string
	FirestoreCollection string

	RedisAddr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func Load() Config {
	return Config{
		Port:        getenv("PORT", "8100"),
		Environment: getenv("ENVIRONMENT", "development"),

		DID:        getenv("SHOPPING_AGENT_DID", "did:ap2:shopper:aex-work-publisher"),
		KeysDir:    getenv("KEYS_DIR", "./keys"),
		Passphrase: getenv("AP2_WORK_PUBLISHER_PASSPHRASE", "dev-insecure-passphrase-change-me"),

		MerchantAgentDID: getenv("MERCHANT_AGENT_DID", "did:ap2:agent:aex-bid-gateway"),
		MerchantAgentURL: getenv("MERCHANT_AGENT_URL", "http://localhost:8110"),

		MerchantDID: getenv("MERCHANT_DID", "did:ap2:merchant:aex-merchant"),
		MerchantURL: getenv("MERCHANT_URL", "http://localhost:8120"),

		PaymentProcessorDID: getenv("PAYMENT_PROCESSOR_DID", "did:ap2:processor:aex-settlement"),
		PaymentProcessorURL: getenv("PAYMENT_PROCESSOR_URL", "http://localhost:8140"),

		CredentialsProviderDID: getenv("CREDENTIALS_PROVIDER_DID", "did:ap2:cp:aex-credentials-provider"),
		CredentialsProviderURL: getenv("CREDENTIALS_PROVIDER_URL", "http://localhost:8130"),
		RiskEngineURL:          getenv("RISK_ENGINE_URL", "http://localhost:8160"),
		TrustBrokerURL:         getenv("TRUST_BROKER_URL", ""),

		AccountCountry:  getenv("ACCOUNT_COUNTRY", "US"),
		StepUpReturnURL: getenv("STEP_UP_RETURN_URL", "http://localhost:8100/purchases"),

		StoreType:           getenv("STORE_TYPE", "memory"),
		MongoURI:            strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDB:             getenv("MONGO_DB", "aex"),
		MongoCollection:     getenv("MONGO_COLLECTION_PURCHASES", "purchases"),
		FirestoreProjectID:  strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
		FirestoreCollection: getenv("FIRESTORE_COLLECTION", "purchases"),

		RedisAddr: strings.TrimSpace(os.Getenv("REDIS_ADDR")),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// PeerURL resolves a peer DID to its base URL, falling back to the trust
// broker's registry.
func (c Config) PeerURL(did string) (string, error) {
	switch did {
	case c.MerchantAgentDID:
		return c.MerchantAgentURL, nil
	case c.MerchantDID:
		return c.MerchantURL, nil
	case c.PaymentProcessorDID:
		return c.PaymentProcessorURL, nil
	case c.CredentialsProviderDID:
		return c.CredentialsProviderURL, nil
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
