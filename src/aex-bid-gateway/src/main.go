package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/clients"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/config"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/httpapi"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/service"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/envelope"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Environment == "development" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	identity, err := agentidentity.Bootstrap(agentidentity.Config{
		AgentID:    "bid-gateway",
		DID:        cfg.DID,
		KeysDir:    cfg.KeysDir,
		Passphrase: cfg.Passphrase,
		Algorithm:  ap2.AlgES256,
	})
	if err != nil {
		log.Fatalf("bootstrap merchant agent identity: %v", err)
	}

	var auditStore store.AuditStore
	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal(err)
		}
		mongoClient = c
		ms := store.NewMongoStore(c, cfg.MongoDB)
		if err := ms.EnsureIndexes(ctx); err != nil {
			log.Printf("mongo index creation failed: %v", err)
		}
		auditStore = ms
		slog.Info("mongo enabled", "uri", cfg.MongoURI, "db", cfg.MongoDB)
	} else {
		auditStore = store.NewMemoryStore()
		slog.Info("mongo disabled, using in-memory audit trail (set MONGO_URI to enable)")
	}

	resolver := didresolver.NewResolver()

	a2a := envelope.NewHandler(envelope.Config{
		SelfDID:    cfg.DID,
		KeyPair:    identity.KeyPair,
		KeyID:      identity.KeyID,
		HTTPClient: httpclient.NewClient("aex-bid-gateway", 30*time.Second),
		Resolver:   resolver,
		Nonces:     ttlstore.NewMemoryNonceLedger(),
		PeerURL:    cfg.PeerURL,
	})

	svc := service.New(service.Config{
		SelfDID:      cfg.DID,
		Products:     clients.NewSKURegistryClient(cfg.ProviderRegistryURL),
		Signer:       clients.NewMerchantClient(cfg.MerchantURL),
		Relay:        a2a,
		Resolver:     resolver,
		PeerURL:      cfg.PeerURL,
		Audit:        auditStore,
		ProcessorDID: cfg.PaymentProcessorDID,
		ProcessorURL: cfg.PaymentProcessorURL,
		TaxRate:      cfg.TaxRate,
		ShippingFee:  cfg.ShippingFee,
	})

	handler := httpapi.NewRouter(svc, auditStore, a2a, identity)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("listening", "port", cfg.Port, "did", cfg.DID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
}
