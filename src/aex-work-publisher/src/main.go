package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/clients"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/config"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/httpapi"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/service"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/envelope"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting aex-work-publisher",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store_type", cfg.StoreType,
		"did", cfg.DID,
	)

	identity, err := agentidentity.Bootstrap(agentidentity.Config{
		AgentID:    "work-publisher",
		DID:        cfg.DID,
		KeysDir:    cfg.KeysDir,
		Passphrase: cfg.Passphrase,
		Algorithm:  ap2.AlgES256,
	})
	if err != nil {
		slog.Error("bootstrap shopping agent identity", "error", err)
		os.Exit(1)
	}

	purchaseStore, err := openStore(cfg)
	if err != nil {
		slog.Error("open purchase store", "error", err)
		os.Exit(1)
	}
	defer purchaseStore.Close()

	var challenges ttlstore.Store
	if cfg.RedisAddr != "" {
		challenges = ttlstore.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), "wp:challenge:")
		slog.Info("redis challenge store enabled", "addr", cfg.RedisAddr)
	} else {
		challenges = ttlstore.NewMemoryStore()
	}

	resolver := didresolver.NewResolver()
	sender := envelope.NewHandler(envelope.Config{
		SelfDID:    cfg.DID,
		KeyPair:    identity.KeyPair,
		KeyID:      identity.KeyID,
		HTTPClient: httpclient.NewClient("aex-work-publisher", 30*time.Second),
		Resolver:   resolver,
		Nonces:     ttlstore.NewMemoryNonceLedger(),
		PeerURL:    cfg.PeerURL,
	})

	svc := service.New(service.Config{
		Identity:         identity,
		Store:            purchaseStore,
		Challenges:       challenges,
		CP:               clients.NewCredentialsProviderClient(cfg.CredentialsProviderURL),
		Risk:             clients.NewRiskEngineClient(cfg.RiskEngineURL),
		Sender:           sender,
		Resolver:         resolver,
		PeerURL:          cfg.PeerURL,
		MerchantAgentDID: cfg.MerchantAgentDID,
		MerchantAgentURL: cfg.MerchantAgentURL,
		CredentialsDID:   cfg.CredentialsProviderDID,
		AccountCountry:   cfg.AccountCountry,
		StepUpReturnURL:  cfg.StepUpReturnURL,
	})

	router := httpapi.NewRouter(httpapi.NewHandlers(svc, purchaseStore), identity)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func openStore(cfg config.Config) (store.PurchaseStore, error) {
	switch cfg.StoreType {
	case "firestore":
		slog.Info("using firestore store", "project", cfg.FirestoreProjectID, "collection", cfg.FirestoreCollection)
		return store.NewFirestoreStore(cfg.FirestoreProjectID, cfg.FirestoreCollection)
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, err
		}
		ms := store.NewMongoStore(client, cfg.MongoDB, cfg.MongoCollection)
		if err := ms.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		slog.Info("using mongodb store", "uri", cfg.MongoURI, "db", cfg.MongoDB)
		return ms, nil
	default:
		slog.Info("using in-memory store")
		return store.NewMemoryStore(), nil
	}
}
