package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/config"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/httpapi"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/payment"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/service"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/store"
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
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting aex-settlement",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store_type", cfg.StoreType,
		"did", cfg.DID,
	)

	identity, err := agentidentity.Bootstrap(agentidentity.Config{
		AgentID:    "settlement",
		DID:        cfg.DID,
		KeysDir:    cfg.KeysDir,
		Passphrase: cfg.Passphrase,
		Algorithm:  ap2.AlgES256,
	})
	if err != nil {
		slog.Error("bootstrap settlement identity", "error", err)
		os.Exit(1)
	}

	var txStore store.TransactionStore
	if cfg.StoreType == "memory" {
		txStore = store.NewMemoryStore()
		slog.Info("using in-memory store")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			slog.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, nil); err != nil {
			slog.Error("failed to ping mongodb", "error", err)
			os.Exit(1)
		}

		mongoStore := store.NewMongoStore(mongoClient, cfg.MongoDB)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		txStore = mongoStore
		slog.Info("using mongodb store", "uri", cfg.MongoURI, "db", cfg.MongoDB)
	}
	defer txStore.Close()

	resolver := didresolver.NewResolver()
	nonces := ttlstore.NewMemoryNonceLedger()

	svc := service.New(service.Config{
		Identity:               identity,
		Store:                  txStore,
		Acquirer:               payment.NewSimulatedAcquirer(),
		Resolver:               resolver,
		PeerURL:                cfg.PeerURL,
		JTILedger:              ttlstore.NewMemoryNonceLedger(),
		CredentialsProviderURL: cfg.CredentialsProviderURL,
		ContractEngineURL:      cfg.ContractEngineURL,
		ReceiptBaseURL:         cfg.ReceiptBaseURL,
		RiskDeclineThreshold:   cfg.RiskDeclineThreshold,
	})

	a2a := envelope.NewHandler(envelope.Config{
		SelfDID:    cfg.DID,
		KeyPair:    identity.KeyPair,
		KeyID:      identity.KeyID,
		HTTPClient: httpclient.NewClient("aex-settlement", 30*time.Second),
		Resolver:   resolver,
		Nonces:     nonces,
		PeerURL:    cfg.PeerURL,
	})

	router := httpapi.NewRouter(httpapi.NewHandlers(svc), a2a, identity)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
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
