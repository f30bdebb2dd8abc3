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

	"github.com/parlakisik/aex-ap2/aex-merchant/internal/config"
	"github.com/parlakisik/aex-ap2/aex-merchant/internal/httpapi"
	"github.com/parlakisik/aex-ap2/aex-merchant/internal/service"
	"github.com/parlakisik/aex-ap2/aex-merchant/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if os.Getenv("ENVIRONMENT") == "development" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	identity, err := agentidentity.Bootstrap(agentidentity.Config{
		AgentID:    "merchant",
		DID:        cfg.DID,
		KeysDir:    cfg.KeysDir,
		Passphrase: cfg.Passphrase,
		Algorithm:  ap2.AlgES256,
	})
	if err != nil {
		log.Fatalf("bootstrap merchant identity: %v", err)
	}

	var st store.MerchantStore
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
		st = ms
		slog.Info("mongo enabled", "uri", cfg.MongoURI, "db", cfg.MongoDB)
	} else {
		st = store.NewMemoryStore()
		slog.Info("mongo disabled, using in-memory catalogue (set MONGO_URI to enable)")
	}

	svc := service.New(identity, cfg.PaymentProcessorDID, st)
	handler := httpapi.NewRouter(svc, identity)

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
