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

	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/config"
	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/httpapi"
	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/service"
	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
	"github.com/redis/go-redis/v9"
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
		AgentID:    "credentials-provider",
		DID:        cfg.DID,
		KeysDir:    cfg.KeysDir,
		Passphrase: cfg.Passphrase,
		Algorithm:  ap2.AlgES256,
	})
	if err != nil {
		log.Fatalf("bootstrap credentials-provider identity: %v", err)
	}

	var creds store.CredentialStore
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
		creds = ms
		slog.Info("mongo enabled", "uri", cfg.MongoURI, "db", cfg.MongoDB)
	} else {
		creds = store.NewMemoryStore()
		slog.Info("mongo disabled, using in-memory credential store (set MONGO_URI to enable)")
	}

	var tokens, sessions ttlstore.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		tokens = ttlstore.NewRedisStore(rdb, "cp:pm_token:")
		sessions = ttlstore.NewRedisStore(rdb, "cp:step_up:")
		slog.Info("redis enabled for ephemeral records", "addr", addr)
	} else {
		tokens = ttlstore.NewMemoryStore()
		sessions = ttlstore.NewMemoryStore()
		slog.Info("redis disabled, using in-memory ephemeral stores (set REDIS_ADDR to enable)")
	}

	svc := service.New(creds, tokens, sessions, cfg.RPID, cfg.AllowedOrigins, cfg.PaymentNetworkURL)
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
