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

	"github.com/parlakisik/aex-ap2/aex-token-bank/internal/config"
	"github.com/parlakisik/aex-ap2/aex-token-bank/internal/httpapi"
	"github.com/parlakisik/aex-ap2/aex-token-bank/internal/service"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if os.Getenv("ENVIRONMENT") == "development" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	identity, err := agentidentity.Bootstrap(agentidentity.Config{
		AgentID:    "payment-network",
		DID:        cfg.DID,
		KeysDir:    cfg.KeysDir,
		Passphrase: cfg.Passphrase,
		Algorithm:  ap2.AlgES256,
	})
	if err != nil {
		log.Fatalf("bootstrap payment-network identity: %v", err)
	}

	var tokens ttlstore.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		tokens = ttlstore.NewRedisStore(rdb, "network:agent_token:")
		slog.Info("redis enabled for agent_token records", "addr", addr)
	} else {
		tokens = ttlstore.NewMemoryStore()
		slog.Info("redis disabled, using in-memory agent_token store (set REDIS_ADDR to enable)")
	}

	svc := service.New(tokens, cfg.NetworkName)
	handler := httpapi.NewRouter(svc, identity)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("listening", "port", cfg.Port, "did", cfg.DID, "network", cfg.NetworkName)
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
}
