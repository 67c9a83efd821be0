package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sven3270350/Home-Entergy-Test/internal/authapi"
	"github.com/sven3270350/Home-Entergy-Test/internal/config"
	"github.com/sven3270350/Home-Entergy-Test/internal/store"
	"github.com/sven3270350/Home-Entergy-Test/internal/users"
)

func main() {
	cfg := config.LoadAuth()
	config.SetupLogging(cfg.LogLevel)

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		slog.Error("missing required env", "key", "JWT_SECRET")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.Postgres.User) == "" {
		slog.Error("missing required env", "key", "POSTGRES_USER")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.Postgres.DBName) == "" {
		slog.Error("missing required env", "key", "POSTGRES_DB")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.Postgres.Host) == "" {
		slog.Error("missing required env", "key", "POSTGRES_HOST")
		os.Exit(1)
	}

	db, err := store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	userStore, err := users.NewStore(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	// Refresh tokens need redis; without it the service still issues
	// access tokens.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable, refresh tokens disabled", "error", err)
			redisClient = nil
		}
		pingCancel()
	}

	tokens := authapi.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, redisClient)
	srv := authapi.New(userStore, tokens, cfg.JWTSecret)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("auth-service listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
