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

	"github.com/sven3270350/Home-Entergy-Test/internal/config"
	"github.com/sven3270350/Home-Entergy-Test/internal/httpapi"
	"github.com/sven3270350/Home-Entergy-Test/internal/mqtt"
	"github.com/sven3270350/Home-Entergy-Test/internal/store"
	"github.com/sven3270350/Home-Entergy-Test/internal/telemetry"
)

func main() {
	cfg := config.LoadTelemetry()
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
	if strings.TrimSpace(cfg.Postgres.Port) == "" {
		slog.Error("missing required env", "key", "POSTGRES_PORT")
		os.Exit(1)
	}

	db, err := store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broker ingestion is optional; without a broker the service still
	// serves the REST API.
	var mq *mqtt.Client
	if cfg.MQTTBrokerURL != "" {
		mq, err = mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
		if err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()

		ing := &telemetry.Ingestor{Repo: repo, TopicPrefix: cfg.MQTTTopicPrefix}
		subTopic := strings.TrimRight(cfg.MQTTTopicPrefix, "/") + "/#"
		if err := mq.Subscribe(subTopic, func(m mqtt.Message) {
			ing.HandleMessage(ctx, m, time.Now().UTC())
		}); err != nil {
			slog.Error("mqtt subscribe failed", "topic", subTopic, "error", err)
			os.Exit(1)
		}
		slog.Info("telemetry ingest subscribed", "topic", subTopic)
	}

	svc := telemetry.NewService(repo)
	srv := httpapi.New(svc, cfg.JWTSecret)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("telemetry-service listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
}
