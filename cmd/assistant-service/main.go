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

	"github.com/sven3270350/Home-Entergy-Test/internal/assistant"
	"github.com/sven3270350/Home-Entergy-Test/internal/assistant/llm"
	"github.com/sven3270350/Home-Entergy-Test/internal/config"
)

func main() {
	cfg := config.LoadAssistant()
	config.SetupLogging(cfg.LogLevel)

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		slog.Error("missing required env", "key", "JWT_SECRET")
		os.Exit(1)
	}

	llmClient := llm.NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, cfg.OllamaContextLength)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if ok, err := llmClient.Available(pingCtx); !ok {
		slog.Warn("ollama unreachable at startup", "host", cfg.OllamaHost, "error", err)
	}
	pingCancel()

	a := assistant.New(llmClient, assistant.NewTelemetryClient(cfg.TelemetryServiceURL))
	srv := assistant.NewServer(a, cfg.JWTSecret)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("assistant-service listening", "addr", httpSrv.Addr, "model", cfg.OllamaModel)
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
