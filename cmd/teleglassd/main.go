package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teleglass/gateway/internal/api"
	"github.com/teleglass/gateway/internal/config"
	"github.com/teleglass/gateway/internal/runtime"
	"github.com/teleglass/gateway/internal/service"
	"github.com/teleglass/gateway/internal/store"
	"github.com/teleglass/gateway/internal/telemetry"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, "teleglass-gateway", version, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("store open failed", "database_url", cfg.DatabaseURL, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Mail channel: MCP relay when configured, SMTP next, stdout in dev.
	var mailer service.Mailer
	var relay *service.RelayMailer
	switch {
	case cfg.RelayURL != "":
		relay = service.NewRelayMailer(cfg.RelayURL, cfg.RelayOrigin, logger)
		mailer = relay
	case cfg.SMTPHost != "":
		mailer = service.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	default:
		logger.Warn("no mail relay or SMTP configured, access codes go to the log")
		mailer = service.NewLogMailer(logger)
	}

	var sms service.SMSSender
	if cfg.SMSEndpoint != "" {
		sms = service.NewHTTPSMSSender(cfg.SMSEndpoint)
	}

	dial := func(ctx context.Context) (runtime.Conversation, error) {
		return runtime.NewWSConversation(cfg.RuntimeURL, cfg.RuntimeReadyTimeout, logger), nil
	}

	sessions := service.NewSessionService(dial, logger, cfg.HistoryPollInterval, cfg.SessionIdleTimeout)
	sessions.Start()

	access := service.NewAccessService(cfg.JWTSecret, cfg.CodeTTL, mailer, sms, db, logger)
	acks := service.NewAckService(sessions, logger)
	sessions.OnClose(acks.Reset)

	svcs := &api.Services{
		Access:   access,
		Sessions: sessions,
		Acks:     acks,
		Store:    db,
	}
	if relay != nil {
		svcs.Alias = relay
	}
	router := api.NewRouter(cfg, logger, svcs)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("teleglass gateway listening",
			"addr", cfg.ListenAddr,
			"runtime_url", cfg.RuntimeURL,
			"environment", cfg.Environment,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	sessions.Stop()
	if relay != nil {
		_ = relay.Close()
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown failed", "error", err)
	}
}
