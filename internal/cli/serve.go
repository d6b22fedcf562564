package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/willy3087/codex-gateway/internal/auth"
	gwconfig "github.com/willy3087/codex-gateway/internal/config"
	"github.com/willy3087/codex-gateway/internal/conversation"
	"github.com/willy3087/codex-gateway/internal/httpapi"
	"github.com/willy3087/codex-gateway/internal/persistence"
	"github.com/willy3087/codex-gateway/internal/turn"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := gwconfig.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("GATEWAY_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiKeys := newAPIKeyStore(cfg, logger)
	if err := apiKeys.WithDefaultKeys(cfg.Auth.GatewayAPIKey); err != nil {
		return fmt.Errorf("seed api key store: %w", err)
	}
	oauthStore := auth.NewOAuthStore(cfg.Auth.JWTSigningSecret, cfg.Auth.AccessTokenTTL.Duration)

	convMgr := conversation.NewManager(logger)
	executor := turn.NewExecutor(cfg.Agent, cfg.Timeouts, convMgr, logger)

	sink, err := persistence.NewSink(ctx, cfg.Persistence, logger)
	if err != nil {
		return fmt.Errorf("init persistence sink: %w", err)
	}
	defer sink.Close()

	srv := httpapi.NewServer(cfg, convMgr, executor, sink, apiKeys, oauthStore, logger)
	httpSrv := httpapi.NewHTTPServer(cfg, srv)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
		cancel()
	}()

	logger.Info("codex gateway listening", "addr", cfg.Server.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("codex gateway stopped")
	return nil
}

func newAPIKeyStore(cfg *gwconfig.Config, logger *slog.Logger) *auth.APIKeyStore {
	if cfg.Auth.StateDBPath == "" {
		return auth.NewMemAPIKeyStore()
	}
	store, err := auth.NewSQLiteAPIKeyStore(cfg.Auth.StateDBPath)
	if err != nil {
		logger.Warn("falling back to in-memory api key store", "error", err)
		return auth.NewMemAPIKeyStore()
	}
	return store
}
