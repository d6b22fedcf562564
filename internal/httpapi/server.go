// Package httpapi wires the gateway's chi router: health, JSON-RPC,
// exec, webhook, OAuth, and WebSocket endpoints, each guarded by the
// API-key middleware except the exempt health/metrics/ready paths.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/willy3087/codex-gateway/internal/auth"
	"github.com/willy3087/codex-gateway/internal/config"
	"github.com/willy3087/codex-gateway/internal/conversation"
	"github.com/willy3087/codex-gateway/internal/persistence"
	"github.com/willy3087/codex-gateway/internal/turn"
)

// Server bundles every dependency the gateway's HTTP handlers need.
type Server struct {
	mux *chi.Mux

	cfg       *config.Config
	conv      *conversation.Manager
	executor  *turn.Executor
	sink      *persistence.Sink
	apiKeys   *auth.APIKeyStore
	oauth     *auth.OAuthStore
	logger    *slog.Logger
}

// NewServer builds the gateway's router with every route and the
// middleware stack applied in this order: recoverer, real IP, request
// logging, request timeout, then API-key auth. Body limits are applied
// per route, after API-key auth.
func NewServer(cfg *config.Config, conv *conversation.Manager, executor *turn.Executor, sink *persistence.Sink, apiKeys *auth.APIKeyStore, oauthStore *auth.OAuthStore, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		conv:     conv,
		executor: executor,
		sink:     sink,
		apiKeys:  apiKeys,
		oauth:    oauthStore,
		logger:   logger.With("component", "httpapi"),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Timeout(cfg.Timeouts.RequestTimeout.Duration))
	r.Use(s.apiKeyMiddleware)

	r.Get("/health", s.bodyLimit(cfg.BodyLimits.HealthLimit, s.handleHealth))
	r.Post("/jsonrpc", s.bodyLimit(cfg.BodyLimits.JSONRPCLimit, s.handleJSONRPC))
	r.Post("/exec", s.bodyLimit(cfg.BodyLimits.DefaultLimit, s.handleExec))
	r.Post("/exec/resume", s.bodyLimit(cfg.BodyLimits.DefaultLimit, s.handleExecResume))
	r.Post("/webhook", s.bodyLimit(cfg.BodyLimits.WebhookLimit, s.handleWebhook))
	r.Get("/oauth/authorize", s.handleOAuthAuthorize)
	r.Post("/oauth/token", s.handleOAuthToken)
	r.Get("/ws", s.handleWebSocket)

	s.mux = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// bodyLimit wraps a handler with an endpoint-specific request body
// ceiling, skipped entirely when body limits are disabled.
func (s *Server) bodyLimit(limit int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BodyLimits.Enabled && limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next(w, r)
	}
}

// NewHTTPServer wraps Server in a *http.Server configured with the
// gateway's listen address and timeouts, ready for ListenAndServe and
// graceful Shutdown.
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
