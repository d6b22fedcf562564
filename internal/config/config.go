// Package config assembles the gateway's immutable runtime
// configuration from environment variables, following the same
// Duration/defaults shape the rest of the codebase uses for its own
// config loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the gateway's top-level configuration, built once at
// startup and never mutated afterward.
type Config struct {
	Server      ServerConfig
	Timeouts    TimeoutConfig
	BodyLimits  BodyLimitsConfig
	Auth        AuthConfig
	Agent       AgentConfig
	Persistence PersistenceConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr           string   // e.g. ":8080"
	AllowedOrigins []string // CORS + WebSocket origin allowlist; "*" allows all
}

// TimeoutConfig controls request and turn deadlines.
type TimeoutConfig struct {
	RequestTimeout Duration
	TurnTimeout    Duration // upper bound on a single turn's wall-clock time
}

// BodyLimitsConfig mirrors the reference gateway's per-endpoint request
// body ceilings.
type BodyLimitsConfig struct {
	Enabled       bool
	DefaultLimit  int64
	JSONRPCLimit  int64
	WebhookLimit  int64
	HealthLimit   int64
}

// AuthConfig controls API key and OAuth behavior.
type AuthConfig struct {
	GatewayAPIKey      string // optional high-quota internal key, seeded if set
	OAuthClientID      string
	OAuthClientSecret  string
	JWTSigningSecret   string
	AccessTokenTTL     Duration
	StateDBPath        string // optional sqlite DSN for persisting API keys; OAuth codes stay in memory
}

// AgentConfig controls how the agent subprocess is spawned.
type AgentConfig struct {
	BinaryPath  string // path to the agent executable; default "codex"
	SandboxMode string // e.g. "workspace-write", "danger-full-access"
	ApprovalMode string
	DefaultModel string
	WorkingDir   string // default root under which each turn gets its own working directory
}

// PersistenceConfig controls the object-store sink.
type PersistenceConfig struct {
	FilesBucket   string // GCS bucket for uploaded created files; disabled if empty
	SessionBucket string // GCS bucket for SessionRecord JSON; disabled if empty
	DatabaseURL   string // optional Postgres DSN for SessionRecord storage, in addition to bucket JSON
}

// Duration is a JSON-friendly time.Duration, accepting either a
// duration string ("30s") or a bare number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// FromEnv loads the gateway configuration from environment variables,
// applying the defaults below wherever a variable is unset.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:           envOr("GATEWAY_ADDR", ":8080"),
			AllowedOrigins: []string{"*"},
		},
		Timeouts: TimeoutConfig{
			RequestTimeout: Duration{30 * time.Second},
			TurnTimeout:    Duration{60 * time.Second},
		},
		BodyLimits: BodyLimitsConfig{
			Enabled:      envBoolOr("GATEWAY_BODY_LIMITS_ENABLED", true),
			DefaultLimit: envInt64Or("GATEWAY_BODY_LIMIT_DEFAULT", 2*1024*1024),
			JSONRPCLimit: envInt64Or("GATEWAY_BODY_LIMIT_JSONRPC", 1024*1024),
			WebhookLimit: envInt64Or("GATEWAY_BODY_LIMIT_WEBHOOK", 10*1024*1024),
			HealthLimit:  envInt64Or("GATEWAY_BODY_LIMIT_HEALTH", 1024),
		},
		Auth: AuthConfig{
			GatewayAPIKey:     os.Getenv("GATEWAY_API_KEY"),
			OAuthClientID:     envOr("OAUTH_CLIENT_ID", "codex-gateway-client"),
			OAuthClientSecret: envOr("OAUTH_CLIENT_SECRET", "secret-key-here"),
			JWTSigningSecret:  os.Getenv("GATEWAY_JWT_SECRET"),
			AccessTokenTTL:    Duration{1 * time.Hour},
			StateDBPath:       os.Getenv("GATEWAY_STATE_DB"),
		},
		Agent: AgentConfig{
			BinaryPath:   envOr("GATEWAY_AGENT_BINARY", "codex"),
			SandboxMode:  envOr("GATEWAY_SANDBOX_MODE", "workspace-write"),
			ApprovalMode: envOr("GATEWAY_APPROVAL_MODE", "never"),
			DefaultModel: os.Getenv("GATEWAY_DEFAULT_MODEL"),
			WorkingDir:   envOr("GATEWAY_WORKDIR", os.TempDir()),
		},
		Persistence: PersistenceConfig{
			FilesBucket:   os.Getenv("GCS_FILES_BUCKET"),
			SessionBucket: os.Getenv("GCS_SESSION_BUCKET"),
			DatabaseURL:   os.Getenv("GATEWAY_DATABASE_URL"),
		},
	}

	if secs, ok := os.LookupEnv("REQUEST_TIMEOUT_SECS"); ok {
		n, err := strconv.Atoi(secs)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT_SECS: %w", err)
		}
		cfg.Timeouts.RequestTimeout = Duration{time.Duration(n) * time.Second}
	}
	if secs, ok := os.LookupEnv("GATEWAY_TURN_TIMEOUT_SECS"); ok {
		n, err := strconv.Atoi(secs)
		if err != nil {
			return nil, fmt.Errorf("invalid GATEWAY_TURN_TIMEOUT_SECS: %w", err)
		}
		cfg.Timeouts.TurnTimeout = Duration{time.Duration(n) * time.Second}
	}

	if cfg.Auth.JWTSigningSecret == "" {
		cfg.Auth.JWTSigningSecret = "local-dev-signing-secret-change-me"
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64Or(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
