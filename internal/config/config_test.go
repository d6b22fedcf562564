package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDuration_UnmarshalJSON_String(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"30s"`), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.Duration != 30*time.Second {
		t.Errorf("expected 30s, got %s", d.Duration)
	}
}

func TestDuration_UnmarshalJSON_Number(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`45`), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.Duration != 45*time.Second {
		t.Errorf("expected 45s, got %s", d.Duration)
	}
}

func TestDuration_UnmarshalJSON_Invalid(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`true`), &d); err == nil {
		t.Error("expected an error unmarshalling a boolean into Duration")
	}
}

func TestDuration_MarshalJSON_RoundTrips(t *testing.T) {
	d := Duration{5 * time.Minute}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Duration
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal round trip: %v", err)
	}
	if got.Duration != d.Duration {
		t.Errorf("expected round trip to preserve %s, got %s", d.Duration, got.Duration)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.BodyLimits.DefaultLimit != 2*1024*1024 {
		t.Errorf("expected default body limit 2MiB, got %d", cfg.BodyLimits.DefaultLimit)
	}
	if cfg.BodyLimits.JSONRPCLimit != 1024*1024 {
		t.Errorf("expected jsonrpc body limit 1MiB, got %d", cfg.BodyLimits.JSONRPCLimit)
	}
	if cfg.Agent.BinaryPath != "codex" {
		t.Errorf("expected default agent binary 'codex', got %s", cfg.Agent.BinaryPath)
	}
	if cfg.Auth.JWTSigningSecret == "" {
		t.Error("expected a non-empty fallback JWT signing secret")
	}
}

func TestFromEnv_OverridesFromEnvironment(t *testing.T) {
	t.Setenv("GATEWAY_ADDR", ":9090")
	t.Setenv("GATEWAY_AGENT_BINARY", "/usr/local/bin/myagent")
	t.Setenv("REQUEST_TIMEOUT_SECS", "10")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected overridden addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Agent.BinaryPath != "/usr/local/bin/myagent" {
		t.Errorf("expected overridden agent binary, got %s", cfg.Agent.BinaryPath)
	}
	if cfg.Timeouts.RequestTimeout.Duration != 10*time.Second {
		t.Errorf("expected overridden request timeout 10s, got %s", cfg.Timeouts.RequestTimeout.Duration)
	}
}

func TestFromEnv_InvalidTimeoutIsError(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT_SECS", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Error("expected an error for a non-numeric REQUEST_TIMEOUT_SECS")
	}
}
