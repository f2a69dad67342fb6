package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
name: campus
source: api
retry:
  maxRetries: 5
  delay: 250ms
requestTimeout: 2s
tracing: false
publishRateLimit:
  rps: 100
  burst: 10
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	want := Config{
		Name:             "campus",
		Source:           "api",
		Retry:            RetryConfig{MaxRetries: 5, Delay: 250 * time.Millisecond},
		RequestTimeout:   2 * time.Second,
		Tracing:          false,
		Metrics:          true,
		Recovery:         true,
		PublishRateLimit: RateLimitConfig{RPS: 100, Burst: 10},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("source: feed\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	want := DefaultConfig()
	want.Source = "feed"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"negative retries", "retry:\n  maxRetries: -1\n", "retry.maxRetries"},
		{"negative delay", "retry:\n  delay: -1s\n", "retry.delay"},
		{"zero request timeout", "requestTimeout: 0s\n", "requestTimeout"},
		{"rate without burst", "publishRateLimit:\n  rps: 10\n", "publishRateLimit.burst"},
		{"negative rate", "publishRateLimit:\n  rps: -1\n", "publishRateLimit.rps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in %v", tt.wantErr, err)
			}
		})
	}

	if _, err := ParseConfig([]byte("retry: [")); err == nil || errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected a parse error, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventbus.yaml")
	if err := os.WriteFile(path, []byte("name: from-file\nretry:\n  maxRetries: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "from-file" || cfg.Retry.MaxRetries != 0 {
		t.Errorf("unexpected config %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "campus"
	cfg.Source = "api"
	cfg.Retry = RetryConfig{MaxRetries: 0, Delay: time.Millisecond}
	cfg.Tracing, cfg.Metrics = false, false

	bus, err := NewFromConfig(cfg, WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	if bus.Name() != "campus" {
		t.Errorf("unexpected name %q", bus.Name())
	}

	flaky := NewFlakyHandler(-1)
	rec := NewRecorder()
	bus.Subscribe("a", flaky.Handle)
	bus.Subscribe("a", rec.Handler())
	bus.Publish(context.Background(), Envelope{Type: "a"})

	if flaky.Calls() != 1 {
		t.Errorf("expected a single attempt from config, got %d", flaky.Calls())
	}
	if got := rec.Envelopes()[0].Source; got != "api" {
		t.Errorf("expected source from config, got %q", got)
	}

	cfg.RequestTimeout = 0
	if _, err := NewFromConfig(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
