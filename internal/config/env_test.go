package config

import (
	"testing"
)

func TestLoadEnv(t *testing.T) {
	t.Run("overrides scalar fields", func(t *testing.T) {
		t.Setenv("GATEWAY_FRONTEND_HTTP_HOST", "10.1.2.3")
		t.Setenv("GATEWAY_FRONTEND_HTTP_PORT", "9999")
		t.Setenv("GATEWAY_FRONTEND_HTTP_ADMINENABLED", "true")
		t.Setenv("GATEWAY_DIRECTORY_SWEEPINTERVAL", "5")

		cfg := &Config{}
		cfg.Gateway.Frontend.HTTP.Host = "0.0.0.0"
		if err := LoadEnv(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Gateway.Frontend.HTTP.Host != "10.1.2.3" {
			t.Errorf("expected host override, got %q", cfg.Gateway.Frontend.HTTP.Host)
		}
		if cfg.Gateway.Frontend.HTTP.Port != 9999 {
			t.Errorf("expected port override, got %d", cfg.Gateway.Frontend.HTTP.Port)
		}
		if !cfg.Gateway.Frontend.HTTP.AdminEnabled {
			t.Error("expected adminEnabled override")
		}
		if cfg.Gateway.Directory.SweepInterval != 5 {
			t.Errorf("expected sweep interval override, got %d", cfg.Gateway.Directory.SweepInterval)
		}
	})

	t.Run("unset variables leave values untouched", func(t *testing.T) {
		cfg := &Config{}
		cfg.Gateway.Frontend.HTTP.Port = 8080

		if err := LoadEnv(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Gateway.Frontend.HTTP.Port != 8080 {
			t.Errorf("expected port untouched, got %d", cfg.Gateway.Frontend.HTTP.Port)
		}
	})

	t.Run("malformed numeric value fails", func(t *testing.T) {
		t.Setenv("GATEWAY_FRONTEND_HTTP_PORT", "not-a-number")

		if err := LoadEnv(&Config{}); err == nil {
			t.Fatal("expected error")
		}
	})
}
