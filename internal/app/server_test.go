package app

import (
	"context"
	"log/slog"
	"testing"

	"cloudgateway/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Gateway.Frontend.HTTP.Host = "127.0.0.1"
	cfg.Gateway.Frontend.HTTP.Port = 0
	cfg.Gateway.Frontend.HTTP.AdminEnabled = true
	cfg.Gateway.Directory.Static = []config.Service{{
		Name:      "ORDER-SERVICE",
		Instances: []config.Instance{{Address: "127.0.0.1", Port: 9002}},
	}}
	cfg.Gateway.Auth.Profiles = []config.Profile{{
		Name:         "internal-client",
		TokenURL:     "https://auth.example.com/oauth/token",
		ClientID:     "id",
		ClientSecret: "secret",
	}}
	cfg.Gateway.Router.Routes = []config.RouteRule{{
		ID:          "orders",
		Path:        "/order/*",
		ServiceName: "ORDER-SERVICE",
		Profile:     "internal-client",
	}}
	return cfg
}

func TestNewServer(t *testing.T) {
	t.Run("builds from a valid config", func(t *testing.T) {
		server, err := NewServer(testConfig(), slog.Default())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if server == nil {
			t.Fatal("expected a server")
		}

		// Static seeds are applied at construction time
		if got := len(server.directory.Resolve("ORDER-SERVICE")); got != 1 {
			t.Errorf("expected 1 seeded instance, got %d", got)
		}
	})

	t.Run("duplicate route IDs fail", func(t *testing.T) {
		cfg := testConfig()
		cfg.Gateway.Router.Routes = append(cfg.Gateway.Router.Routes, cfg.Gateway.Router.Routes[0])

		if _, err := NewServer(cfg, slog.Default()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestServerLifecycle(t *testing.T) {
	server, err := NewServer(testConfig(), slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
}
