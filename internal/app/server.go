// Package app wires the gateway together with explicit constructor-based
// composition: every component receives its collaborators directly, and
// shared instances (HTTP client, metrics registry) are constructed once at
// process start.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpadapter "cloudgateway/internal/adapter/http"
	"cloudgateway/internal/backend"
	"cloudgateway/internal/circuitbreaker"
	"cloudgateway/internal/config"
	"cloudgateway/internal/directory"
	"cloudgateway/internal/dispatcher"
	"cloudgateway/internal/management"
	"cloudgateway/internal/router"
	"cloudgateway/internal/telemetry"
	"cloudgateway/internal/token"
	"cloudgateway/pkg/metrics"
)

// Server is the composed gateway
type Server struct {
	config    *config.Config
	logger    *slog.Logger
	adapter   *httpadapter.Adapter
	directory *directory.Directory
	telemetry *telemetry.Telemetry
	watcher   *config.Watcher
}

// NewServer builds the gateway from config
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	tel, err := telemetry.New(cfg.Gateway.Telemetry, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	dir := directory.New(directory.Config{
		HeartbeatInterval: seconds(cfg.Gateway.Directory.HeartbeatInterval),
		SweepInterval:     seconds(cfg.Gateway.Directory.SweepInterval),
		SuspectAfter:      seconds(cfg.Gateway.Directory.SuspectAfter),
		RemoveAfter:       seconds(cfg.Gateway.Directory.RemoveAfter),
	}, logger, m)
	seedDirectory(dir, cfg.Gateway.Directory.Static)

	rt := router.NewRouter(dir)
	for _, rule := range cfg.Gateway.Router.Routes {
		if err := rt.AddRoute(rule.ToRoute()); err != nil {
			return nil, fmt.Errorf("failed to add route %q: %w", rule.ID, err)
		}
	}

	httpClient := backend.NewClient(cfg.Gateway.Backend.HTTP)

	profiles := make([]token.Profile, 0, len(cfg.Gateway.Auth.Profiles))
	for _, p := range cfg.Gateway.Auth.Profiles {
		profiles = append(profiles, token.Profile{
			Name:         p.Name,
			TokenURL:     p.TokenURL,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Audience:     p.Audience,
			Scopes:       p.Scopes,
		})
	}
	tokens := token.NewManager(token.Config{
		SafetyMargin:   seconds(cfg.Gateway.Auth.SafetyMargin),
		RequestTimeout: seconds(cfg.Gateway.Auth.RequestTimeout),
		Profiles:       profiles,
	}, httpClient, logger, m)

	breakers := circuitbreaker.NewRegistry(logger, m)

	connector := backend.NewHTTPConnector(httpClient, seconds(cfg.Gateway.Backend.HTTP.DefaultTimeout))

	disp := dispatcher.New(rt, breakers, tokens, connector, m, tel.Tracer(), logger)

	adapter := httpadapter.New(httpadapter.Config{
		Host:         cfg.Gateway.Frontend.HTTP.Host,
		Port:         cfg.Gateway.Frontend.HTTP.Port,
		ReadTimeout:  seconds(cfg.Gateway.Frontend.HTTP.ReadTimeout),
		WriteTimeout: seconds(cfg.Gateway.Frontend.HTTP.WriteTimeout),
		MetricsPath:  cfg.Gateway.Frontend.HTTP.MetricsPath,
	}, disp.Dispatch).
		WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).
		WithRegistryHandler(directory.NewHandler(dir, logger))

	if cfg.Gateway.Frontend.HTTP.AdminEnabled {
		admin := management.New(logger)
		admin.SetDirectory(dir)
		admin.SetRouter(rt)
		admin.SetBreakers(breakers)
		admin.SetTokens(tokens)
		adapter.WithAdminHandler(admin)
	}

	return &Server{
		config:    cfg,
		logger:    logger,
		adapter:   adapter,
		directory: dir,
		telemetry: tel,
	}, nil
}

// WatchConfig re-seeds the directory when the config file changes. Routes
// stay immutable for the process lifetime.
func (s *Server) WatchConfig(path string) error {
	watcher, err := config.NewWatcher(path, &config.WatcherConfig{
		OnChange: func(newCfg *config.Config) error {
			seedDirectory(s.directory, newCfg.Gateway.Directory.Static)
			return nil
		},
	}, s.logger)
	if err != nil {
		return err
	}
	s.watcher = watcher
	return nil
}

// Start starts the directory sweep, config watcher and frontend
func (s *Server) Start(ctx context.Context) error {
	if err := s.directory.Start(ctx); err != nil {
		return fmt.Errorf("directory: %w", err)
	}

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
	}

	if err := s.adapter.Start(ctx); err != nil {
		s.directory.Stop()
		return fmt.Errorf("HTTP server: %w", err)
	}

	s.logger.Info("gateway started",
		"host", s.config.Gateway.Frontend.HTTP.Host,
		"port", s.config.Gateway.Frontend.HTTP.Port,
		"routes", len(s.config.Gateway.Router.Routes),
	)
	return nil
}

// Stop shuts components down in reverse start order
func (s *Server) Stop(ctx context.Context) error {
	var firstErr error

	if err := s.adapter.Stop(ctx); err != nil {
		firstErr = err
	}

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.directory.Stop()

	if err := s.telemetry.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	s.logger.Info("gateway stopped")
	return firstErr
}

func seedDirectory(dir *directory.Directory, services []config.Service) {
	for _, svc := range services {
		for _, inst := range svc.Instances {
			dir.Register(svc.Name, inst.Address, inst.Port)
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
