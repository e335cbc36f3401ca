package config

import (
	"fmt"
	"os"

	"cloudgateway/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").WithCause(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse config").WithCause(err)
	}

	// Override with environment variables if enabled
	if l.envEnabled {
		if err := LoadEnv(&cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load env vars").WithCause(err)
		}
	}

	if err := l.validate(&cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid configuration").WithCause(err)
	}

	return &cfg, nil
}

// validate validates the configuration
func (l *Loader) validate(cfg *Config) error {
	if cfg.Gateway.Frontend.HTTP.Port == 0 {
		return fmt.Errorf("frontend HTTP port is required")
	}

	if len(cfg.Gateway.Router.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	profiles := make(map[string]bool, len(cfg.Gateway.Auth.Profiles))
	for i, p := range cfg.Gateway.Auth.Profiles {
		if p.Name == "" {
			return fmt.Errorf("auth profile %d: name is required", i)
		}
		if profiles[p.Name] {
			return fmt.Errorf("auth profile %d: duplicate name %q", i, p.Name)
		}
		if p.TokenURL == "" {
			return fmt.Errorf("auth profile %q: tokenUrl is required", p.Name)
		}
		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("auth profile %q: clientId and clientSecret are required", p.Name)
		}
		profiles[p.Name] = true
	}

	ids := make(map[string]bool, len(cfg.Gateway.Router.Routes))
	for i, rule := range cfg.Gateway.Router.Routes {
		if rule.ID == "" {
			return fmt.Errorf("route %d: ID is required", i)
		}
		if ids[rule.ID] {
			return fmt.Errorf("route %d: duplicate ID %q", i, rule.ID)
		}
		ids[rule.ID] = true
		if rule.Path == "" {
			return fmt.Errorf("route %q: path is required", rule.ID)
		}
		if rule.ServiceName == "" {
			return fmt.Errorf("route %q: service name is required", rule.ID)
		}
		if rule.Profile != "" && !profiles[rule.Profile] {
			return fmt.Errorf("route %q: unknown credential profile %q", rule.ID, rule.Profile)
		}
		if b := rule.Breaker; b != nil {
			if b.FailureRateThreshold < 0 || b.FailureRateThreshold > 1 {
				return fmt.Errorf("route %q: failureRateThreshold must be within (0, 1]", rule.ID)
			}
			if b.MinimumSamples > b.WindowSize && b.WindowSize > 0 {
				return fmt.Errorf("route %q: minimumSamples cannot exceed windowSize", rule.ID)
			}
		}
	}

	d := cfg.Gateway.Directory
	if d.SuspectAfter > 0 && d.RemoveAfter > 0 && d.RemoveAfter <= d.SuspectAfter {
		return fmt.Errorf("directory: removeAfter must be greater than suspectAfter")
	}

	return nil
}
