package config

import (
	"fmt"
	"time"

	"cloudgateway/internal/core"
	"cloudgateway/internal/telemetry"
)

// Config holds gateway configuration
type Config struct {
	Gateway Gateway `yaml:"gateway"`
}

// Gateway configuration
type Gateway struct {
	Frontend  Frontend         `yaml:"frontend"`
	Backend   Backend          `yaml:"backend"`
	Directory Directory        `yaml:"directory"`
	Auth      Auth             `yaml:"auth"`
	Router    Router           `yaml:"router"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Frontend configuration
type Frontend struct {
	HTTP HTTP `yaml:"http"`
}

// HTTP configuration
type HTTP struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
	MetricsPath  string `yaml:"metricsPath"`
	AdminEnabled bool   `yaml:"adminEnabled"`
}

// Backend configuration
type Backend struct {
	HTTP HTTPBackend `yaml:"http"`
}

// HTTPBackend holds connection settings for downstream calls. The transport
// is constructed once at startup and shared by reference for the process
// lifetime.
type HTTPBackend struct {
	MaxIdleConns        int `yaml:"maxIdleConns"`
	MaxIdleConnsPerHost int `yaml:"maxIdleConnsPerHost"`
	IdleConnTimeout     int `yaml:"idleConnTimeout"` // seconds
	DialTimeout         int `yaml:"dialTimeout"`     // seconds
	DefaultTimeout      int `yaml:"defaultTimeout"`  // seconds, per-call deadline when a route sets none
}

// Directory holds membership directory configuration
type Directory struct {
	HeartbeatInterval int `yaml:"heartbeatInterval"` // seconds, expected instance heartbeat cadence
	SweepInterval     int `yaml:"sweepInterval"`     // seconds, liveness sweep period
	SuspectAfter      int `yaml:"suspectAfter"`      // seconds without heartbeat before UP -> SUSPECT
	RemoveAfter       int `yaml:"removeAfter"`       // seconds without heartbeat before removal

	// Static seeds the directory at startup; instances still go through the
	// normal liveness lifecycle and must heartbeat to stay registered.
	Static []Service `yaml:"static"`
}

// Service configuration for static seeding
type Service struct {
	Name      string     `yaml:"name"`
	Instances []Instance `yaml:"instances"`
}

// Instance configuration
type Instance struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Auth holds the token manager configuration
type Auth struct {
	SafetyMargin   int       `yaml:"safetyMargin"`   // seconds, refresh this long before expiry
	RequestTimeout int       `yaml:"requestTimeout"` // seconds, deadline for authorization endpoint calls
	Profiles       []Profile `yaml:"profiles"`
}

// Profile is one client-credentials registration
type Profile struct {
	Name         string   `yaml:"name"`
	TokenURL     string   `yaml:"tokenUrl"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	Audience     string   `yaml:"audience"`
	Scopes       []string `yaml:"scopes"`
}

// Router configuration
type Router struct {
	Routes []RouteRule `yaml:"routes"`
}

// RouteRule configuration
type RouteRule struct {
	ID          string        `yaml:"id"`
	Path        string        `yaml:"path"`
	Methods     []string      `yaml:"methods"`
	ServiceName string        `yaml:"serviceName"`
	Profile     string        `yaml:"profile"`
	Timeout     int           `yaml:"timeout"` // seconds
	Breaker     *BreakerRule  `yaml:"breaker"`
	Fallback    *FallbackRule `yaml:"fallback"`
}

// BreakerRule configuration
type BreakerRule struct {
	WindowSize           int     `yaml:"windowSize"`
	MinimumSamples       int     `yaml:"minimumSamples"`
	FailureRateThreshold float64 `yaml:"failureRateThreshold"`
	CoolDown             int     `yaml:"coolDown"` // seconds
	TrialCount           int     `yaml:"trialCount"`
}

// FallbackRule configuration
type FallbackRule struct {
	StatusCode  int    `yaml:"statusCode"`
	ContentType string `yaml:"contentType"`
	Body        string `yaml:"body"`
}

// ToRoute converts a rule to a core.Route, applying defaults
func (r *RouteRule) ToRoute() core.Route {
	route := core.Route{
		ID:          r.ID,
		Path:        r.Path,
		Methods:     r.Methods,
		ServiceName: r.ServiceName,
		Profile:     r.Profile,
		Timeout:     10 * time.Second,
		Breaker: core.BreakerConfig{
			WindowSize:           10,
			MinimumSamples:       5,
			FailureRateThreshold: 0.5,
			CoolDown:             30 * time.Second,
			TrialCount:           3,
		},
		Fallback: core.Fallback{
			StatusCode:  503,
			ContentType: "application/json",
			Body:        fmt.Sprintf(`{"message":"%s is unavailable"}`, r.ServiceName),
		},
	}

	if r.Timeout > 0 {
		route.Timeout = time.Duration(r.Timeout) * time.Second
	}

	if b := r.Breaker; b != nil {
		if b.WindowSize > 0 {
			route.Breaker.WindowSize = b.WindowSize
		}
		if b.MinimumSamples > 0 {
			route.Breaker.MinimumSamples = b.MinimumSamples
		}
		if b.FailureRateThreshold > 0 {
			route.Breaker.FailureRateThreshold = b.FailureRateThreshold
		}
		if b.CoolDown > 0 {
			route.Breaker.CoolDown = time.Duration(b.CoolDown) * time.Second
		}
		if b.TrialCount > 0 {
			route.Breaker.TrialCount = b.TrialCount
		}
	}

	if f := r.Fallback; f != nil {
		if f.StatusCode > 0 {
			route.Fallback.StatusCode = f.StatusCode
		}
		if f.ContentType != "" {
			route.Fallback.ContentType = f.ContentType
		}
		if f.Body != "" {
			route.Fallback.Body = f.Body
		}
	}

	return route
}
