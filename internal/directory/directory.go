// Package directory implements the membership directory: a concurrent
// registry mapping logical service names to live instance addresses with
// heartbeat-derived liveness.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloudgateway/internal/core"
	"cloudgateway/pkg/metrics"
)

// Config holds directory timing configuration
type Config struct {
	// HeartbeatInterval is the cadence instances are expected to report at
	HeartbeatInterval time.Duration
	// SweepInterval is the liveness sweep period
	SweepInterval time.Duration
	// SuspectAfter is how long without a heartbeat before UP -> SUSPECT
	SuspectAfter time.Duration
	// RemoveAfter is how long without a heartbeat before removal
	RemoveAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
	if c.SuspectAfter <= 0 {
		c.SuspectAfter = 3 * c.HeartbeatInterval
	}
	if c.RemoveAfter <= c.SuspectAfter {
		c.RemoveAfter = 3 * c.SuspectAfter
	}
	return c
}

// Directory is a heartbeat-driven membership registry
type Directory struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	services map[string]map[string]*core.Instance // service -> hostport -> instance
	owners   map[string]string                    // hostport -> service name

	// now is replaceable for tests
	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a membership directory
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Directory {
	return &Directory{
		config:   cfg.withDefaults(),
		logger:   logger.With("component", "directory"),
		metrics:  m,
		services: make(map[string]map[string]*core.Instance),
		owners:   make(map[string]string),
		now:      time.Now,
	}
}

// Register adds or refreshes an instance. It is idempotent: re-registering
// refreshes the heartbeat timestamp and restores liveness to UP.
func (d *Directory) Register(serviceName, address string, port int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerLocked(serviceName, address, port)
	d.updateGaugesLocked()
}

// Heartbeat refreshes an instance's heartbeat timestamp, restoring SUSPECT
// instances to UP. An unknown instance is registered implicitly.
func (d *Directory) Heartbeat(serviceName, address string, port int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerLocked(serviceName, address, port)
	d.updateGaugesLocked()

	if d.metrics != nil {
		d.metrics.HeartbeatsTotal.WithLabelValues(serviceName).Inc()
	}
}

// registerLocked upserts an instance. An address belongs to at most one
// logical service name at a time; registering it under a new name moves it.
func (d *Directory) registerLocked(serviceName, address string, port int) {
	hostPort := fmt.Sprintf("%s:%d", address, port)

	if owner, ok := d.owners[hostPort]; ok && owner != serviceName {
		delete(d.services[owner], hostPort)
		if len(d.services[owner]) == 0 {
			delete(d.services, owner)
		}
		d.logger.Warn("instance re-registered under a different service",
			"address", hostPort,
			"from", owner,
			"to", serviceName,
		)
	}

	instances, ok := d.services[serviceName]
	if !ok {
		instances = make(map[string]*core.Instance)
		d.services[serviceName] = instances
	}

	inst, ok := instances[hostPort]
	if !ok {
		inst = &core.Instance{
			ServiceName: serviceName,
			Address:     address,
			Port:        port,
			Scheme:      "http",
		}
		instances[hostPort] = inst
		d.logger.Info("instance registered", "service", serviceName, "address", hostPort)
	}

	inst.Liveness = core.LivenessUp
	inst.LastHeartbeat = d.now()
	d.owners[hostPort] = serviceName
}

// Resolve returns all instances currently UP for a logical name, sorted by
// address for stable round-robin cycling. An empty slice is returned when
// none are live; that is not an error.
func (d *Directory) Resolve(serviceName string) []core.Instance {
	d.mu.RLock()
	defer d.mu.RUnlock()

	instances := d.services[serviceName]
	result := make([]core.Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Liveness == core.LivenessUp {
			result = append(result, *inst)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].HostPort() < result[j].HostPort()
	})
	return result
}

// Services returns a snapshot of every registered instance keyed by service
func (d *Directory) Services() map[string][]core.Instance {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make(map[string][]core.Instance, len(d.services))
	for name, instances := range d.services {
		list := make([]core.Instance, 0, len(instances))
		for _, inst := range instances {
			list = append(list, *inst)
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].HostPort() < list[j].HostPort()
		})
		result[name] = list
	}
	return result
}

// Start launches the periodic liveness sweep
func (d *Directory) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return fmt.Errorf("directory already started")
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.sweepLoop(ctx)

	d.logger.Info("liveness sweep started",
		"interval", d.config.SweepInterval,
		"suspectAfter", d.config.SuspectAfter,
		"removeAfter", d.config.RemoveAfter,
	)
	return nil
}

// Stop halts the liveness sweep
func (d *Directory) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		d.wg.Wait()
	}
}

func (d *Directory) sweepLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

// sweep evaluates each instance independently: past the grace period an UP
// instance becomes SUSPECT, past the removal timeout it is dropped. A skewed
// heartbeat timestamp in the future counts as fresh rather than aborting the
// pass.
func (d *Directory) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for serviceName, instances := range d.services {
		for hostPort, inst := range instances {
			age := now.Sub(inst.LastHeartbeat)
			if age < 0 {
				continue
			}

			switch {
			case age > d.config.RemoveAfter:
				inst.Liveness = core.LivenessDown
				delete(instances, hostPort)
				delete(d.owners, hostPort)
				d.logger.Info("instance removed after liveness timeout",
					"service", serviceName,
					"address", hostPort,
					"lastHeartbeat", inst.LastHeartbeat,
				)

			case age > d.config.SuspectAfter:
				if inst.Liveness == core.LivenessUp {
					inst.Liveness = core.LivenessSuspect
					d.logger.Warn("instance missed heartbeats",
						"service", serviceName,
						"address", hostPort,
						"age", age,
					)
				}
			}
		}
		if len(instances) == 0 {
			delete(d.services, serviceName)
		}
	}

	d.updateGaugesLocked()
}

func (d *Directory) updateGaugesLocked() {
	if d.metrics == nil {
		return
	}

	d.metrics.DirectoryInstances.Reset()
	for name, instances := range d.services {
		counts := make(map[core.Liveness]int)
		for _, inst := range instances {
			counts[inst.Liveness]++
		}
		for state, n := range counts {
			d.metrics.DirectoryInstances.WithLabelValues(name, state.String()).Set(float64(n))
		}
	}
}
