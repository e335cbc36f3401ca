package router

import (
	"sync/atomic"

	"cloudgateway/internal/core"
	"cloudgateway/pkg/errors"
)

// RoundRobinBalancer selects instances in rotation. The candidate set is
// recomputed on every call since membership changes between calls; over a
// fixed set of size k, k consecutive selections return each instance once.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

// NewRoundRobinBalancer creates a new round-robin balancer
func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

// Select selects the next instance. The instances passed in are already
// filtered to live ones by the directory.
func (b *RoundRobinBalancer) Select(instances []core.Instance) (*core.Instance, error) {
	if len(instances) == 0 {
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "no live instances")
	}

	index := b.counter.Add(1) % uint64(len(instances))
	return &instances[index], nil
}
