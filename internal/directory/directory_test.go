package directory

import (
	"log/slog"
	"testing"
	"time"

	"cloudgateway/internal/core"
)

func newTestDirectory() *Directory {
	return New(Config{
		HeartbeatInterval: 10 * time.Second,
		SweepInterval:     10 * time.Second,
		SuspectAfter:      30 * time.Second,
		RemoveAfter:       90 * time.Second,
	}, slog.Default(), nil)
}

func TestDirectoryRegister(t *testing.T) {
	t.Run("registers and resolves instances", func(t *testing.T) {
		d := newTestDirectory()
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)
		d.Register("ORDER-SERVICE", "10.0.0.2", 9002)

		instances := d.Resolve("ORDER-SERVICE")
		if len(instances) != 2 {
			t.Fatalf("expected 2 instances, got %d", len(instances))
		}
		for _, inst := range instances {
			if inst.Liveness != core.LivenessUp {
				t.Errorf("expected instance %s up, got %s", inst.HostPort(), inst.Liveness)
			}
		}
	})

	t.Run("resolve sorts by address", func(t *testing.T) {
		d := newTestDirectory()
		d.Register("ORDER-SERVICE", "10.0.0.3", 9002)
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)
		d.Register("ORDER-SERVICE", "10.0.0.2", 9002)

		instances := d.Resolve("ORDER-SERVICE")
		for i := 1; i < len(instances); i++ {
			if instances[i-1].HostPort() > instances[i].HostPort() {
				t.Fatalf("instances not sorted: %s before %s",
					instances[i-1].HostPort(), instances[i].HostPort())
			}
		}
	})

	t.Run("register is idempotent", func(t *testing.T) {
		d := newTestDirectory()
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)

		if got := len(d.Resolve("ORDER-SERVICE")); got != 1 {
			t.Fatalf("expected 1 instance, got %d", got)
		}
	})

	t.Run("unknown service resolves to empty", func(t *testing.T) {
		d := newTestDirectory()
		if got := d.Resolve("NO-SUCH-SERVICE"); len(got) != 0 {
			t.Fatalf("expected no instances, got %d", len(got))
		}
	})

	t.Run("address moves when re-registered under a new service", func(t *testing.T) {
		d := newTestDirectory()
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)
		d.Register("PAYMENT-SERVICE", "10.0.0.1", 9002)

		if got := len(d.Resolve("ORDER-SERVICE")); got != 0 {
			t.Errorf("expected address removed from old service, got %d instances", got)
		}
		if got := len(d.Resolve("PAYMENT-SERVICE")); got != 1 {
			t.Errorf("expected 1 instance under new service, got %d", got)
		}
	})
}

func TestDirectoryHeartbeat(t *testing.T) {
	t.Run("heartbeat for unknown instance registers it", func(t *testing.T) {
		d := newTestDirectory()
		d.Heartbeat("PRODUCT-SERVICE", "10.0.0.1", 9001)

		if got := len(d.Resolve("PRODUCT-SERVICE")); got != 1 {
			t.Fatalf("expected implicit registration, got %d instances", got)
		}
	})

	t.Run("heartbeat restores a suspect instance", func(t *testing.T) {
		d := newTestDirectory()
		base := time.Now()
		d.now = func() time.Time { return base }
		d.Register("PRODUCT-SERVICE", "10.0.0.1", 9001)

		// Past the grace period the sweep marks it SUSPECT
		d.now = func() time.Time { return base.Add(40 * time.Second) }
		d.sweep()

		if got := len(d.Resolve("PRODUCT-SERVICE")); got != 0 {
			t.Fatalf("expected suspect instance excluded from resolve, got %d", got)
		}

		d.Heartbeat("PRODUCT-SERVICE", "10.0.0.1", 9001)
		if got := len(d.Resolve("PRODUCT-SERVICE")); got != 1 {
			t.Fatalf("expected instance restored to up, got %d", got)
		}
	})
}

func TestDirectorySweep(t *testing.T) {
	t.Run("marks instances suspect past the grace period", func(t *testing.T) {
		d := newTestDirectory()
		base := time.Now()
		d.now = func() time.Time { return base }
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)
		d.Register("ORDER-SERVICE", "10.0.0.2", 9002)

		d.now = func() time.Time { return base.Add(31 * time.Second) }
		d.Heartbeat("ORDER-SERVICE", "10.0.0.2", 9002)
		d.sweep()

		instances := d.Resolve("ORDER-SERVICE")
		if len(instances) != 1 {
			t.Fatalf("expected 1 live instance, got %d", len(instances))
		}
		if instances[0].Address != "10.0.0.2" {
			t.Errorf("expected the heartbeating instance to survive, got %s", instances[0].Address)
		}

		// Still registered, just not resolvable
		all := d.Services()
		if got := len(all["ORDER-SERVICE"]); got != 2 {
			t.Fatalf("expected 2 registered instances, got %d", got)
		}
	})

	t.Run("removes instances past the removal timeout", func(t *testing.T) {
		d := newTestDirectory()
		base := time.Now()
		d.now = func() time.Time { return base }
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)

		d.now = func() time.Time { return base.Add(91 * time.Second) }
		d.sweep()

		if _, ok := d.Services()["ORDER-SERVICE"]; ok {
			t.Fatal("expected service entry removed once its last instance is dropped")
		}

		// The address is free to register again
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)
		if got := len(d.Resolve("ORDER-SERVICE")); got != 1 {
			t.Fatalf("expected re-registration to succeed, got %d instances", got)
		}
	})

	t.Run("future heartbeat timestamps count as fresh", func(t *testing.T) {
		d := newTestDirectory()
		base := time.Now()
		d.now = func() time.Time { return base.Add(time.Hour) }
		d.Register("ORDER-SERVICE", "10.0.0.1", 9002)

		d.now = func() time.Time { return base }
		d.sweep()

		if got := len(d.Resolve("ORDER-SERVICE")); got != 1 {
			t.Fatalf("expected skewed instance to survive the sweep, got %d", got)
		}
	})
}

func TestDirectoryLifecycle(t *testing.T) {
	t.Run("start twice fails", func(t *testing.T) {
		d := newTestDirectory()
		if err := d.Start(t.Context()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer d.Stop()

		if err := d.Start(t.Context()); err == nil {
			t.Fatal("expected error on second start")
		}
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		d := newTestDirectory()
		d.Stop()
	})
}
