package registry

import (
	"context"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultHealthCheckInterval is the sweep interval used when the
	// HEALTH_CHECK_INTERVAL environment variable is unset or invalid.
	DefaultHealthCheckInterval = 60 * time.Second

	// healthCheckIntervalEnv configures the sweep interval in seconds.
	healthCheckIntervalEnv = "HEALTH_CHECK_INTERVAL"
)

// HealthCheckIntervalFromEnv reads HEALTH_CHECK_INTERVAL (seconds) and
// falls back to the default for missing or non-positive values.
func HealthCheckIntervalFromEnv() time.Duration {
	val := os.Getenv(healthCheckIntervalEnv)
	if val == "" {
		return DefaultHealthCheckInterval
	}
	secs, err := strconv.Atoi(val)
	if err != nil || secs <= 0 {
		return DefaultHealthCheckInterval
	}
	return time.Duration(secs) * time.Second
}

// StartSweeper runs the background health sweep until ctx is cancelled.
// Every interval it probes all registered servers and reconciles each
// group's healthy set: unhealthy servers are removed from the set but kept
// in the group, and a server whose probe flips back to healthy is
// re-inserted.
func (r *Registry) StartSweeper(ctx context.Context) {
	go r.runSweeper(ctx)
}

// runSweeper is the sweep loop.
func (r *Registry) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("health sweeper started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("health sweeper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep probes every registered server once. The registry lock is not held
// across probes: the server list is snapshotted first, then each record is
// probed and the healthy sets are reconciled per result.
func (r *Registry) sweep(ctx context.Context) {
	servers := r.Servers()

	for _, s := range servers {
		healthy := s.CheckHealth(ctx, r.client, r.interval)
		r.setHealthy(s.ID, healthy)
		if !healthy {
			r.logger.Warn("server removed from healthy set",
				"server_id", s.ID,
				"url", s.URL,
			)
		}
	}
}

// HealthSnapshot reports each server's id, url and current health state.
// Used by the health push job and the admin surface.
type HealthSnapshot struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Kind      string    `json:"kind"`
	IsHealthy bool      `json:"is_healthy"`
	LastCheck time.Time `json:"last_check"`
}

// Snapshot returns the health state of every registered server.
func (r *Registry) Snapshot() []HealthSnapshot {
	servers := r.Servers()
	healthySet := r.HealthyIDs()

	out := make([]HealthSnapshot, 0, len(servers))
	for _, s := range servers {
		h := s.Health()
		out = append(out, HealthSnapshot{
			ID:        s.ID,
			URL:       s.URL,
			Kind:      s.Capabilities.String(),
			IsHealthy: healthySet[s.ID],
			LastCheck: h.LastCheck,
		})
	}
	return out
}
