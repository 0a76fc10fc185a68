// Package push periodically POSTs the gateway's aggregated server-info and
// server-health snapshots to external collector URLs. Both pushes are
// optional: an empty URL disables the corresponding job.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nexus-hq/nexus/pkg/proxy/handlers"
	"nexus-hq/nexus/pkg/registry"
)

// DefaultSchedule pushes every five minutes.
const DefaultSchedule = "@every 5m"

// pushTimeout bounds one outbound POST.
const pushTimeout = 30 * time.Second

// Config wires a Pusher to its sources and destinations.
type Config struct {
	// ServerInfoURL receives the aggregated server-info payload. Empty
	// disables the job.
	ServerInfoURL string

	// ServerHealthURL receives health snapshots. Empty disables the job.
	ServerHealthURL string

	// Schedule is a cron expression or @every descriptor. Defaults to
	// DefaultSchedule.
	Schedule string

	// Client is the HTTP client for outbound pushes. Defaults to a client
	// with the push timeout.
	Client *http.Client
}

// Pusher runs the scheduled pushes.
type Pusher struct {
	cfg      Config
	handler  *handlers.Handler
	registry *registry.Registry
	cron     *cron.Cron
	client   *http.Client

	mu      sync.Mutex
	running bool

	logger *slog.Logger
}

// New creates a Pusher over the handler's aggregated views and the
// registry's health snapshots.
func New(cfg Config, handler *handlers.Handler, reg *registry.Registry) *Pusher {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: pushTimeout}
	}
	return &Pusher{
		cfg:      cfg,
		handler:  handler,
		registry: reg,
		cron:     cron.New(),
		client:   client,
		logger:   slog.Default().With("component", "push"),
	}
}

// Start schedules the configured jobs. With no URLs configured it does
// nothing and returns nil. The jobs stop when ctx is cancelled.
func (p *Pusher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.ServerInfoURL == "" && p.cfg.ServerHealthURL == "" {
		p.logger.Info("no push URLs configured, skipping push scheduler")
		return nil
	}

	if p.cfg.ServerInfoURL != "" {
		if _, err := p.cron.AddFunc(p.cfg.Schedule, func() { p.pushServerInfo(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule server-info push: %w", err)
		}
	}
	if p.cfg.ServerHealthURL != "" {
		if _, err := p.cron.AddFunc(p.cfg.Schedule, func() { p.pushServerHealth(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule server-health push: %w", err)
		}
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("push scheduler started",
		"schedule", p.cfg.Schedule,
		"server_info", p.cfg.ServerInfoURL != "",
		"server_health", p.cfg.ServerHealthURL != "",
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for in-flight jobs.
func (p *Pusher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("push scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (p *Pusher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// pushServerInfo sends the aggregated server-info view.
func (p *Pusher) pushServerInfo(ctx context.Context) {
	info := p.handler.ServerInfoSnapshot(ctx)
	if err := p.post(ctx, p.cfg.ServerInfoURL, info); err != nil {
		p.logger.Error("server-info push failed", "error", err)
		return
	}
	p.logger.Debug("server-info push completed", "servers", len(info))
}

// pushServerHealth sends the per-server health snapshot.
func (p *Pusher) pushServerHealth(ctx context.Context) {
	snapshot := p.registry.Snapshot()
	if err := p.post(ctx, p.cfg.ServerHealthURL, snapshot); err != nil {
		p.logger.Error("server-health push failed", "error", err)
		return
	}
	p.logger.Debug("server-health push completed", "servers", len(snapshot))
}

// post sends one JSON payload.
func (p *Pusher) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pushCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
