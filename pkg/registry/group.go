package registry

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// group holds the servers registered for one capability plus the subset of
// ids currently considered healthy. Groups are created lazily on first
// registration per capability.
type group struct {
	capability Capability
	servers    []*Server
	healthy    map[string]struct{}
}

// newGroup creates an empty group for one capability bit.
func newGroup(cap Capability) *group {
	return &group{
		capability: cap,
		healthy:    make(map[string]struct{}),
	}
}

// next selects the healthy server with the minimal connections value, ties
// broken by registration order. Returns nil when no healthy member exists.
// Callers hold the registry lock.
func (g *group) next() *Server {
	var candidates []*Server
	for _, s := range g.servers {
		if _, ok := g.healthy[s.ID]; ok {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Single-server groups skip the scan.
	if len(candidates) == 1 {
		return candidates[0]
	}

	best := candidates[0]
	min := best.Connections()
	for _, s := range candidates[1:] {
		if c := s.Connections(); c < min {
			best = s
			min = c
		}
	}
	return best
}

// remove deletes the server with the given id from the group.
// Returns true when the id was present. Callers hold the registry lock.
func (g *group) remove(id string) bool {
	for i, s := range g.servers {
		if s.ID == id {
			g.servers = append(g.servers[:i], g.servers[i+1:]...)
			delete(g.healthy, id)
			return true
		}
	}
	return false
}

// ids returns the ids of all registered members in registration order.
// Callers hold the registry lock.
func (g *group) ids() []string {
	out := make([]string, 0, len(g.servers))
	for _, s := range g.servers {
		out = append(out, s.ID)
	}
	return out
}

// Option configures a Registry.
type Option func(*Registry)

// WithHealthCheckInterval overrides the sweep / fast-path interval.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithHTTPClient overrides the HTTP client used for health probes.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) {
		if c != nil {
			r.client = c
		}
	}
}

// Registry is the dynamic, capability-keyed registry of downstream servers.
//
// The registry lock protects group membership; the per-record atomics and
// mutexes inside Server protect connections and health. No lock is held
// across a network probe or an upstream request.
type Registry struct {
	mu       sync.RWMutex
	groups   map[Capability]*group
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		groups:   make(map[Capability]*group),
		interval: DefaultHealthCheckInterval,
		client:   &http.Client{Timeout: healthProbeTimeout},
		logger:   slog.Default().With("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a server to the group of every capability it advertises.
// Registration fails with ErrServerExists when the id is already present in
// any target group's healthy set. The server starts healthy.
func (r *Registry) Register(s *Server) error {
	if s.Capabilities == 0 {
		return &InvalidServerKindError{Kind: ""}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, bit := range s.Capabilities.Bits() {
		if g, ok := r.groups[bit]; ok {
			if _, dup := g.healthy[s.ID]; dup {
				return &ServerExistsError{ID: s.ID}
			}
		}
	}

	for _, bit := range s.Capabilities.Bits() {
		g, ok := r.groups[bit]
		if !ok {
			g = newGroup(bit)
			r.groups[bit] = g
		}
		g.servers = append(g.servers, s)
		g.healthy[s.ID] = struct{}{}
	}

	r.logger.Info("server registered",
		"server_id", s.ID,
		"url", s.URL,
		"kind", s.Capabilities.String(),
	)
	return nil
}

// Unregister removes the server with the given id from every group that
// contains it. Fails with ErrUnknownServer when no group knows the id;
// unregistering the same id twice errors on the second call.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, g := range r.groups {
		if g.remove(id) {
			found = true
		}
	}
	if !found {
		return &UnknownServerError{ID: id}
	}

	r.logger.Info("server unregistered", "server_id", id)
	return nil
}

// List returns, per capability name, the ids currently registered.
// Every lazily-created group appears, including empty ones.
func (r *Registry) List() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.groups))
	for cap, g := range r.groups {
		out[cap.String()] = g.ids()
	}
	return out
}

// Next selects a server for the capability using least-connections and
// atomically increments its connections counter. Fails with
// NotFoundServerError when the group is empty or fully unhealthy.
func (r *Registry) Next(cap Capability) (TargetServerInfo, error) {
	r.mu.RLock()
	g, ok := r.groups[cap]
	var selected *Server
	if ok {
		selected = g.next()
	}
	r.mu.RUnlock()

	if selected == nil {
		return TargetServerInfo{}, &NotFoundServerError{Capability: cap}
	}

	selected.acquire()
	return selected.Target(), nil
}

// Servers returns all distinct registered servers.
func (r *Registry) Servers() []*Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []*Server
	for _, g := range r.groups {
		for _, s := range g.servers {
			if _, ok := seen[s.ID]; ok {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// HealthyIDs returns the union of all groups' healthy sets.
func (r *Registry) HealthyIDs() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool)
	for _, g := range r.groups {
		for id := range g.healthy {
			out[id] = true
		}
	}
	return out
}

// setHealthy inserts or removes an id in the healthy set of every group
// containing the server. Re-admission after recovery is explicit: a probe
// that flips a server back to healthy re-inserts its id.
func (r *Registry) setHealthy(id string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.groups {
		present := false
		for _, s := range g.servers {
			if s.ID == id {
				present = true
				break
			}
		}
		if !present {
			continue
		}
		if healthy {
			g.healthy[id] = struct{}{}
		} else {
			delete(g.healthy, id)
		}
	}
}
