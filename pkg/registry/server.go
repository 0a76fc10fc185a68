package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// healthProbeTimeout bounds a single health probe.
	healthProbeTimeout = 10 * time.Second

	// healthProbePath is appended to a server's base URL for probing.
	healthProbePath = "/info"
)

// Health describes the probe-driven health state of a single server.
type Health struct {
	// IsHealthy reports whether the last probe (or registration) left the
	// server in the healthy state.
	IsHealthy bool `json:"is_healthy"`

	// LastCheck is when the health state was last established.
	LastCheck time.Time `json:"last_check"`
}

// Server is a registered downstream inference server.
//
// The connections counter is a monotone load proxy: it is incremented on
// every routing decision and never decremented, so it must not be read as
// "current in-flight requests". Health is guarded by a per-record mutex;
// the mutex is never held across a network probe.
type Server struct {
	// ID uniquely identifies the server within the process.
	// Format: "<capability-list>-server-<uuid>".
	ID string

	// URL is the server's base URL.
	URL string

	// Capabilities is the set of operation classes this server advertises.
	// Must be non-empty.
	Capabilities Capability

	// APIKey is an optional bearer credential forwarded as Authorization
	// when present and non-empty.
	APIKey string

	connections atomic.Uint64

	healthMu sync.Mutex
	health   Health
}

// NewServer creates a Server with a freshly assigned id and an initial
// healthy state.
func NewServer(url string, caps Capability, apiKey string) (*Server, error) {
	if caps == 0 {
		return nil, &InvalidServerKindError{Kind: ""}
	}

	s := &Server{
		ID:           fmt.Sprintf("%s-server-%s", caps.String(), uuid.NewString()),
		URL:          url,
		Capabilities: caps,
		APIKey:       apiKey,
		health: Health{
			IsHealthy: true,
			LastCheck: time.Now(),
		},
	}
	return s, nil
}

// Connections returns the current value of the monotone connections counter.
func (s *Server) Connections() uint64 {
	return s.connections.Load()
}

// acquire increments the connections counter and returns the new value.
// Wraparound is permissible; the counter only breaks routing ties.
func (s *Server) acquire() uint64 {
	return s.connections.Add(1)
}

// Health returns a snapshot of the server's health state.
func (s *Server) Health() Health {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	return s.health
}

// Target returns a routing snapshot decoupled from the live record.
func (s *Server) Target() TargetServerInfo {
	return TargetServerInfo{
		ID:     s.ID,
		URL:    s.URL,
		APIKey: s.APIKey,
	}
}

// CheckHealth drives the two-state health machine.
//
// If the server is currently healthy and the last check is more recent than
// interval, the cached state is returned without probing. Otherwise a GET
// {url}/info probe with a 10-second timeout decides:
//
//   - HTTP 2xx            -> healthy
//   - HTTP 408 or timeout -> healthy (busy but reachable; long-running
//     inference must not be declared dead)
//   - anything else       -> unhealthy
//
// LastCheck is updated on every probe.
func (s *Server) CheckHealth(ctx context.Context, client *http.Client, interval time.Duration) bool {
	s.healthMu.Lock()
	h := s.health
	s.healthMu.Unlock()

	if h.IsHealthy && time.Since(h.LastCheck) < interval {
		return true
	}

	healthy := s.probe(ctx, client)

	s.healthMu.Lock()
	s.health.IsHealthy = healthy
	s.health.LastCheck = time.Now()
	s.healthMu.Unlock()

	return healthy
}

// probe performs a single GET {url}/info request and classifies the outcome.
func (s *Server) probe(ctx context.Context, client *http.Client) bool {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, s.URL+healthProbePath, nil)
	if err != nil {
		return false
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		// A slow server is busy, not dead.
		return isTimeout(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true
	}
	return resp.StatusCode == http.StatusRequestTimeout
}

// isTimeout reports whether err represents a client-side timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// TargetServerInfo is a snapshot returned by routing. It decouples callers
// from the live Server record so no lock is held across upstream awaits.
type TargetServerInfo struct {
	// ID is the selected server's id.
	ID string `json:"id"`

	// URL is the selected server's base URL.
	URL string `json:"url"`

	// APIKey is the credential registered for the server, if any.
	APIKey string `json:"api_key,omitempty"`
}

// serverJSON is the wire shape of a Server. The connections counter and
// health state are runtime-only and reset on deserialization.
type serverJSON struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Kind   string `json:"kind"`
	APIKey string `json:"api_key,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Server) MarshalJSON() ([]byte, error) {
	return json.Marshal(serverJSON{
		ID:     s.ID,
		URL:    s.URL,
		Kind:   s.Capabilities.String(),
		APIKey: s.APIKey,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Identity fields are restored;
// connections resets to zero and health resets to the default healthy state.
func (s *Server) UnmarshalJSON(data []byte) error {
	var wire serverJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	caps, err := ParseCapabilities(wire.Kind)
	if err != nil {
		return err
	}

	s.ID = wire.ID
	s.URL = wire.URL
	s.Capabilities = caps
	s.APIKey = wire.APIKey
	s.connections.Store(0)
	s.health = Health{IsHealthy: true, LastCheck: time.Now()}
	return nil
}
