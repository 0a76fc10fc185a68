package config

import (
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"nexus-hq/nexus/pkg/proxy"
)

// LoadConfig loads the TOML configuration from path, applies defaults, and
// validates. Any failure is wrapped as the startup config-load error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &proxy.FailedToLoadConfigError{Reason: err}
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &proxy.FailedToLoadConfigError{Reason: err}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, &proxy.FailedToLoadConfigError{Reason: err}
	}

	return &cfg, nil
}

// Store guards the live configuration. Readers run on every request;
// writers only at startup and on hot reload.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore wraps an already-loaded configuration.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns the current configuration. Callers must treat the result as
// read-only.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Rag returns the current RAG section, or nil when retrieval is disabled.
func (s *Store) Rag() *RagConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.Rag == nil {
		return nil
	}
	rag := *s.cfg.Rag
	return &rag
}

// swapRag replaces the RAG section. Used by the hot-reload watcher; the
// rest of the configuration stays fixed after startup.
func (s *Store) swapRag(rag *RagConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.cfg
	next.Rag = rag
	s.cfg = &next
}
