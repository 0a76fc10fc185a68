package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/types"
)

// ServerInfo is one entry of the aggregated GET /v1/info payload.
type ServerInfo struct {
	// ID is the registered server id.
	ID string `json:"id"`

	// URL is the server's base URL.
	URL string `json:"url"`

	// Kind is the comma-separated capability list.
	Kind string `json:"kind"`

	// Info is the raw body the server returned from GET {url}/info, when
	// reachable.
	Info json.RawMessage `json:"info,omitempty"`
}

// HandleModels is GET /v1/models. The aggregated list is cached and
// refreshed at register/unregister; an empty cache triggers a synchronous
// fan-out.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	h.cacheMu.RLock()
	models := h.models
	h.cacheMu.RUnlock()

	if models == nil {
		h.refreshAggregates(r.Context())
		h.cacheMu.RLock()
		models = h.models
		h.cacheMu.RUnlock()
	}

	if models == nil {
		models = []types.ModelInfo{}
	}
	h.observe(adminCapability, http.StatusOK)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, types.ModelList{Object: "list", Data: models})
}

// HandleInfo is GET /v1/info.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	h.cacheMu.RLock()
	info := h.serverInfo
	h.cacheMu.RUnlock()

	if info == nil {
		h.refreshAggregates(r.Context())
		h.cacheMu.RLock()
		info = h.serverInfo
		h.cacheMu.RUnlock()
	}

	if info == nil {
		info = []ServerInfo{}
	}
	h.observe(adminCapability, http.StatusOK)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, info)
}

// ServerInfoSnapshot returns the current aggregated server-info view,
// refreshing it when empty. Used by the push scheduler.
func (h *Handler) ServerInfoSnapshot(ctx context.Context) []ServerInfo {
	h.cacheMu.RLock()
	info := h.serverInfo
	h.cacheMu.RUnlock()

	if info == nil {
		h.refreshAggregates(ctx)
		h.cacheMu.RLock()
		info = h.serverInfo
		h.cacheMu.RUnlock()
	}
	if info == nil {
		return []ServerInfo{}
	}
	return info
}

// refreshAggregates fans out GET {url}/v1/models and GET {url}/info to
// every registered server and replaces both caches. Unreachable servers are
// logged and skipped; their identity still appears in the info view.
func (h *Handler) refreshAggregates(ctx context.Context) {
	servers := h.registry.Servers()

	models := make([]types.ModelInfo, 0)
	seen := make(map[string]struct{})
	info := make([]ServerInfo, 0, len(servers))

	for _, s := range servers {
		entry := ServerInfo{ID: s.ID, URL: s.URL, Kind: s.Capabilities.String()}

		if raw, err := h.fetch(ctx, s.URL+infoPath, s.APIKey); err == nil {
			entry.Info = raw
		} else {
			h.logger.Warn("failed to fetch server info", "server_id", s.ID, "error", err)
		}
		info = append(info, entry)

		raw, err := h.fetch(ctx, s.URL+modelsPath, s.APIKey)
		if err != nil {
			h.logger.Warn("failed to fetch server models", "server_id", s.ID, "error", err)
			continue
		}
		var list types.ModelList
		if err := json.Unmarshal(raw, &list); err != nil {
			h.logger.Warn("failed to decode server models", "server_id", s.ID, "error", err)
			continue
		}
		for _, m := range list.Data {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			models = append(models, m)
		}
	}

	h.cacheMu.Lock()
	h.models = models
	h.serverInfo = info
	h.cacheMu.Unlock()
}

// fetch performs one authenticated GET and returns the raw body.
func (h *Handler) fetch(ctx context.Context, url, apiKey string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set(proxy.AuthorizationHeader, "Bearer "+apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, proxy.Operationf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
