package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/registry"
)

// adminCapability labels admin traffic in the request metrics.
const adminCapability = "admin"

// cacheRefreshTimeout bounds the downstream fan-out triggered by a
// registration change.
const cacheRefreshTimeout = 30 * time.Second

// RegisterServerRequest is the POST /admin/servers/register body.
type RegisterServerRequest struct {
	URL    string `json:"url"`
	Kind   string `json:"kind"`
	APIKey string `json:"api_key,omitempty"`
}

// RegisterServerResponse echoes the assigned server identity.
type RegisterServerResponse struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// UnregisterServerRequest is the POST /admin/servers/unregister body.
type UnregisterServerRequest struct {
	ServerID string `json:"server_id"`
}

// UnregisterServerResponse confirms the removal.
type UnregisterServerResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// HandleRegisterServer is POST /admin/servers/register. The kind field is a
// comma-separated capability list; the server joins the group of every
// capability it names and starts healthy.
func (h *Handler) HandleRegisterServer(w http.ResponseWriter, r *http.Request) {
	var body RegisterServerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.fail(w, adminCapability, &proxy.BadRequestError{Message: "invalid JSON: " + err.Error()})
		return
	}
	if body.URL == "" {
		h.fail(w, adminCapability, &proxy.BadRequestError{Message: "url must not be empty"})
		return
	}

	caps, err := registry.ParseCapabilities(body.Kind)
	if err != nil {
		h.fail(w, adminCapability, err)
		return
	}

	server, err := registry.NewServer(body.URL, caps, body.APIKey)
	if err != nil {
		h.fail(w, adminCapability, err)
		return
	}
	if err := h.registry.Register(server); err != nil {
		h.fail(w, adminCapability, err)
		return
	}

	go h.refreshCaches()

	h.observe(adminCapability, http.StatusOK)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, RegisterServerResponse{
		ID:   server.ID,
		URL:  server.URL,
		Kind: server.Capabilities.String(),
	})
}

// HandleUnregisterServer is POST /admin/servers/unregister.
func (h *Handler) HandleUnregisterServer(w http.ResponseWriter, r *http.Request) {
	var body UnregisterServerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.fail(w, adminCapability, &proxy.BadRequestError{Message: "invalid JSON: " + err.Error()})
		return
	}

	if err := h.registry.Unregister(body.ServerID); err != nil {
		h.fail(w, adminCapability, err)
		return
	}

	go h.refreshCaches()

	h.observe(adminCapability, http.StatusOK)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, UnregisterServerResponse{
		Message: "Server unregistered successfully",
		ID:      body.ServerID,
	})
}

// HandleListServers is GET /admin/servers. Every lazily-created capability
// group appears, including empty ones.
func (h *Handler) HandleListServers(w http.ResponseWriter, r *http.Request) {
	h.observe(adminCapability, http.StatusOK)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, h.registry.List())
}

// refreshCaches rebuilds the aggregated models and server-info views after
// a registration change.
func (h *Handler) refreshCaches() {
	ctx, cancel := context.WithTimeout(context.Background(), cacheRefreshTimeout)
	defer cancel()
	h.refreshAggregates(ctx)
}
