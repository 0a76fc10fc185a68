package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"nexus-hq/nexus/pkg/config"
	"nexus-hq/nexus/pkg/history"
	"nexus-hq/nexus/pkg/mcp"
	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/middleware"
	"nexus-hq/nexus/pkg/proxy/types"
	"nexus-hq/nexus/pkg/registry"
	"nexus-hq/nexus/pkg/telemetry"
)

// Downstream paths appended to a target server's base URL.
const (
	chatCompletionsPath  = "/chat/completions"
	embeddingsPath       = "/embeddings"
	transcriptionsPath   = "/audio/transcriptions"
	translationsPath     = "/audio/translations"
	speechPath           = "/audio/speech"
	imageGenerationsPath = "/images/generations"
	imageEditsPath       = "/images/edits"
	modelsPath           = "/v1/models"
	infoPath             = "/info"
)

// Config wires a Handler to the application's long-lived state. Recorder
// and Metrics are optional; a nil value disables the concern.
type Config struct {
	Registry *registry.Registry
	Mcp      *mcp.Registry
	Store    *config.Store
	Client   *http.Client
	Recorder *history.Recorder
	Metrics  *telemetry.Metrics
}

// Handler serves every gateway route. One Handler lives for the process.
type Handler struct {
	registry *registry.Registry
	mcp      *mcp.Registry
	config   *config.Store
	client   *http.Client
	recorder *history.Recorder
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	// Aggregated downstream views, refreshed at register/unregister.
	cacheMu    sync.RWMutex
	models     []types.ModelInfo
	serverInfo []ServerInfo
}

// New creates a Handler. The HTTP client defaults to http.DefaultClient;
// upstream calls carry no hard timeout because long-running streams are
// expected.
func New(cfg Config) *Handler {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Handler{
		registry: cfg.Registry,
		mcp:      cfg.Mcp,
		config:   cfg.Store,
		client:   client,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		logger:   slog.Default().With("component", "handlers"),
	}
}

// observe records one completed request when metrics are enabled.
func (h *Handler) observe(capability string, status int) {
	if h.metrics != nil {
		h.metrics.ObserveRequest(capability, strconv.Itoa(status))
	}
}

// fail writes the error response and records the outcome.
func (h *Handler) fail(w http.ResponseWriter, capability string, err error) {
	h.observe(capability, proxy.StatusFor(err))
	proxy.WriteError(w, err)
}

// postJSON sends a JSON payload to target.URL+path. The inbound request,
// when non-nil, supplies the fallback Authorization header; the registered
// api_key wins when present. The request id is always propagated.
func (h *Handler) postJSON(ctx context.Context, inbound *http.Request, target registry.TargetServerInfo, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, proxy.Operationf("failed to encode upstream request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, proxy.Operationf("failed to build upstream request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	auth := ""
	if inbound != nil {
		auth = proxy.UpstreamAuthorization(target.APIKey, inbound)
	} else if target.APIKey != "" {
		auth = "Bearer " + target.APIKey
	}
	if auth != "" {
		req.Header.Set(proxy.AuthorizationHeader, auth)
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		req.Header.Set(proxy.RequestIDHeader, id)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, proxy.Cancelled()
		}
		return nil, proxy.Operationf("failed to reach downstream server: %v", err)
	}
	return resp, nil
}

// readBody drains and closes an upstream body, classifying cancellation.
func readBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, proxy.Cancelled()
		}
		return nil, proxy.Operationf("failed to read upstream body: %v", err)
	}
	return body, nil
}
