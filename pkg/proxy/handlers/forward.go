package handlers

import (
	"net/http"

	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/middleware"
	"nexus-hq/nexus/pkg/registry"
)

// HandleEmbeddings is POST /v1/embeddings.
func (h *Handler) HandleEmbeddings(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, registry.CapEmbeddings, embeddingsPath)
}

// HandleTranscriptions is POST /v1/audio/transcriptions.
func (h *Handler) HandleTranscriptions(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, registry.CapTranscribe, transcriptionsPath)
}

// HandleTranslations is POST /v1/audio/translations.
func (h *Handler) HandleTranslations(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, registry.CapTranslate, translationsPath)
}

// HandleSpeech is POST /v1/audio/speech.
func (h *Handler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, registry.CapTTS, speechPath)
}

// HandleImageGenerations is POST /v1/images/generations.
func (h *Handler) HandleImageGenerations(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, registry.CapImage, imageGenerationsPath)
}

// HandleImageEdits is POST /v1/images/edits.
func (h *Handler) HandleImageEdits(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, registry.CapImage, imageEditsPath)
}

// forward is the byte-level proxy shared by the non-chat inference routes.
// The inbound body streams through untouched (multipart uploads and binary
// audio included); the response comes back through the header allow-list.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, cap registry.Capability, path string) {
	ctx := r.Context()
	capability := cap.String()

	target, err := h.registry.Next(cap)
	if err != nil {
		h.fail(w, capability, err)
		return
	}

	upstream, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL+path, r.Body)
	if err != nil {
		h.fail(w, capability, proxy.Operationf("failed to build upstream request: %v", err))
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		upstream.Header.Set("Content-Type", ct)
	}
	if auth := proxy.UpstreamAuthorization(target.APIKey, r); auth != "" {
		upstream.Header.Set(proxy.AuthorizationHeader, auth)
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		upstream.Header.Set(proxy.RequestIDHeader, id)
	}

	resp, err := h.client.Do(upstream)
	if err != nil {
		if ctx.Err() != nil {
			h.fail(w, capability, proxy.Cancelled())
			return
		}
		h.fail(w, capability, proxy.Operationf("failed to reach downstream server: %v", err))
		return
	}
	defer resp.Body.Close()

	h.observe(capability, resp.StatusCode)
	if err := proxy.ForwardResponse(w, resp); err != nil {
		h.logger.Warn("failed to relay downstream response",
			"capability", capability, "server_id", target.ID, "error", err)
	}
}
