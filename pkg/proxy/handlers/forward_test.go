package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nexus-hq/nexus/pkg/registry"
)

func TestForwardEmbeddings(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	var gotPath, gotBody, gotAuth string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"index":0,"embedding":[0.1,0.2]}]}`)
	}))
	defer downstream.Close()

	registerServer(t, reg, downstream.URL, "embeddings")

	r := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(`{"input":["hello"]}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer client-key")
	w := httptest.NewRecorder()
	h.HandleEmbeddings(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gotPath != "/embeddings" {
		t.Errorf("downstream path = %q, want /embeddings", gotPath)
	}
	if gotBody != `{"input":["hello"]}` {
		t.Errorf("body not forwarded verbatim: %q", gotBody)
	}
	if gotAuth != "Bearer client-key" {
		t.Errorf("client Authorization not forwarded: %q", gotAuth)
	}
	if !strings.Contains(w.Body.String(), "embedding") {
		t.Errorf("response not relayed: %s", w.Body.String())
	}
}

func TestForwardUsesRegisteredAPIKey(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	var gotAuth string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{}`)
	}))
	defer downstream.Close()

	caps, err := registry.ParseCapabilities("tts")
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	server, err := registry.NewServer(downstream.URL, caps, "registered-key")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := reg.Register(server); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(`{"input":"hi"}`))
	r.Header.Set("Authorization", "Bearer client-key")
	w := httptest.NewRecorder()
	h.HandleSpeech(w, r)

	if gotAuth != "Bearer registered-key" {
		t.Errorf("Authorization = %q, registered api_key must win", gotAuth)
	}
}

func TestForwardCapabilityRouting(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	var gotPath string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{}`)
	}))
	defer downstream.Close()

	registerServer(t, reg, downstream.URL, "image,transcribe,translate")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
	}{
		{name: "transcriptions", handler: h.HandleTranscriptions, path: "/audio/transcriptions"},
		{name: "translations", handler: h.HandleTranslations, path: "/audio/translations"},
		{name: "image generations", handler: h.HandleImageGenerations, path: "/images/generations"},
		{name: "image edits", handler: h.HandleImageEdits, path: "/images/edits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if gotPath != tt.path {
				t.Errorf("downstream path = %q, want %q", gotPath, tt.path)
			}
		})
	}
}

func TestForwardNoServer(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.HandleEmbeddings(w, httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader("{}")))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for empty embeddings group", w.Code)
	}
}
