package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"nexus-hq/nexus/pkg/proxy/types"
)

func TestModelsAggregation(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			io.WriteString(w, `{"object":"list","data":[{"id":"qwen-7b","owned_by":"a"},{"id":"shared","owned_by":"a"}]}`)
		case "/info":
			io.WriteString(w, `{"version":"1.0"}`)
		}
	}))
	defer serverA.Close()

	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			io.WriteString(w, `{"object":"list","data":[{"id":"llama-8b","owned_by":"b"},{"id":"shared","owned_by":"b"}]}`)
		case "/info":
			io.WriteString(w, `{"version":"2.0"}`)
		}
	}))
	defer serverB.Close()

	registerServer(t, reg, serverA.URL, "chat")
	registerServer(t, reg, serverB.URL, "chat")

	w := httptest.NewRecorder()
	h.HandleModels(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var list types.ModelList
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Object != "list" {
		t.Errorf("object = %q, want list", list.Object)
	}
	ids := map[string]int{}
	for _, m := range list.Data {
		ids[m.ID]++
	}
	if ids["qwen-7b"] != 1 || ids["llama-8b"] != 1 {
		t.Errorf("aggregated models = %v", ids)
	}
	if ids["shared"] != 1 {
		t.Errorf("duplicate model id not deduplicated: %v", ids)
	}
}

func TestInfoAggregation(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/info" {
			io.WriteString(w, `{"version":"3.1","runtime":"llama.cpp"}`)
			return
		}
		io.WriteString(w, `{"object":"list","data":[]}`)
	}))
	defer downstream.Close()

	server := registerServer(t, reg, downstream.URL, "chat,embeddings")

	w := httptest.NewRecorder()
	h.HandleInfo(w, httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var info []ServerInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(info) != 1 {
		t.Fatalf("entries = %d, want 1", len(info))
	}
	if info[0].ID != server.ID || info[0].Kind != "chat,embeddings" {
		t.Errorf("entry = %+v", info[0])
	}
	var payload map[string]string
	if err := json.Unmarshal(info[0].Info, &payload); err != nil {
		t.Fatalf("decode info payload: %v", err)
	}
	if payload["runtime"] != "llama.cpp" {
		t.Errorf("info payload = %v", payload)
	}
}

func TestInfoUnreachableServerKeepsIdentity(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	server := registerServer(t, reg, "http://127.0.0.1:1", "chat")

	w := httptest.NewRecorder()
	h.HandleInfo(w, httptest.NewRequest(http.MethodGet, "/v1/info", nil))

	var info []ServerInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(info) != 1 || info[0].ID != server.ID {
		t.Fatalf("entries = %+v, want the unreachable server's identity", info)
	}
	if len(info[0].Info) != 0 {
		t.Errorf("info payload = %s, want empty for unreachable server", info[0].Info)
	}
}

func TestModelsEmptyRegistry(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.HandleModels(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var list types.ModelList
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 0 {
		t.Errorf("empty registry payload = %+v", list)
	}
}
