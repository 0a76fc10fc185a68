package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"nexus-hq/nexus/pkg/config"
	"nexus-hq/nexus/pkg/mcp"
	"nexus-hq/nexus/pkg/registry"
)

// newTestHandler builds a Handler over an empty registry, an empty MCP
// registry and a default configuration.
func newTestHandler(t *testing.T) (*Handler, *registry.Registry, *mcp.Registry) {
	t.Helper()

	reg := registry.New()
	mcpReg := mcp.NewRegistry("test")
	t.Cleanup(func() { _ = mcpReg.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	h := New(Config{
		Registry: reg,
		Mcp:      mcpReg,
		Store:    config.NewStore(cfg),
		Client:   http.DefaultClient,
	})
	return h, reg, mcpReg
}

// admitTool runs an in-process MCP server whose implementation name is
// rawServerName and admits its single tool into mcpReg.
func admitTool(t *testing.T, mcpReg *mcp.Registry, serviceName, rawServerName, toolName, result string) {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: rawServerName, Version: "0.1.0"}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        toolName,
		Description: "test tool",
		InputSchema: map[string]any{"type": "object"},
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: result}},
		}, nil
	})

	ctx := context.Background()
	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server Connect() error: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "nexus-test", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect() error: %v", err)
	}
	if err := mcpReg.ConnectSession(ctx, mcp.ServiceConfig{Name: serviceName, Transport: mcp.TransportStdio}, session); err != nil {
		t.Fatalf("ConnectSession() error: %v", err)
	}
}

// registerServer admits a downstream at url into the registry.
func registerServer(t *testing.T, reg *registry.Registry, url, kind string) *registry.Server {
	t.Helper()

	caps, err := registry.ParseCapabilities(kind)
	if err != nil {
		t.Fatalf("ParseCapabilities(%q): %v", kind, err)
	}
	server, err := registry.NewServer(url, caps, "")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := reg.Register(server); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return server
}

func postChat(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandleChatCompletions(w, r)
	return w
}

func TestChatRegisterAndRoute(t *testing.T) {
	h, _, _ := newTestHandler(t)

	// The register handler refreshes the aggregate caches in the
	// background, so only the chat POST records its path.
	pathCh := make(chan string, 1)
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			select {
			case pathCh <- r.URL.Path:
			default:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer downstream.Close()

	// Register through the admin surface, as a client would.
	regBody, _ := json.Marshal(RegisterServerRequest{URL: downstream.URL, Kind: "chat"})
	rw := httptest.NewRecorder()
	h.HandleRegisterServer(rw, httptest.NewRequest(http.MethodPost, "/admin/servers/register", bytes.NewReader(regBody)))
	if rw.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", rw.Code, rw.Body.String())
	}
	var regResp RegisterServerResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &regResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if !strings.HasPrefix(regResp.ID, "chat-server-") {
		t.Errorf("server id = %q, want chat-server-<uuid>", regResp.ID)
	}

	lw := httptest.NewRecorder()
	h.HandleListServers(lw, httptest.NewRequest(http.MethodGet, "/admin/servers", nil))
	var listing map[string][]string
	if err := json.Unmarshal(lw.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing["chat"]) != 1 || listing["chat"][0] != regResp.ID {
		t.Errorf("listing = %v, want chat group with %s", listing, regResp.ID)
	}

	w := postChat(t, h, `{"messages":[{"role":"user","content":"hello"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", w.Code, w.Body.String())
	}
	if got := <-pathCh; got != "/chat/completions" {
		t.Errorf("downstream path = %q, want /chat/completions", got)
	}
}

func TestChatLeastConnections(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer downstream.Close()

	a := registerServer(t, reg, downstream.URL, "chat")
	b := registerServer(t, reg, downstream.URL, "chat")

	for i := 0; i < 5; i++ {
		if w := postChat(t, h, `{"messages":[{"role":"user","content":"x"}]}`); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}

	total := a.Connections() + b.Connections()
	if total != 5 {
		t.Errorf("total connections = %d, want 5", total)
	}
	diff := int64(a.Connections()) - int64(b.Connections())
	if diff < -1 || diff > 1 {
		t.Errorf("connection imbalance = %d, want at most 1", diff)
	}
}

func TestChatToolCallNonStream(t *testing.T) {
	h, reg, mcpReg := newTestHandler(t)
	admitTool(t, mcpReg, "search", mcp.ServiceKeywordSearch, "web_search", "R")

	var secondBody map[string]interface{}
	calls := 0
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			io.WriteString(w, `{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"t1","type":"function","function":{"name":"web_search","arguments":"{\"q\":\"x\"}"}}]}}]}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &secondBody)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"final"}}]}`)
	}))
	defer downstream.Close()

	registerServer(t, reg, downstream.URL, "chat")

	w := postChat(t, h, `{"messages":[{"role":"user","content":"question"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if calls != 2 {
		t.Fatalf("downstream calls = %d, want 2", calls)
	}
	if !strings.Contains(w.Body.String(), "final") {
		t.Errorf("final body = %s", w.Body.String())
	}

	messages := secondBody["messages"].([]interface{})
	if len(messages) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(messages))
	}
	assistant := messages[1].(map[string]interface{})
	if assistant["role"] != "assistant" || assistant["tool_calls"] == nil {
		t.Errorf("assistant splice = %v", assistant)
	}
	tool := messages[2].(map[string]interface{})
	if tool["role"] != "tool" || tool["tool_call_id"] != "t1" {
		t.Errorf("tool splice = %v", tool)
	}
	content := tool["content"].(string)
	if !strings.Contains(content, "---BEGIN CONTEXT---\n\nR\n\n---END CONTEXT---") {
		t.Errorf("search envelope missing from tool content: %q", content)
	}
	if !strings.Contains(content, mcp.DefaultSearchFallbackMessage) {
		t.Errorf("fallback message missing from tool content: %q", content)
	}
	if secondBody["tool_choice"] != "none" {
		t.Errorf("tool_choice = %v, want none", secondBody["tool_choice"])
	}
}

func TestChatToolCallStream(t *testing.T) {
	h, reg, mcpReg := newTestHandler(t)
	admitTool(t, mcpReg, "calc", "calc-server", "calc", "42")

	var secondBody map[string]interface{}
	calls := 0
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("requires-tool-call", "true")
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"t1\",\"function\":{\"name\":\"calc\",\"arguments\":\"{}\"}}]}}]}\n\n")
			io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &secondBody)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"answer\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer downstream.Close()

	registerServer(t, reg, downstream.URL, "chat")

	w := postChat(t, h, `{"stream":true,"messages":[{"role":"user","content":"2+2?"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if calls != 2 {
		t.Fatalf("downstream calls = %d, want 2", calls)
	}
	if !strings.Contains(w.Body.String(), "answer") {
		t.Errorf("relayed body = %q", w.Body.String())
	}

	// calc-server is not search-like, so the tool text is spliced verbatim.
	messages := secondBody["messages"].([]interface{})
	tool := messages[len(messages)-1].(map[string]interface{})
	if tool["content"] != "42" {
		t.Errorf("tool content = %v, want verbatim 42", tool["content"])
	}
}

func TestChatRetryOnToolSchemaRejection(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	var retryBody map[string]interface{}
	calls := 0
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":{"message":"Failed to deserialize generated tool calls: bad schema","type":"operation"}}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &retryBody)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"recovered"}}]}`)
	}))
	defer downstream.Close()

	registerServer(t, reg, downstream.URL, "chat")

	body := `{"tool_choice":"auto","tools":[{"type":"function","function":{"name":"f","parameters":{"type":"object"}}}],` +
		`"messages":[{"role":"user","content":"x"}]}`
	w := postChat(t, h, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if calls != 2 {
		t.Fatalf("downstream calls = %d, want exactly one retry", calls)
	}
	if retryBody["tool_choice"] != "none" {
		t.Errorf("retry tool_choice = %v, want none", retryBody["tool_choice"])
	}
	if !strings.Contains(w.Body.String(), "recovered") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestChatNoRetryWithoutTools(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	calls := 0
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"Failed to deserialize generated tool calls","type":"operation"}}`)
	}))
	defer downstream.Close()

	registerServer(t, reg, downstream.URL, "chat")

	w := postChat(t, h, `{"messages":[{"role":"user","content":"x"}]}`)
	if calls != 1 {
		t.Errorf("downstream calls = %d, want 1 (no retry without tools)", calls)
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want forwarded 500", w.Code)
	}
}

func TestChatNoHealthyServer(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := postChat(t, h, `{"messages":[{"role":"user","content":"x"}]}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for empty chat group", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found_server") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestChatBadRequest(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty messages", body: `{"messages":[]}`},
		{name: "malformed JSON", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(t, h, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestChatHeaderAllowList(t *testing.T) {
	h, reg, _ := newTestHandler(t)

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Internal-Secret", "leak")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer downstream.Close()

	registerServer(t, reg, downstream.URL, "chat")

	w := postChat(t, h, `{"messages":[{"role":"user","content":"x"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Internal-Secret") != "" {
		t.Error("non-allow-listed header leaked to the client")
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want preserved", w.Header().Get("Content-Type"))
	}
}
