package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/types"
)

// Transport names accepted in the configuration file.
const (
	TransportSSE            = "sse"
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "stream-http"
)

// DefaultSearchFallbackMessage is returned to the LLM when a search-like
// tool produces empty context and the service has no fallback of its own.
const DefaultSearchFallbackMessage = "I'm sorry, I don't know the answer to that question. Please contact the admin for more information."

// Keyword-search service names the retriever dispatches against.
const (
	ServiceKeywordSearch = "gaia-keyword-search"
	ServiceElasticSearch = "gaia-elastic-search"
	ServiceTidbSearch    = "gaia-tidb-search"
	ServiceQdrant        = "gaia-qdrant"
)

// searchServices names the MCP servers whose tool results are retrieved
// context rather than regular tool output.
var searchServices = map[string]bool{
	ServiceKeywordSearch: true,
	ServiceElasticSearch: true,
	ServiceTidbSearch:    true,
	ServiceQdrant:        true,
}

// IsSearchService reports whether the raw server name identifies a
// search-like MCP service.
func IsSearchService(rawName string) bool {
	return searchServices[rawName]
}

// ServiceConfig describes one MCP tool server to dial at startup.
type ServiceConfig struct {
	// Name is the service name used in the service map.
	Name string

	// Transport is sse, stdio or stream-http.
	Transport string

	// URL is the endpoint for sse and stream-http transports.
	URL string

	// Command launches a stdio server, split on spaces into argv.
	Command string

	// Enable gates dialing; disabled services are skipped.
	Enable bool

	// FallbackMessage overrides DefaultSearchFallbackMessage for this
	// service when non-empty.
	FallbackMessage string
}

// Service is one live MCP connection plus the tool names it advertises.
// Calls are serialized per service because MCP sessions may be
// non-reentrant.
type Service struct {
	// Name is the configured service name.
	Name string

	// Tools lists the tool names this service advertises.
	Tools []string

	// FallbackMessage is the optional per-service search fallback.
	FallbackMessage string

	callMu  sync.Mutex
	session *mcpsdk.ClientSession
}

// RawServerName returns the name the server reported during the MCP
// initialize handshake, or "" when unavailable.
func (s *Service) RawServerName() string {
	if s.session == nil {
		return ""
	}
	init := s.session.InitializeResult()
	if init == nil || init.ServerInfo == nil {
		return ""
	}
	return init.ServerInfo.Name
}

// SearchFallback returns the fallback text interpolated into the search
// envelope for this service.
func (s *Service) SearchFallback() string {
	if s.FallbackMessage != "" {
		return s.FallbackMessage
	}
	return DefaultSearchFallbackMessage
}

// toolDef is one advertised tool retained for request augmentation.
type toolDef struct {
	name        string
	description string
	schema      map[string]interface{}
	service     string
}

// Registry holds every connected MCP service and the tool-name to
// service-name mapping. A single Registry lives in application state for
// the process lifetime; mutation is confined to startup.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]string   // tool name -> service name
	defs     map[string]toolDef  // tool name -> advertised schema
	services map[string]*Service // service name -> live connection

	client *mcpsdk.Client
	logger *slog.Logger
}

// NewRegistry creates an empty Registry identifying itself to MCP servers
// as nexus at the given version.
func NewRegistry(version string) *Registry {
	return &Registry{
		tools:    make(map[string]string),
		defs:     make(map[string]toolDef),
		services: make(map[string]*Service),
		client:   mcpsdk.NewClient(&mcpsdk.Implementation{Name: "nexus", Version: version}, nil),
		logger:   slog.Default().With("component", "mcp"),
	}
}

// Connect dials the MCP server described by cfg, lists its tools, and
// stores the resulting Service. SSE endpoints must end with /sse and
// streamable-HTTP endpoints with /mcp; any other transport name is
// rejected.
func (r *Registry) Connect(ctx context.Context, cfg ServiceConfig) error {
	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportSSE:
		if !strings.HasSuffix(cfg.URL, "/sse") {
			return proxy.Operationf("SSE endpoint for MCP server %q must end with /sse, got %q", cfg.Name, cfg.URL)
		}
		transport = &mcpsdk.SSEClientTransport{Endpoint: cfg.URL}

	case TransportStreamableHTTP:
		if !strings.HasSuffix(cfg.URL, "/mcp") {
			return proxy.Operationf("streamable-HTTP endpoint for MCP server %q must end with /mcp, got %q", cfg.Name, cfg.URL)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	case TransportStdio:
		parts := strings.Fields(cfg.Command)
		if len(parts) == 0 {
			return proxy.Operationf("stdio MCP server %q requires a non-empty command", cfg.Name)
		}
		transport = &mcpsdk.CommandTransport{Command: exec.CommandContext(ctx, parts[0], parts[1:]...)}

	default:
		return proxy.Operationf("Unsupported transport %q for MCP server %q", cfg.Transport, cfg.Name)
	}

	session, err := r.client.Connect(ctx, transport, nil)
	if err != nil {
		return proxy.Operationf("failed to connect to MCP server %q: %v", cfg.Name, err)
	}

	return r.ConnectSession(ctx, cfg, session)
}

// ConnectSession installs an already-established session as a service:
// it lists the session's tools and populates the tool and service maps.
// Useful for in-process MCP servers wired over in-memory transports.
func (r *Registry) ConnectSession(ctx context.Context, cfg ServiceConfig, session *mcpsdk.ClientSession) error {
	listed, err := session.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		_ = session.Close()
		return proxy.Operationf("failed to list tools for MCP server %q: %v", cfg.Name, err)
	}

	svc := &Service{
		Name:            cfg.Name,
		FallbackMessage: cfg.FallbackMessage,
		session:         session,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range listed.Tools {
		if prev, ok := r.tools[tool.Name]; ok && prev != cfg.Name {
			r.logger.Warn("tool name conflict, keeping last writer",
				"tool", tool.Name, "previous_service", prev, "service", cfg.Name)
		}
		r.tools[tool.Name] = cfg.Name
		r.defs[tool.Name] = toolDef{
			name:        tool.Name,
			description: tool.Description,
			schema:      schemaToMap(tool.InputSchema),
			service:     cfg.Name,
		}
		svc.Tools = append(svc.Tools, tool.Name)
	}

	r.services[cfg.Name] = svc
	r.logger.Info("connected MCP server",
		"service", cfg.Name, "transport", cfg.Transport, "tools", len(svc.Tools))
	return nil
}

// Tools returns the advertised tool schemas as OpenAI tool descriptors for
// request augmentation.
func (r *Registry) Tools() []types.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Tool, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, types.Tool{
			Type: "function",
			Function: types.FunctionDefinition{
				Name:        def.name,
				Description: def.description,
				Parameters:  def.schema,
			},
		})
	}
	return out
}

// ServiceForTool resolves a tool name to its owning Service.
func (r *Registry) ServiceForTool(toolName string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	serviceName, ok := r.tools[toolName]
	if !ok {
		return nil, &proxy.McpNotFoundClientError{}
	}
	svc, ok := r.services[serviceName]
	if !ok {
		return nil, &proxy.McpNotFoundClientError{}
	}
	return svc, nil
}

// Service returns the named service, or nil when not connected.
func (r *Registry) Service(name string) *Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[name]
}

// FirstService returns the first connected service among names, in order.
func (r *Registry) FirstService(names ...string) *Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if svc, ok := r.services[name]; ok {
			return svc
		}
	}
	return nil
}

// CallTool invokes a tool on svc and returns the text of the first content
// item. An empty content array is an error; so is any non-text first item.
func (r *Registry) CallTool(ctx context.Context, svc *Service, toolName string, args map[string]interface{}) (string, error) {
	svc.callMu.Lock()
	result, err := svc.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	svc.callMu.Unlock()
	if err != nil {
		return "", proxy.Operationf("MCP tool %q failed: %v", toolName, err)
	}

	if len(result.Content) == 0 {
		return "", &proxy.McpEmptyContentError{}
	}

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	if !ok {
		return "", proxy.Operationf("Only text content is supported, tool %q returned %T", toolName, result.Content[0])
	}
	return text.Text, nil
}

// Close shuts down every connected service.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, svc := range r.services {
		if err := svc.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.services, name)
	}
	r.tools = make(map[string]string)
	r.defs = make(map[string]toolDef)
	return firstErr
}

// schemaToMap converts an advertised input schema to a plain map.
func schemaToMap(schema interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object"}
	}
	if m, ok := schema.(map[string]interface{}); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}
