package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nexus-hq/nexus/pkg/history"
	"nexus-hq/nexus/pkg/mcp"
	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/middleware"
	"nexus-hq/nexus/pkg/proxy/types"
	"nexus-hq/nexus/pkg/rag"
	"nexus-hq/nexus/pkg/registry"
)

// toolSchemaRejection is the downstream error fragment that triggers the
// single tool-choice retry.
const toolSchemaRejection = "Failed to deserialize generated tool calls"

// searchEnvelope wraps the text of a search-like MCP tool before it is
// spliced into the conversation as a tool message. The first placeholder is
// the service's fallback message, the second the tool text.
const searchEnvelope = "Please answer the question based on the information between **---BEGIN CONTEXT---** and **---END CONTEXT---**. " +
	"Do not use any external knowledge. " +
	"If the information between **---BEGIN CONTEXT---** and **---END CONTEXT---** is empty, please respond with \"%s\". " +
	"Note that DO NOT use any tools if provided.\n\n---BEGIN CONTEXT---\n\n%s\n\n---END CONTEXT---"

// HandleChatCompletions is POST /v1/chat/completions.
//
// The pipeline is: parse, optional retrieval augmentation, MCP tool
// augmentation, least-connections dispatch with the tool-schema retry,
// response classification, and at most one tool-call round trip.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capability := registry.CapChat.String()

	req, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		h.fail(w, capability, err)
		return
	}

	logger := h.logger.With("request_id", middleware.GetRequestID(ctx))

	if ragCfg := h.config.Rag(); ragCfg != nil && ragCfg.Enable {
		client := &requestScopedClient{handler: h, inbound: r}
		retriever := rag.NewRetriever(h.mcp, client, client, rag.Options{
			Policy:          rag.MergePolicy(ragCfg.Policy),
			ContextWindow:   ragCfg.ContextWindow,
			RagPrompt:       ragCfg.RagPrompt,
			SystemSupported: true,
			Observer:        h.observeRetrieval,
		})
		if err := retriever.Retrieve(ctx, req); err != nil {
			h.fail(w, capability, err)
			return
		}
	}

	if mcpTools := h.mcp.Tools(); len(mcpTools) > 0 {
		req.Tools = append(req.Tools, mcpTools...)
		if req.ToolChoiceIsUnsetOrNone() {
			req.ToolChoice = types.ToolChoiceAuto
		}
	}

	target, err := h.registry.Next(registry.CapChat)
	if err != nil {
		h.fail(w, capability, err)
		return
	}
	logger.Debug("chat request routed", "server_id", target.ID, "stream", req.Stream)

	resp, err := h.dispatch(r, target, req)
	if err != nil {
		h.fail(w, capability, err)
		return
	}

	h.classify(w, r, target, req, resp, logger)
}

// dispatch sends the chat request downstream. A downstream rejection of the
// generated tool-call schema is retried exactly once with tool_choice set
// to none; the retry condition requires at least one declared tool and a
// tool_choice other than none.
func (h *Handler) dispatch(r *http.Request, target registry.TargetServerInfo, req *types.ChatCompletionRequest) (*http.Response, error) {
	resp, err := h.postJSON(r.Context(), r, target, chatCompletionsPath, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	if len(req.Tools) == 0 || req.ToolChoiceIsNone() {
		return resp, nil
	}

	body, err := readBody(r.Context(), resp)
	if err != nil {
		return nil, err
	}

	if strings.Contains(string(body), toolSchemaRejection) {
		h.logger.Warn("downstream rejected generated tool calls, retrying without tools",
			"server_id", target.ID, "status", resp.StatusCode)
		retry := *req
		retry.ToolChoice = types.ToolChoiceNone
		return h.postJSON(r.Context(), r, target, chatCompletionsPath, &retry)
	}

	// Not the retry case; restore the body so the error response can be
	// forwarded verbatim.
	resp.Body = io.NopCloser(strings.NewReader(string(body)))
	return resp, nil
}

// classify routes a downstream response to plain forwarding or the
// tool-call loop, per status, stream flag, and the requires-tool-call
// header.
func (h *Handler) classify(w http.ResponseWriter, r *http.Request, target registry.TargetServerInfo, req *types.ChatCompletionRequest, resp *http.Response, logger *slog.Logger) {
	capability := registry.CapChat.String()

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		h.observe(capability, resp.StatusCode)
		if err := proxy.ForwardResponse(w, resp); err != nil {
			logger.Warn("failed to forward downstream error response", "error", err)
		}
		return
	}

	if req.Stream {
		if strings.EqualFold(resp.Header.Get(proxy.RequiresToolCallHeader), "true") {
			calls, err := proxy.ExtractToolCalls(resp.Body)
			resp.Body.Close()
			if err != nil {
				h.fail(w, capability, err)
				return
			}
			if len(calls) == 0 {
				h.fail(w, capability, proxy.Operationf("Tool call expected but the stream carried none"))
				return
			}
			h.runToolCall(w, r, target, req, calls)
			return
		}

		defer resp.Body.Close()
		h.observe(capability, resp.StatusCode)
		if err := proxy.ForwardResponse(w, resp); err != nil {
			logger.Warn("failed to relay chat stream", "error", err)
		}
		return
	}

	body, err := readBody(r.Context(), resp)
	if err != nil {
		h.fail(w, capability, err)
		return
	}

	var parsed types.ChatCompletionResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil {
		if calls := parsed.ToolCalls(); len(calls) > 0 {
			h.runToolCall(w, r, target, req, calls)
			return
		}
	}

	h.observe(capability, resp.StatusCode)
	proxy.CopyResponseHeaders(w, resp, true)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		logger.Warn("failed to write chat response", "error", err)
	}
	h.record(r, req, target, string(body), "")
}

// runToolCall performs the single tool-call round trip: invoke the MCP
// tool named by the first call, splice the result into the conversation,
// and re-send to the same target. Nested tool calls are not supported.
func (h *Handler) runToolCall(w http.ResponseWriter, r *http.Request, target registry.TargetServerInfo, req *types.ChatCompletionRequest, calls []types.ToolCall) {
	ctx := r.Context()
	capability := registry.CapChat.String()
	call := calls[0]

	svc, err := h.mcp.ServiceForTool(call.Function.Name)
	if err != nil {
		h.fail(w, capability, err)
		return
	}

	// Non-JSON arguments are tolerated and passed as absent.
	var args map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(call.Function.Arguments), &args); jsonErr != nil {
		args = nil
	}

	text, err := h.mcp.CallTool(ctx, svc, call.Function.Name, args)
	if err != nil {
		h.fail(w, capability, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveToolCall(svc.Name)
	}

	content := text
	if mcp.IsSearchService(svc.RawServerName()) {
		content = fmt.Sprintf(searchEnvelope, svc.SearchFallback(), text)
	}

	req.Messages = append(req.Messages,
		types.Message{Role: types.RoleAssistant, ToolCalls: calls},
		types.Message{Role: types.RoleTool, Content: content, ToolCallID: call.ID},
	)
	if req.ToolChoice != nil {
		req.ToolChoice = types.ToolChoiceNone
	}

	resp, err := h.postJSON(ctx, r, target, chatCompletionsPath, req)
	if err != nil {
		h.fail(w, capability, err)
		return
	}

	if req.Stream {
		defer resp.Body.Close()
		h.observe(capability, resp.StatusCode)
		if fwdErr := proxy.ForwardResponse(w, resp); fwdErr != nil {
			h.logger.Warn("failed to relay tool-call follow-up stream", "error", fwdErr)
		}
		return
	}

	body, err := readBody(ctx, resp)
	if err != nil {
		h.fail(w, capability, err)
		return
	}

	h.observe(capability, resp.StatusCode)
	proxy.CopyResponseHeaders(w, resp, false)
	w.WriteHeader(resp.StatusCode)
	if _, wErr := w.Write(body); wErr != nil {
		h.logger.Warn("failed to write tool-call follow-up response", "error", wErr)
	}
	h.record(r, req, target, string(body), call.Function.Name)
}

// record queues the completed exchange for history persistence.
func (h *Handler) record(r *http.Request, req *types.ChatCompletionRequest, target registry.TargetServerInfo, responseBody, toolCalled string) {
	if h.recorder == nil {
		return
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return
	}
	h.recorder.Record(&history.Exchange{
		RequestID:    middleware.GetRequestID(r.Context()),
		User:         req.User,
		Model:        req.Model,
		ServerID:     target.ID,
		RequestBody:  string(requestBody),
		ResponseBody: responseBody,
		ToolCalled:   toolCalled,
		CreatedAt:    time.Now(),
	})
}

// observeRetrieval feeds the fused point count into the metrics, if any.
func (h *Handler) observeRetrieval(points int) {
	if h.metrics != nil {
		h.metrics.ObserveRetrieval(points)
	}
}
