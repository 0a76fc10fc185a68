package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"nexus-hq/nexus/pkg/proxy/types"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// AuthorizationHeader is the HTTP header for API key forwarding.
	AuthorizationHeader = "Authorization"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "x-request-id"

	// RequiresToolCallHeader signals that a streamed downstream response
	// carries tool calls instead of a plain completion.
	RequiresToolCallHeader = "requires-tool-call"
)

// ParseChatCompletionRequest parses an HTTP request body into a
// ChatCompletionRequest. The body is limited to MaxRequestBodySize; a body
// at or above the limit, malformed JSON, or an empty messages list all
// surface as BadRequest.
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	limitedReader := io.LimitReader(r.Body, MaxRequestBodySize)

	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, Operationf("failed to read request body: %v", err)
	}

	if len(body) >= MaxRequestBodySize {
		return nil, &BadRequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
		}
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &BadRequestError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if len(req.Messages) == 0 {
		return nil, &BadRequestError{Message: "messages must not be empty"}
	}

	return &req, nil
}

// ExtractRequestID extracts the request ID from the x-request-id header.
// If the header is not present, it returns an empty string and the
// middleware generates one.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// UpstreamAuthorization resolves the Authorization value for an upstream
// request: the target's registered api_key when non-empty, otherwise the
// client-supplied header verbatim.
func UpstreamAuthorization(apiKey string, r *http.Request) string {
	if apiKey != "" {
		return "Bearer " + apiKey
	}
	return r.Header.Get(AuthorizationHeader)
}
