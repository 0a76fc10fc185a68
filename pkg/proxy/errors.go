package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nexus-hq/nexus/pkg/proxy/types"
	"nexus-hq/nexus/pkg/registry"
)

// Gateway error kinds that can be checked with errors.Is(). Together with
// the registry errors these form the full taxonomy surfaced to clients.
var (
	// ErrOperation marks a generic upstream or internal failure.
	ErrOperation = errors.New("operation failed")

	// ErrBadRequest marks a request missing required retrieval fields.
	ErrBadRequest = errors.New("bad request")

	// ErrFailedToLoadConfig marks an unreadable configuration at startup.
	ErrFailedToLoadConfig = errors.New("failed to load config")

	// ErrMcpEmptyContent marks an MCP tool result with no content items.
	ErrMcpEmptyContent = errors.New("mcp tool returned empty content")

	// ErrMcpNotFoundClient marks a tool call naming an unregistered tool.
	ErrMcpNotFoundClient = errors.New("mcp client not found")
)

// cancelledMessage is the Operation message used when a client disconnect
// aborts an in-flight request.
const cancelledMessage = "Request was cancelled by the client"

// OperationError is a generic upstream or internal failure (HTTP 500).
type OperationError struct {
	// Message is the client-visible error text.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Is implements error matching for errors.Is().
func (e *OperationError) Is(target error) bool {
	return target == ErrOperation
}

// Unwrap returns the wrapped cause.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Operationf builds an OperationError from a format string.
func Operationf(format string, args ...interface{}) *OperationError {
	return &OperationError{Message: fmt.Sprintf(format, args...)}
}

// Cancelled returns the OperationError used for client-driven cancellation.
func Cancelled() *OperationError {
	return &OperationError{Message: cancelledMessage}
}

// BadRequestError is a client error for missing or invalid request fields
// (HTTP 400).
type BadRequestError struct {
	// Message explains which field is missing or invalid.
	Message string
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	return e.Message
}

// Is implements error matching for errors.Is().
func (e *BadRequestError) Is(target error) bool {
	return target == ErrBadRequest
}

// FailedToLoadConfigError reports an unreadable or invalid configuration
// file. It only occurs at startup.
type FailedToLoadConfigError struct {
	// Reason is the underlying load failure.
	Reason error
}

// Error implements the error interface.
func (e *FailedToLoadConfigError) Error() string {
	return fmt.Sprintf("failed to load config: %v", e.Reason)
}

// Is implements error matching for errors.Is().
func (e *FailedToLoadConfigError) Is(target error) bool {
	return target == ErrFailedToLoadConfig
}

// Unwrap returns the wrapped cause.
func (e *FailedToLoadConfigError) Unwrap() error {
	return e.Reason
}

// McpEmptyContentError reports an MCP tool result whose content array is
// empty (HTTP 500, constant message).
type McpEmptyContentError struct{}

// Error implements the error interface.
func (e *McpEmptyContentError) Error() string {
	return "The MCP tool returned an empty content array"
}

// Is implements error matching for errors.Is().
func (e *McpEmptyContentError) Is(target error) bool {
	return target == ErrMcpEmptyContent
}

// McpNotFoundClientError reports a tool-call name absent from the MCP tool
// registry (HTTP 500, constant message).
type McpNotFoundClientError struct{}

// Error implements the error interface.
func (e *McpNotFoundClientError) Error() string {
	return "No MCP client found for the requested tool"
}

// Is implements error matching for errors.Is().
func (e *McpNotFoundClientError) Is(target error) bool {
	return target == ErrMcpNotFoundClient
}

// StatusFor maps any gateway or registry error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFoundServer):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidServerKind),
		errors.Is(err, registry.ErrUnknownServer),
		errors.Is(err, registry.ErrServerExists),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrFailedToLoadConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// kindFor maps an error to its taxonomy name for the response body.
func kindFor(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotFoundServer):
		return "not_found_server"
	case errors.Is(err, registry.ErrInvalidServerKind):
		return "invalid_server_kind"
	case errors.Is(err, registry.ErrUnknownServer):
		return "unknown_server"
	case errors.Is(err, registry.ErrServerExists):
		return "server_exists"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrFailedToLoadConfig):
		return "failed_to_load_config"
	case errors.Is(err, ErrMcpEmptyContent):
		return "mcp_empty_content"
	case errors.Is(err, ErrMcpNotFoundClient):
		return "mcp_not_found_client"
	default:
		return "operation"
	}
}

// WriteError writes the JSON error body and status for err.
func WriteError(w http.ResponseWriter, err error) {
	body := types.NewErrorResponse(err.Error(), kindFor(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(err))
	_ = json.NewEncoder(w).Encode(body)
}
