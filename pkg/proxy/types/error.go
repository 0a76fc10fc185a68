package types

// ErrorResponse is the JSON error body returned to clients. The shape
// follows the OpenAI error convention so existing SDKs surface the message.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error message and its taxonomy kind.
type ErrorDetail struct {
	// Message is the human-readable error text.
	Message string `json:"message"`

	// Type is the taxonomy kind, e.g. "operation" or "bad_request".
	Type string `json:"type"`
}

// NewErrorResponse builds an error body.
func NewErrorResponse(message, kind string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Message: message, Type: kind}}
}
