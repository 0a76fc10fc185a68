// Package proxy holds the plumbing shared by every gateway route: the
// client-facing error taxonomy, request parsing and header resolution,
// response forwarding through the header allow-list, and tool-call
// extraction from SSE streams.
package proxy
