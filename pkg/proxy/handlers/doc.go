// Package handlers implements the gateway's HTTP surface: the chat
// orchestrator with its tool-call loop, the byte-level proxies for
// embeddings, audio and image requests, the admin registration endpoints,
// and the aggregated models and server-info views.
//
// The chat orchestrator is deliberately decomposed: dispatch sends the
// (possibly retrieval-augmented, tool-augmented) request downstream,
// classification decides between plain forwarding and the tool-call loop,
// and runToolCall performs at most one MCP round trip before re-dispatching
// to the same target.
package handlers
