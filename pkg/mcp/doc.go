// Package mcp adapts Model-Context-Protocol tool servers for the gateway.
//
// A Registry dials every enabled MCP server at startup over SSE,
// streamable-HTTP or stdio, imports the advertised tool catalogue, and
// exposes a narrow surface to the orchestrator and the retriever: tool
// schemas for request augmentation, tool-name to service resolution, and
// text-only tool invocation.
//
// Search-like services (the gaia-* search fleet) are distinguished from
// regular tool servers: their results are treated as retrieved context and
// wrapped in a strict answer-from-context envelope by the orchestrator.
package mcp
