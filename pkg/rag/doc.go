// Package rag implements the hybrid retrieval pipeline that runs before a
// chat request is dispatched: keyword and vector searches execute in
// parallel against MCP search services, scores are min-max normalized and
// fused with a configurable weight, and the winning context is merged into
// the outgoing chat messages by policy.
package rag
