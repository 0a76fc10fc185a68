// Package config loads and validates the gateway's TOML configuration:
// the listen address, the optional RAG section, the optional push URLs,
// and the MCP tool servers to dial at startup.
//
// A Store guards the live configuration with a reader/writer lock; writers
// run at startup and when the fsnotify watcher hot-reloads the RAG section.
package config
