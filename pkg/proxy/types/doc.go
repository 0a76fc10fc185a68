// Package types defines the OpenAI-compatible wire shapes the gateway
// parses, mutates and forwards, extended with the retrieval fields it
// understands. Unknown request fields round-trip untouched so downstream
// servers see everything the client sent.
package types
