// Package registry maintains the dynamic, capability-keyed fleet of
// downstream inference servers.
//
// Servers register at runtime with a capability bitset (chat, embeddings,
// image, tts, translate, transcribe) and join one group per advertised
// capability. Routing picks the healthy group member with the fewest
// connections; the counter is a monotone load proxy, never decremented.
// A background sweeper probes GET {url}/info on every server and
// reconciles the per-group healthy sets, re-admitting servers whose
// probes recover.
package registry
