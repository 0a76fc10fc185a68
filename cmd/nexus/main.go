// Nexus is a capability-routing gateway for LLM inference fleets.
//
// It proxies OpenAI-compatible API traffic to dynamically registered
// downstream servers, providing:
//   - Capability-keyed registration and least-connections routing
//   - Background health sweeping with explicit re-admission
//   - An MCP tool-call loop for chat completions
//   - Optional hybrid (keyword + vector) retrieval augmentation
//   - Aggregated model and server-info views with scheduled push
//
// Usage:
//
//	# Start the gateway with the default configuration file
//	nexus run
//
//	# Start with a custom configuration file
//	nexus run --config /etc/nexus/config.toml
//
//	# Show version information
//	nexus version
package main

func main() {
	Execute()
}
