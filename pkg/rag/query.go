package rag

import (
	"strings"

	"nexus-hq/nexus/pkg/proxy/types"
)

// serverHealthSentinel marks the oldest user turn to include when building
// the vector query. The sentinel itself is trimmed from the text.
const serverHealthSentinel = "<server-health>"

// KeywordQuery returns the raw text of the most recent user message, or ""
// when there is none.
func KeywordQuery(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}

// VectorQuery walks user turns newest-first, collecting up to contextWindow
// of them. A user message ending with the server-health sentinel is trimmed,
// included, and terminates the walk. The collected turns are restored to
// chronological order and joined with newlines.
func VectorQuery(messages []types.Message, contextWindow uint64) string {
	if contextWindow == 0 {
		contextWindow = 1
	}

	var collected []string
	for i := len(messages) - 1; i >= 0 && uint64(len(collected)) < contextWindow; i-- {
		if messages[i].Role != types.RoleUser {
			continue
		}
		text := messages[i].Text()
		if strings.HasSuffix(text, serverHealthSentinel) {
			trimmed := strings.TrimSpace(strings.TrimSuffix(text, serverHealthSentinel))
			collected = append(collected, trimmed)
			break
		}
		collected = append(collected, text)
	}

	// Restore chronological order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return strings.Join(collected, "\n")
}
