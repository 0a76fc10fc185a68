package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"nexus-hq/nexus/pkg/proxy/types"
)

// sseDataPrefix marks the payload line of an SSE frame.
const sseDataPrefix = "data:"

// sseDoneMarker terminates an OpenAI-style SSE stream.
const sseDoneMarker = "[DONE]"

// ExtractToolCalls reads an SSE chat-completion stream and returns the
// first non-empty tool-call list it finds. Every data: fragment is
// inspected, not just the first one per chunk, because servers may emit
// role or content deltas before the frame that carries the tool calls.
//
// A stream that ends without tool calls yields an empty list and no error.
// Unparseable fragments are skipped; read failures surface as Operation,
// and a cancelled context as the client-cancellation error.
func ExtractToolCalls(body io.Reader) ([]types.ToolCall, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if payload == "" || payload == sseDoneMarker {
			continue
		}

		var chunk types.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}

		if calls := chunk.ToolCalls(); len(calls) > 0 {
			return calls, nil
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, Cancelled()
		}
		return nil, Operationf("failed to read SSE stream: %v", err)
	}

	return nil, nil
}
