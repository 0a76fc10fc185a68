package proxy

import (
	"strings"
	"testing"
)

func TestExtractToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		wantName string
		wantNone bool
	}{
		{
			name: "tool call in first frame",
			stream: "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"t1\",\"function\":{\"name\":\"calc\",\"arguments\":\"{}\"}}]}}]}\n\n" +
				"data: [DONE]\n\n",
			wantName: "calc",
		},
		{
			name: "tool call after role and content deltas",
			stream: "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"t2\",\"function\":{\"name\":\"web_search\",\"arguments\":\"{\\\"q\\\":\\\"x\\\"}\"}}]}}]}\n\n",
			wantName: "web_search",
		},
		{
			name: "frames concatenated without blank lines",
			stream: "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n" +
				"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"t3\",\"function\":{\"name\":\"lookup\",\"arguments\":\"{}\"}}]}}]}\n",
			wantName: "lookup",
		},
		{
			name:     "stream without tool calls",
			stream:   "data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\ndata: [DONE]\n\n",
			wantNone: true,
		},
		{
			name: "malformed fragment is skipped",
			stream: "data: {not json}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"t4\",\"function\":{\"name\":\"calc\",\"arguments\":\"{}\"}}]}}]}\n\n",
			wantName: "calc",
		},
		{
			name:     "empty stream",
			stream:   "",
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := ExtractToolCalls(strings.NewReader(tt.stream))
			if err != nil {
				t.Fatalf("ExtractToolCalls() error: %v", err)
			}

			if tt.wantNone {
				if len(calls) != 0 {
					t.Fatalf("got %d tool calls, want none", len(calls))
				}
				return
			}

			if len(calls) == 0 {
				t.Fatal("got no tool calls")
			}
			if calls[0].Function.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", calls[0].Function.Name, tt.wantName)
			}
		})
	}
}
