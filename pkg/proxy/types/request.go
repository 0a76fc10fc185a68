package types

import (
	"encoding/json"
)

// Role names used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool choice values the gateway manipulates. OpenAI also permits an object
// form naming a specific function; the gateway passes that through opaquely.
const (
	ToolChoiceNone = "none"
	ToolChoiceAuto = "auto"
)

// ChatCompletionRequest is an OpenAI-compatible chat completion request,
// extended with the retrieval fields the gateway understands. Unknown
// downstream-specific fields round-trip through Extra.
type ChatCompletionRequest struct {
	// Model is the model id requested by the client.
	Model string `json:"model,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Stream enables SSE streaming of the completion.
	Stream bool `json:"stream,omitempty"`

	// User is an opaque end-user identifier.
	User string `json:"user,omitempty"`

	// Tools lists the tool schemas the model may call.
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice is "none", "auto", or an object naming one function.
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	// VdbCollectionName names the vector collections to search. Accepts a
	// single string or an array on the wire.
	VdbCollectionName StringList `json:"vdb_collection_name,omitempty"`

	// KwSearchIndex is the index name for the keyword-search backend.
	KwSearchIndex string `json:"kw_search_index,omitempty"`

	// EsSearchIndex is the Elasticsearch index to query.
	EsSearchIndex string `json:"es_search_index,omitempty"`

	// EsSearchFields are the Elasticsearch fields to match against.
	EsSearchFields []string `json:"es_search_fields,omitempty"`

	// TidbSearchDatabase is the TiDB database holding the search table.
	TidbSearchDatabase string `json:"tidb_search_database,omitempty"`

	// TidbSearchTableName is the TiDB table to query.
	TidbSearchTableName string `json:"tidb_search_table_name,omitempty"`

	// ContextWindow is the number of trailing user turns used to build the
	// retrieval query text.
	ContextWindow *uint64 `json:"context_window,omitempty"`

	// Limit caps the number of retrieved points after fusion.
	Limit *uint64 `json:"limit,omitempty"`

	// ScoreThreshold filters vector hits below this similarity.
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`

	// WeightedAlpha weights keyword scores against vector scores in fusion.
	WeightedAlpha *float64 `json:"weighted_alpha,omitempty"`

	// Extra carries any remaining request fields verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// Message is a single conversation turn.
type Message struct {
	// Role is "system", "user", "assistant" or "tool".
	Role string `json:"role"`

	// Content is the message text. It may be a string or an array of
	// multimodal content parts; assistant tool-call turns carry nil content.
	Content interface{} `json:"content"`

	// Name optionally names the author.
	Name string `json:"name,omitempty"`

	// ToolCalls lists tool invocations emitted by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Text returns the message content as plain text. Multimodal arrays are
// flattened to their text parts; non-string content yields "".
func (m *Message) Text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []interface{}:
		var out string
		for _, part := range c {
			pm, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if pm["type"] == "text" {
				if txt, ok := pm["text"].(string); ok {
					if out != "" {
						out += " "
					}
					out += txt
				}
			}
		}
		return out
	default:
		return ""
	}
}

// Tool describes a callable function advertised to the model.
type Tool struct {
	// Type is always "function".
	Type string `json:"type"`

	// Function is the schema of the callable.
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the JSON-Schema description of one tool.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is one structured tool invocation emitted by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// MarshalJSON implements json.Marshaler. A single entry serializes back to
// a bare string.
func (l StringList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// ToolChoiceIsNone reports whether the request's tool_choice is the literal
// string "none". An unset tool_choice is not "none".
func (r *ChatCompletionRequest) ToolChoiceIsNone() bool {
	s, ok := r.ToolChoice.(string)
	return ok && s == ToolChoiceNone
}

// ToolChoiceIsUnsetOrNone reports whether tool_choice is unset or "none";
// either state lets the gateway upgrade it to "auto" after tool
// augmentation.
func (r *ChatCompletionRequest) ToolChoiceIsUnsetOrNone() bool {
	if r.ToolChoice == nil {
		return true
	}
	return r.ToolChoiceIsNone()
}

// knownRequestFields lists the top-level keys decoded into struct fields;
// everything else lands in Extra.
var knownRequestFields = map[string]bool{
	"model": true, "messages": true, "stream": true, "user": true,
	"tools": true, "tool_choice": true, "vdb_collection_name": true,
	"kw_search_index": true, "es_search_index": true, "es_search_fields": true,
	"tidb_search_database": true, "tidb_search_table_name": true,
	"context_window": true, "limit": true, "score_threshold": true,
	"weighted_alpha": true,
}

// UnmarshalJSON decodes the known fields and preserves all others in Extra
// so the gateway can forward fields it does not understand.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type plain ChatCompletionRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if knownRequestFields[k] {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		p.Extra = raw
	}

	*r = ChatCompletionRequest(p)
	return nil
}

// MarshalJSON re-merges Extra with the known fields.
func (r ChatCompletionRequest) MarshalJSON() ([]byte, error) {
	type plain ChatCompletionRequest
	data, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// EmbeddingsRequest is the subset of the OpenAI embeddings request the
// gateway synthesizes for retrieval.
type EmbeddingsRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
	User  string   `json:"user,omitempty"`
}
