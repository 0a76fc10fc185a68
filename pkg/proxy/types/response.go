package types

// ChatCompletionResponse is the non-streaming completion shape the gateway
// inspects for tool calls before deciding whether to forward it verbatim.
type ChatCompletionResponse struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage carries token accounting from the downstream server.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolCalls returns the tool calls of the first choice, if any.
func (r *ChatCompletionResponse) ToolCalls() []ToolCall {
	if len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}

// ChatCompletionChunk is one SSE frame of a streamed completion.
type ChatCompletionChunk struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is one choice inside a streamed frame.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Delta is the incremental payload of a streamed choice.
type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCalls returns the tool-call deltas of the first choice, if any.
func (c *ChatCompletionChunk) ToolCalls() []ToolCall {
	if len(c.Choices) == 0 {
		return nil
	}
	return c.Choices[0].Delta.ToolCalls
}

// EmbeddingsResponse is the subset of the OpenAI embeddings response the
// retriever consumes.
type EmbeddingsResponse struct {
	Object string          `json:"object,omitempty"`
	Data   []EmbeddingItem `json:"data"`
	Model  string          `json:"model,omitempty"`
	Usage  *Usage          `json:"usage,omitempty"`
}

// EmbeddingItem is one embedding vector.
type EmbeddingItem struct {
	Object    string    `json:"object,omitempty"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// ModelList is the aggregated GET /v1/models payload.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelInfo describes one downstream model.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
