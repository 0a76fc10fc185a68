package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/types"
	"nexus-hq/nexus/pkg/registry"
)

// requestScopedClient adapts the gateway's own dispatch paths into the
// retriever's LLM and embedder interfaces. It is bound to one inbound
// request so internal subrequests share its Authorization header, request
// id and cancellation.
type requestScopedClient struct {
	handler *Handler
	inbound *http.Request
}

// Complete runs a non-streaming chat completion through the chat group and
// returns the text of the first choice. Used for keyword extraction.
func (c *requestScopedClient) Complete(ctx context.Context, prompt string) (string, error) {
	target, err := c.handler.registry.Next(registry.CapChat)
	if err != nil {
		return "", err
	}

	req := &types.ChatCompletionRequest{
		Messages:   []types.Message{{Role: types.RoleUser, Content: prompt}},
		ToolChoice: types.ToolChoiceNone,
	}

	resp, err := c.handler.postJSON(ctx, c.inbound, target, chatCompletionsPath, req)
	if err != nil {
		return "", err
	}

	body, err := readBody(ctx, resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", proxy.Operationf("internal completion failed with status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var parsed types.ChatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", proxy.Operationf("failed to decode internal completion: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return "", proxy.Operationf("internal completion returned no choices")
	}
	return parsed.Choices[0].Message.Text(), nil
}

// Embed computes embedding vectors for input through the embeddings group.
func (c *requestScopedClient) Embed(ctx context.Context, input []string) ([][]float64, error) {
	target, err := c.handler.registry.Next(registry.CapEmbeddings)
	if err != nil {
		return nil, err
	}

	resp, err := c.handler.postJSON(ctx, c.inbound, target, embeddingsPath, &types.EmbeddingsRequest{Input: input})
	if err != nil {
		return nil, err
	}

	body, err := readBody(ctx, resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, proxy.Operationf("internal embeddings request failed with status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var parsed types.EmbeddingsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, proxy.Operationf("failed to decode embeddings response: %v", err)
	}

	vectors := make([][]float64, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		vectors = append(vectors, item.Embedding)
	}
	return vectors, nil
}

// truncate caps a body excerpt used in error messages.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
