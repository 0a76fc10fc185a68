package rag

import (
	"errors"
	"strings"

	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/types"
)

// MergePolicy selects where retrieved context lands in the chat request.
type MergePolicy string

const (
	// PolicySystemMessage appends the context to the system message,
	// inserting one if the conversation has none.
	PolicySystemMessage MergePolicy = "system-message"

	// PolicyLastUserMessage rewrites the trailing user message around the
	// context.
	PolicyLastUserMessage MergePolicy = "last-user-message"
)

// ErrNoMessages is returned when context merging receives a request without
// any messages.
var ErrNoMessages = errors.New("no messages in request")

// answerScaffold bridges the injected context and the original question in
// the last-user-message policy.
const answerScaffold = "Answer the question based on the pieces of context above. The question is:"

// expandRagPrompt turns literal \n sequences in a configured prompt into
// real newlines.
func expandRagPrompt(prompt string) string {
	return strings.ReplaceAll(prompt, `\n`, "\n")
}

// MergeContext splices the retrieved points into the chat request per
// policy. The system-message policy is downgraded to last-user-message when
// the active prompt template declares no system support.
func MergeContext(req *types.ChatCompletionRequest, points []Point, policy MergePolicy, ragPrompt string, systemSupported bool) error {
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}
	if len(points) == 0 {
		return proxy.Operationf("No context provided.")
	}

	sources := make([]string, len(points))
	for i, p := range points {
		sources[i] = p.Source
	}
	context := strings.Join(sources, "\n\n")
	prompt := expandRagPrompt(ragPrompt)

	if policy == PolicySystemMessage && !systemSupported {
		policy = PolicyLastUserMessage
	}

	switch policy {
	case PolicySystemMessage:
		mergeIntoSystemMessage(req, prompt, context)
		return nil
	case PolicyLastUserMessage:
		return mergeIntoLastUserMessage(req, prompt, context)
	default:
		return proxy.Operationf("unknown merge policy %q", policy)
	}
}

func mergeIntoSystemMessage(req *types.ChatCompletionRequest, prompt, context string) {
	addition := context
	if prompt != "" {
		addition = prompt + "\n" + context
	}

	for i := range req.Messages {
		if req.Messages[i].Role == types.RoleSystem {
			req.Messages[i].Content = req.Messages[i].Text() + "\n" + addition
			return
		}
	}

	messages := make([]types.Message, 0, len(req.Messages)+1)
	messages = append(messages, types.Message{Role: types.RoleSystem, Content: addition})
	messages = append(messages, req.Messages...)
	req.Messages = messages
}

func mergeIntoLastUserMessage(req *types.ChatCompletionRequest, prompt, context string) error {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != types.RoleUser {
			continue
		}

		var b strings.Builder
		if prompt != "" {
			b.WriteString(prompt)
			b.WriteString("\n")
		}
		b.WriteString(context)
		b.WriteString("\n\n")
		b.WriteString(answerScaffold)
		b.WriteString("\n")
		b.WriteString(req.Messages[i].Text())

		req.Messages[i].Content = b.String()
		return nil
	}
	return ErrNoMessages
}
