// Package llm provides the narrow language-model capability the resolver and
// composer depend on. The model is an injected interface so both are testable
// with a stub implementation.
package llm

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client completes a bounded chat conversation and returns the model's text.
// Implementations apply their own timeout and retry policy; callers see a
// single error after that policy is exhausted.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
