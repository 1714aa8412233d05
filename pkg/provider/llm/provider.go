// Package llm defines the Provider interface for chat-completion backends.
//
// A provider turns a system prompt plus a short message list into one reply.
// Dictation enhancement, the web refine endpoint and the web demo modes all go
// through this interface so the concrete vendor (OpenAI directly, or any
// vendor reachable through any-llm-go) can be swapped in configuration.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation.
package llm

import "context"

// Role values accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the message text.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// SystemPrompt, when non-empty, is sent as the first message with the
	// system role.
	SystemPrompt string

	// Messages follow the system prompt in order. At least one is required.
	Messages []Message

	// Temperature controls output randomness in [0, 2]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the assistant text exactly as returned. Callers trim.
	Content string

	// Usage is token accounting for the request.
	Usage Usage
}

// Provider is the abstraction over a chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply. A reply with no
	// choices is an error.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// UserPrompt builds the common two-message request: a system prompt followed by
// a single user message.
func UserPrompt(system, user string) CompletionRequest {
	return CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: user}},
	}
}
