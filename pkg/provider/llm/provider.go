// Package llm defines the Provider interface for the language-model backend
// used by the intent fallback stage.
//
// CareVoice only ever asks the model one question at a time and requires a
// complete answer before it can act, so the interface is a single blocking
// Complete call — no streaming, no tool calling.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import "context"

// Message is one turn of a conversation sent to the model.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// CompletionRequest carries everything the model needs to produce a
// response. At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation. Providers that have no dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the
	// provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// PromptTokens and CompletionTokens hold token accounting when the
	// provider reports it; both are zero otherwise.
	PromptTokens     int
	CompletionTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
