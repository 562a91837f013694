package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// Generator defines the narrow interface the grounding layer depends on for
// narrative text generation. Implementations wrap a cloud LLM API; tests
// substitute a deterministic fake so verification logic can be exercised
// without network access.
type Generator interface {
	// Generate produces a completion for the given conversation. The messages
	// slice should contain the system prompt followed by the user prompt in
	// chronological order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: Conversation in chronological order
	//
	// Returns:
	//   - string: Generated response text
	//   - error: Error if generation fails
	Generate(ctx context.Context, messages []Message) (string, error)

	// ModelName returns the identifier of the underlying model, recorded in
	// run artifacts so reports state which model produced the narrative.
	//
	// Returns:
	//   - string: Model identifier, e.g. "gemini-3-flash-preview"
	ModelName() string

	// Close releases resources and performs cleanup operations.
	//
	// Returns:
	//   - error: Error if cleanup fails
	Close() error
}
