package llm

import "context"

// CompletionProvider defines the interface for generating text from a
// system/user prompt pair.
//
// Implementations handle truncated responses internally (continuation
// requests) but do NOT retry transport failures; that is the caller's
// responsibility.
type CompletionProvider interface {
	// Generate sends the conversation to the completion endpoint and
	// returns the full reassembled output text.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
