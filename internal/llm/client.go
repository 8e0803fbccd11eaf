// Package llm provides the language model client used for SQL synthesis
// and narration.
package llm

import "context"

// Client defines the minimal interface the pipeline uses to call an LLM.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
