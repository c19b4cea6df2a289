package ai

import "context"

// Provider sends a prompt to a structured-completion model endpoint and
// returns the raw text response. Injected so tests can substitute a
// deterministic stub.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
