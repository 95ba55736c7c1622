// Package llm is the single-shot completion contract the pipeline uses for
// every model role.
package llm

import "context"

// Client turns one prompt into one response. The quarantine protocol runs
// its main, quarantined, and summary roles through this interface so tests
// can script each side.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
