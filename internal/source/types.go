// Package source defines the capability the enrichment service composes
// lookup sources through.
package source

import (
	"context"

	"vtgofer/internal/codec"
)

// Query is one lookup request
type Query struct {
	Key         string
	ContentType string
}

// Outcome is delivered exactly once per submitted query.
// A nil Result with a nil Err means the source has nothing for the key.
type Outcome struct {
	Result *codec.Result
	Err    error
}

// Source is implemented by every lookup backend
type Source interface {
	// Name returns the source name used in logs and routes
	Name() string
	// Submit registers q and returns a channel that receives one Outcome
	Submit(ctx context.Context, q Query) <-chan Outcome
	// Lookup submits q and waits for its outcome or ctx
	Lookup(ctx context.Context, q Query) (*codec.Result, error)
}
