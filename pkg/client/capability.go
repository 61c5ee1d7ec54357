// Package client implements the editing coordinator used by boardsync
// front ends: optimistic local buffering, debounced commits, remote
// reconciliation and lock bookkeeping. The server remains the
// authority; everything here is UX smoothing over the HTTP/websocket
// surface.
package client

import "context"

// Mutator submits a named mutation to the coordination server.
// Submissions are fire-and-forget from the caller's perspective:
// implementations log failures, they do not surface them, and the next
// reconciliation pass corrects any divergence.
type Mutator interface {
	Mutate(ctx context.Context, operation string, args any)
}

// Subscriber attaches to a live query feed. The returned cancel func
// detaches the feed; updates stop after cancel returns.
type Subscriber interface {
	Subscribe(ctx context.Context, query string, onUpdate func(payload []byte)) (cancel func(), err error)
}

// Capabilities bundles the two external dependencies every coordinator
// component needs. It is passed explicitly, never held in a package
// global, so tests can inject fakes.
type Capabilities struct {
	Mutator    Mutator
	Subscriber Subscriber
}
