package session

import (
	"sync/atomic"

	"github.com/coredesk/llmcore/pkg/models"
)

// current holds a process-wide pointer to the UserContext installed by the
// most recent still-active WithUserContext call on any goroutine, set by
// request middleware. It exists only
// as a read-only convenience for leaf-level code (spec §4.4); any code
// path that mutates session state must receive a *models.UserContext as
// an explicit parameter instead of reading this.
var current atomic.Pointer[models.UserContext]

// Current returns the process-wide ambient UserContext set by the most
// recent still-active WithUserContext call on any goroutine, or nil if none
// is active.
//
// This is a convenience for leaf-level reads (e.g. logging the active
// user id); it must never be used to authorize a state-mutating
// operation — those take an explicit UserContext parameter.
func Current() *models.UserContext {
	return current.Load()
}

// WithUserContext installs ctx as the ambient context for the duration of
// fn, restoring whatever was previously installed afterward — including
// when fn panics.
func WithUserContext(ctx *models.UserContext, fn func()) {
	previous := current.Swap(ctx)
	defer current.Store(previous)
	fn()
}
