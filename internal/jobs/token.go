package jobs

import "sync/atomic"

// CancelToken is the stop flag shared between the UI and one queue run.
// It is set once and never reset; a new run needs a new token.
type CancelToken struct {
	set atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the token. It reports whether this call was the one that set it.
func (t *CancelToken) Cancel() bool {
	return t.set.CompareAndSwap(false, true)
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.set.Load()
}
