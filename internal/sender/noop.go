package sender

import (
	"context"
	"sync/atomic"
)

// Noop reports success without contacting any network. Selected when a channel
// has no credentials configured, so the engine stays exercisable without live
// infrastructure.
type Noop struct {
	calls atomic.Int64
}

var _ Sender = (*Noop)(nil)

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Send(_ context.Context, _ Message) (Outcome, error) {
	n.calls.Add(1)
	return Outcome{Delivered: false, Note: NoteNoChannel}, nil
}

// Calls returns how many sends were absorbed. Used by tests.
func (n *Noop) Calls() int64 { return n.calls.Load() }
