package fsm

import (
	"context"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback. A non-nil
// error is stored on the event so fsm.Event returns it to the caller.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}
