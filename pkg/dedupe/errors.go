package dedupe

import (
	"context"
	"errors"
)

// ErrNotFound is returned (or wrapped) by a Deleter when the message no
// longer exists upstream. Reconcile treats it as a successful delete.
var ErrNotFound = errors.New("message not found")

// Deleter removes a previously sent message from the channel. Timeouts are
// the implementation's responsibility.
type Deleter interface {
	DeleteMessage(ctx context.Context, id string) error
}

// DeleterFunc adapts a function to the Deleter interface.
type DeleterFunc func(ctx context.Context, id string) error

func (f DeleterFunc) DeleteMessage(ctx context.Context, id string) error {
	return f(ctx, id)
}

// DeleteError reports an upstream delete that failed for a reason other
// than the message being gone.
type DeleteError struct {
	ID  string
	Err error
}

func (e *DeleteError) Error() string {
	return "delete message " + e.ID + ": " + e.Err.Error()
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
