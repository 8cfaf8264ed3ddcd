package pipeline

import "context"

// ReadFromEither races two channels and cancellation in a single
// select. A pipeline stage that must consume from two upstream
// channels at once (e.g. BackupPipeline.Run draining both its primary
// result stream and its retry stream) used to do this with a
// peek-then-cancel primitive: read one channel with a timeout, and if
// nothing arrived, switch to reading the other. That shape has a race
// -- a value can land on the unchosen channel in the gap between the
// peek timing out and the switch to the other channel, and is lost
// because nothing is listening on the first channel anymore at that
// instant.
//
// A single select statement with all three cases open has no such
// gap: the Go runtime chooses pseudo-randomly among every case that is
// ready at the moment of the select, so a value on either channel is
// always observed, never dropped.
func ReadFromEither[T any](ctx context.Context, a, b <-chan T) (value T, ok bool, err error) {
	select {
	case v, chOk := <-a:
		return v, chOk, nil
	case v, chOk := <-b:
		return v, chOk, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}
