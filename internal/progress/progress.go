// Package progress implements the cooperative cancellation checkpoint
// used throughout the backup, compact, and recreate engines: long
// loops call Checkpoint periodically so a cancelled context stops the
// loop at a well-defined boundary instead of mid-write.
package progress

import (
	"context"

	"github.com/blockvault/blockvault/internal/apperr"
)

// Checkpoint returns an *apperr.Error of KindCancelled if ctx has been
// cancelled, nil otherwise. Call it at the top of every iteration of a
// loop that holds no other cancellation point (e.g. between blocks
// inside a hash-and-upload loop, between filesets inside a retention
// sweep).
func Checkpoint(ctx context.Context) error {
	return apperr.FromContext(ctx)
}

// Reporter receives progress updates from a long-running operation.
// Implementations must not block; a CLI reporter writes to a channel
// or redraws a terminal line, never performs I/O that can stall the
// worker calling it.
type Reporter interface {
	Report(phase string, done, total int64)
}

// NopReporter discards all updates.
type NopReporter struct{}

func (NopReporter) Report(phase string, done, total int64) {}

// ChannelReporter forwards updates onto a bounded channel, dropping
// updates rather than blocking the worker if the channel is full --
// progress reporting must never become a backpressure source for the
// actual work.
type ChannelReporter struct {
	Updates chan<- Update
}

// Update is one progress snapshot.
type Update struct {
	Phase string
	Done  int64
	Total int64
}

func (r ChannelReporter) Report(phase string, done, total int64) {
	select {
	case r.Updates <- Update{Phase: phase, Done: done, Total: total}:
	default:
	}
}
