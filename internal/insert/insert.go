// Package insert delivers finished dictation text to wherever the user is
// typing.
//
// The port mirrors a text-input proxy: [Sink] inserts text and [Deleter]
// removes the character before the cursor. Adapters write to the system
// clipboard, to an io.Writer, or to an in-memory [Buffer].
package insert

import (
	"context"
	"errors"
	"time"
)

// DefaultRepeatInterval is the press-and-hold delete rate.
const DefaultRepeatInterval = 100 * time.Millisecond

// Sink receives final text.
type Sink interface {
	InsertText(ctx context.Context, text string) error
}

// Deleter removes the character before the cursor.
type Deleter interface {
	DeleteBackward(ctx context.Context) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, text string) error

// InsertText calls f.
func (f SinkFunc) InsertText(ctx context.Context, text string) error { return f(ctx, text) }

// Multi fans text out to every sink. All sinks are attempted; their errors
// are joined.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, text string) error {
		var errs []error
		for _, s := range sinks {
			if err := s.InsertText(ctx, text); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// RepeatDelete deletes one character immediately and then one per interval
// until ctx is done, like holding the delete key. It returns the number of
// deletions performed. A non-positive interval uses DefaultRepeatInterval.
func RepeatDelete(ctx context.Context, d Deleter, interval time.Duration) (int, error) {
	if interval <= 0 {
		interval = DefaultRepeatInterval
	}
	if err := d.DeleteBackward(ctx); err != nil {
		return 0, err
	}
	n := 1

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return n, nil
		case <-ticker.C:
			if err := d.DeleteBackward(ctx); err != nil {
				return n, err
			}
			n++
		}
	}
}
