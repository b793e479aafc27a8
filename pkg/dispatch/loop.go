package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Event is a unit of protocol work delivered to the main context.
type Event = func() error

// Loop is the single-threaded main context. Everything it runs, scheduled
// closures and protocol events alike, runs on the goroutine that called Run.
type Loop struct {
	*Dispatcher
	logger zerolog.Logger
}

func NewLoop(logger zerolog.Logger) *Loop {
	return &Loop{
		Dispatcher: New(),
		logger:     logger.With().Str("component", "loop").Logger(),
	}
}

// Run serves events and scheduled closures until ctx is done, events is
// closed or an event fails. A nil events channel serves closures only.
// The loop is closed when Run returns; later closures are dropped.
func (l *Loop) Run(ctx context.Context, events <-chan Event) error {
	defer l.Close()

	for {
		select {
		case <-ctx.Done():
			// drain what was already promised to run
			l.Dispatch()
			return nil

		case fn, ok := <-l.next():
			if !ok {
				return nil
			}
			l.run(fn)

		case ev, ok := <-events:
			if !ok {
				l.logger.Trace().Msg("event source closed")
				l.Dispatch()
				return nil
			}
			if err := ev(); err != nil {
				l.logger.Error().Err(err).Msg("event processing error")
				return fmt.Errorf("dispatch event: %w", err)
			}
		}
	}
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Schedule(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
