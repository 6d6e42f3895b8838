package session

import (
	"context"
	"time"
)

// Pacer suspends the run loop between ticks.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Interval waits a fixed wall-clock duration. Zero or negative does not wait.
type Interval time.Duration

// Wait implements Pacer.
func (d Interval) Wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay runs ticks back to back.
var NoDelay Pacer = Interval(0)

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context) error

// Wait implements Pacer.
func (f PacerFunc) Wait(ctx context.Context) error {
	return f(ctx)
}
