// Package poll waits on asynchronous jobs with a growing interval and a
// ceiling on the total time spent waiting.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrTimeout is returned when the schedule runs out before the job finishes.
var ErrTimeout = errors.New("poll: timed out waiting for job")

// Growth selects how the wait between checks increases.
type Growth string

const (
	GrowthConstant    Growth = "constant"
	GrowthExponential Growth = "exponential"
	GrowthFibonacci   Growth = "fibonacci"
)

// Defaults used by the intake Lambda when nothing is configured.
const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxInterval = 30 * time.Second
	DefaultGrowth      = GrowthFibonacci
	DefaultTimeout     = 8 * time.Minute
)

// ParseGrowth accepts "constant", "exponential" or "fibonacci". Empty means
// DefaultGrowth.
func ParseGrowth(s string) (Growth, error) {
	switch g := Growth(s); g {
	case "":
		return DefaultGrowth, nil
	case GrowthConstant, GrowthExponential, GrowthFibonacci:
		return g, nil
	default:
		return "", fmt.Errorf("unknown poll growth %q", s)
	}
}

// CheckFunc inspects the job once. It returns done=true when the job reached a
// terminal state; a non-nil error stops polling immediately.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Poller calls a CheckFunc until it reports done. Waits start at Interval,
// grow according to Growth and never exceed MaxInterval.
//
// Timeout bounds the wall-clock time since the first check. MaxChecks bounds
// the number of checks. Zero disables either limit.
type Poller struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Growth      Growth
	Timeout     time.Duration
	MaxChecks   uint64

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns a Poller with the default schedule.
func Default() Poller {
	return Poller{
		Interval:    DefaultInterval,
		MaxInterval: DefaultMaxInterval,
		Growth:      DefaultGrowth,
		Timeout:     DefaultTimeout,
	}
}

// Until runs check until it is done, it fails, ctx ends, or the schedule is exhausted.
func (p Poller) Until(ctx context.Context, check CheckFunc) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}
	b := p.backoff()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		wait, stop := b.Next()
		if stop {
			return ErrTimeout
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p Poller) backoff() retry.Backoff {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var b retry.Backoff
	switch p.Growth {
	case GrowthExponential:
		b = retry.NewExponential(interval)
	case GrowthFibonacci:
		b = retry.NewFibonacci(interval)
	default:
		b = retry.NewConstant(interval)
	}
	if p.MaxInterval > 0 {
		b = retry.WithCappedDuration(p.MaxInterval, b)
	}
	if p.MaxChecks > 0 {
		b = retry.WithMaxRetries(p.MaxChecks-1, b)
	}
	if p.Timeout > 0 {
		b = retry.WithMaxDuration(p.Timeout, b)
	}
	return b
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
