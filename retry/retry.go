package retry

import (
	"context"
	"time"

	ai "github.com/spetersoncode/toolflow"
)

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	// Number is the failed attempt (1-indexed).
	Number int
	// Delay is the wait before the next attempt.
	Delay time.Duration
	// Err is the error the attempt failed with.
	Err error
}

type options struct {
	sleep      func(ctx context.Context, d time.Duration) error
	retryIf    func(error) bool
	notify     func(Attempt)
	retryAfter bool
}

// Option customizes a single Do or Run call.
type Option func(*options)

// WithSleep replaces the wait between attempts. The function must return
// ctx.Err() if the context is cancelled while waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

// WithRetryIf limits retries to errors for which fn returns true.
// By default every error is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		o.retryIf = fn
	}
}

// WithNotify calls fn before each wait.
func WithNotify(fn func(Attempt)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// WithRetryAfter waits at least as long as the Retry-After hint carried by a
// categorized error, when it exceeds the computed delay.
func WithRetryAfter() Option {
	return func(o *options) {
		o.retryAfter = true
	}
}

func applyOptions(opts []Option) options {
	o := options{sleep: sleep}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do executes fn up to cfg.Retries+1 times, waiting cfg.Delay(k) after
// failed attempt k. It returns the first successful result, or the final
// error unchanged. Cancellation is checked before every attempt and during
// every wait.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	o := applyOptions(opts)
	attempts := cfg.Attempts()

	for k := 0; ; k++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if k >= attempts-1 {
			return zero, err
		}
		if o.retryIf != nil && !o.retryIf(err) {
			return zero, err
		}

		delay := cfg.Delay(k)
		if o.retryAfter {
			if hint := ai.RetryAfterOf(err); hint > delay {
				delay = hint
			}
		}
		if o.notify != nil {
			o.notify(Attempt{Number: k + 1, Delay: delay, Err: err})
		}
		if err := o.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, cfg Config, fn func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}
