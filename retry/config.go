// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"errors"
	"time"
)

// Config holds retry configuration parameters.
type Config struct {
	// Retries is the number of additional attempts after the first one
	// (default: 3). Zero disables retrying.
	Retries int

	// BaseDelay is the wait after the first failed attempt (default: 1s).
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts (default: 10s).
	MaxDelay time.Duration
}

// DefaultConfig returns the default retry configuration:
// 3 retries, 1 second base delay, 10 second max delay.
func DefaultConfig() Config {
	return Config{
		Retries:   3,
		BaseDelay: 1 * time.Second,
		MaxDelay:  10 * time.Second,
	}
}

// Disabled returns a configuration that runs the operation exactly once.
func Disabled() Config {
	return Config{Retries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// Attempts returns the total number of attempts the config allows.
func (c Config) Attempts() int {
	if c.Retries < 0 {
		return 1
	}
	return c.Retries + 1
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Retries < 0 {
		return errors.New("retry: retries must not be negative")
	}
	if c.Retries == 0 {
		return nil
	}
	if c.BaseDelay <= 0 {
		return errors.New("retry: base delay must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return errors.New("retry: max delay must be at least the base delay")
	}
	return nil
}

// Delay returns the wait after failed attempt k (0-indexed):
// min(BaseDelay * 2^k, MaxDelay).
func (c Config) Delay(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	d := c.BaseDelay
	for i := 0; i < k; i++ {
		if d >= c.MaxDelay || d > c.MaxDelay/2 {
			return c.MaxDelay
		}
		d *= 2
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}
