// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"fmt"
	"time"
)

type PollerConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	TimeoutDuration time.Duration
}

// Poller retries a check with exponential backoff. sign --wait uses it to
// hold until a token is plugged in.
type Poller struct {
	config PollerConfig
}

type PollResult[T any] struct {
	Found    bool
	Data     T
	Attempts int
	Error    error
}

func NewPoller(config PollerConfig) *Poller {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 60
	}
	if config.InitialInterval == 0 {
		config.InitialInterval = 1 * time.Second
	}
	if config.MaxInterval == 0 {
		config.MaxInterval = 10 * time.Second
	}
	if config.TimeoutDuration == 0 {
		config.TimeoutDuration = 2 * time.Minute
	}

	return &Poller{config: config}
}

// Until calls check until it returns a nil error, the attempt budget runs out
// or the deadline passes. The returned error is non-nil only when ctx itself
// was cancelled by the caller; exhaustion is reported through the result.
func Until[T any](ctx context.Context, p *Poller, check func(ctx context.Context) (T, error), onAttempt func(attempt int, lastErr error)) (*PollResult[T], error) {
	pctx, cancel := context.WithTimeout(ctx, p.config.TimeoutDuration)
	defer cancel()

	interval := p.config.InitialInterval
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &PollResult[T]{Attempts: attempt - 1, Error: lastErr}, err
		}
		if pctx.Err() != nil {
			return &PollResult[T]{Attempts: attempt - 1, Error: fmt.Errorf("polling timeout exceeded: %w", lastErr)}, nil
		}

		if onAttempt != nil {
			onAttempt(attempt, lastErr)
		}

		data, err := check(pctx)
		if err == nil {
			return &PollResult[T]{Found: true, Data: data, Attempts: attempt}, nil
		}
		lastErr = err

		if attempt >= p.config.MaxAttempts {
			return &PollResult[T]{Attempts: attempt, Error: fmt.Errorf("max attempts exceeded: %w", err)}, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			interval = p.exponentialBackoff(interval)
		case <-pctx.Done():
			timer.Stop()
		}
	}
}

func (p *Poller) exponentialBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > p.config.MaxInterval {
		next = p.config.MaxInterval
	}
	return next
}
