package gql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ardrive-go/internal/ardrive"
)

// DefaultMaxTries is the number of consecutive failures tolerated per endpoint.
const DefaultMaxTries = 5

// FailoverPolicy is the single retry/failover rule used by every query.
// Each call is tried up to MaxTries times against the active endpoint; after
// MaxTries consecutive failures the next endpoint becomes active and the
// counter resets. When the last endpoint is exhausted the call fails with
// ardrive.ErrGatewayUnavailable.
type FailoverPolicy struct {
	Endpoints []string
	MaxTries  int
	Backoff   func(attempt int) time.Duration
	Logger    ardrive.Logger
}

// NewFailoverPolicy creates a policy over primary followed by backups.
func NewFailoverPolicy(logger ardrive.Logger, primary string, backups ...string) *FailoverPolicy {
	return &FailoverPolicy{
		Endpoints: append([]string{primary}, backups...),
		MaxTries:  DefaultMaxTries,
		Backoff:   LinearBackoff(500 * time.Millisecond),
		Logger:    logger,
	}
}

// LinearBackoff waits step times the attempt number between tries.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

// NoBackoff retries immediately. Used in tests.
func NoBackoff(int) time.Duration { return 0 }

// Failover is one query's position within a FailoverPolicy. Once a query has
// moved to a backup endpoint, later pages of the same query stay there.
type Failover struct {
	policy *FailoverPolicy
	active int
}

// Start begins a new query on the primary endpoint.
func (p *FailoverPolicy) Start() *Failover {
	return &Failover{policy: p}
}

// Endpoint returns the currently active endpoint.
func (f *Failover) Endpoint() string {
	return f.policy.Endpoints[f.active]
}

// Do runs fn until it succeeds, the context ends, or every endpoint is exhausted.
func (f *Failover) Do(ctx context.Context, fn func(ctx context.Context, endpoint string) error) error {
	p := f.policy
	if len(p.Endpoints) == 0 {
		return fmt.Errorf("no query endpoints configured: %w", ardrive.ErrGatewayUnavailable)
	}
	maxTries := p.MaxTries
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}
	logger := p.Logger
	if logger == nil {
		logger = ardrive.NewNopLogger()
	}

	var lastErr error
	for f.active < len(p.Endpoints) {
		endpoint := p.Endpoints[f.active]
		for attempt := 1; attempt <= maxTries; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := fn(ctx, endpoint)
			if err == nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return err
			}
			lastErr = err
			logger.Warn("query attempt failed", "endpoint", endpoint, "attempt", attempt, "error", err)
			if attempt < maxTries && p.Backoff != nil {
				if err := sleep(ctx, p.Backoff(attempt)); err != nil {
					return err
				}
			}
		}
		if f.active+1 < len(p.Endpoints) {
			logger.Warn("switching query endpoint", "from", endpoint, "to", p.Endpoints[f.active+1])
		}
		f.active++
	}
	f.active = len(p.Endpoints) - 1
	return fmt.Errorf("%w: %w", ardrive.ErrGatewayUnavailable, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
