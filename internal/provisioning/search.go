package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Outcome is the result of one zone attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeQuota     Outcome = "quota_exceeded"
	OutcomeExhausted Outcome = "resource_pool_exhausted"
	OutcomeFailed    Outcome = "failed"
)

// Attempt records one zone attempt.
type Attempt struct {
	Zone    string
	Outcome Outcome
	Err     error
}

// Result is the outcome of a zone search.
type Result struct {
	// Instance is set when a zone succeeded.
	Instance *Instance
	// Attempts lists every zone tried, in order.
	Attempts []Attempt
}

// LastZone returns the zone of the final attempt, or "".
func (r *Result) LastZone() string {
	if len(r.Attempts) == 0 {
		return ""
	}
	return r.Attempts[len(r.Attempts)-1].Zone
}

// Searcher tries zones one by one until a VM is created.
type Searcher struct {
	provider Provider
	logger   zerolog.Logger
	timeout  time.Duration

	// OnAttempt, when set, is called after every zone attempt.
	OnAttempt func(Attempt)
}

// NewSearcher creates a searcher. timeout bounds each zone attempt; zero means none.
func NewSearcher(p Provider, timeout time.Duration, logger zerolog.Logger) *Searcher {
	return &Searcher{provider: p, timeout: timeout, logger: logger}
}

// Search attempts creation in each zone in order and stops at the first success.
//
// A quota error stops the search immediately and returns an error wrapping
// ErrQuotaExceeded. When every zone fails the error wraps ErrNoCapacity.
// The returned Result is never nil.
func (s *Searcher) Search(ctx context.Context, zones []string, spec InstanceSpec) (*Result, error) {
	result := &Result{}

	for _, zone := range zones {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		s.logger.Info().Str("zone", zone).Str("instance", spec.Name).Msg("Attempting to create VM")
		inst, err := s.create(ctx, zone, spec)

		attempt := Attempt{Zone: zone, Err: err}
		switch {
		case err == nil:
			attempt.Outcome = OutcomeCreated
		case KindOf(err) == KindQuotaExceeded:
			attempt.Outcome = OutcomeQuota
		case KindOf(err) == KindResourcePoolExhausted:
			attempt.Outcome = OutcomeExhausted
		default:
			attempt.Outcome = OutcomeFailed
		}
		result.Attempts = append(result.Attempts, attempt)
		if s.OnAttempt != nil {
			s.OnAttempt(attempt)
		}

		switch attempt.Outcome {
		case OutcomeCreated:
			s.logger.Info().Str("zone", zone).Msg("VM created")
			result.Instance = inst
			return result, nil
		case OutcomeQuota:
			return result, fmt.Errorf("%w in zone %s: %w", ErrQuotaExceeded, zone, err)
		case OutcomeExhausted:
			s.logger.Warn().Str("zone", zone).Msg("Resource unavailable in zone, trying next zone")
		default:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn().Str("zone", zone).Err(err).Msg("Failed to create VM in zone")
		}
	}

	return result, fmt.Errorf("%w (%d zones tried)", ErrNoCapacity, len(result.Attempts))
}

func (s *Searcher) create(ctx context.Context, zone string, spec InstanceSpec) (*Instance, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.provider.CreateInstance(ctx, zone, spec)
}
