package stt

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrNoCredentials is returned when the pool is constructed without any keys.
var ErrNoCredentials = errors.New("stt: no credentials configured")

// Pool holds an ordered set of interchangeable upstream credentials.
// The order is configuration order and is significant: credentials are
// always tried first to last. Rate-limited marks live only for the lifetime
// of the Pool, which is expected to be one webhook invocation.
type Pool struct {
	keys    []string
	limited []bool
}

// NewPool creates a Pool over the given credentials in failover order.
func NewPool(keys []string) *Pool {
	return &Pool{
		keys:    keys,
		limited: make([]bool, len(keys)),
	}
}

// Len reports the number of credentials in the pool.
func (p *Pool) Len() int { return len(p.keys) }

// Result is the aggregate outcome for a whole invocation: either the text
// from the first successful credential, or an exhaustion tagged with its
// dominant cause.
type Result struct {
	Text string
	OK   bool

	// RateLimited is true when every attempted credential reported a rate
	// limit. It selects the non-intrusive user feedback path.
	RateLimited bool

	// Err is the last classified error when OK is false.
	Err error
}

// Run drives the provider through the pool until one credential succeeds or
// all are exhausted. Failover is strictly sequential: success returns
// immediately, a rate limit marks the credential and moves on, transient and
// fatal errors move on without marking (a fatal error on one account is not
// assumed to apply to others).
func (p *Pool) Run(ctx context.Context, provider Provider, req *Request) Result {
	log := zerolog.Ctx(ctx)

	if len(p.keys) == 0 {
		return Result{Err: ErrNoCredentials}
	}

	sawError := false
	var lastErr error

	for i, key := range p.keys {
		if p.limited[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			// Out of invocation budget; credentials not yet tried are
			// simply not attempted. Counts as an errored exhaustion.
			return Result{Err: err}
		}

		log.Debug().Int("credential", i+1).Int("of", len(p.keys)).
			Str("kind", req.Kind.String()).Msg("attempting upstream call")

		outcome := provider.Transcribe(ctx, key, req)
		switch outcome.Status {
		case StatusSuccess:
			return Result{Text: outcome.Text, OK: true}
		case StatusRateLimited:
			log.Warn().Int("credential", i+1).Msg("credential rate limited, trying next")
			p.limited[i] = true
			lastErr = outcome.Err
		case StatusTransient:
			log.Warn().Int("credential", i+1).Err(outcome.Err).Msg("transient upstream failure, trying next")
			sawError = true
			lastErr = outcome.Err
		case StatusFatal:
			log.Error().Int("credential", i+1).Err(outcome.Err).Msg("upstream rejected request, trying next")
			sawError = true
			lastErr = outcome.Err
		}
	}

	return Result{RateLimited: !sawError, Err: lastErr}
}
