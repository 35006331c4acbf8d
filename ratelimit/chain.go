package ratelimit

import (
	"context"
	"errors"

	"github.com/goliatone/go-twitch/core"
)

type chain []core.RateLimitPolicy

// Chain runs policies in order. BeforeCall stops at the first error; every
// AfterCall runs and their errors are joined.
func Chain(policies ...core.RateLimitPolicy) core.RateLimitPolicy {
	out := make(chain, 0, len(policies))
	for _, policy := range policies {
		if policy != nil {
			out = append(out, policy)
		}
	}
	return out
}

func (c chain) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	for _, policy := range c {
		if err := policy.BeforeCall(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c chain) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	var errs []error
	for _, policy := range c {
		if err := policy.AfterCall(ctx, key, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
