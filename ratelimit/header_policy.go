package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goliatone/go-twitch/core"
	"github.com/jonboulle/clockwork"
)

// HeaderPolicy records the Ratelimit-* headers of every response. With
// PreemptiveWait it delays a call on an exhausted bucket until the reported
// reset, never longer than MaxWait. It never rejects a call.
type HeaderPolicy struct {
	Store          StateStore
	Clock          clockwork.Clock
	PreemptiveWait bool
	MaxWait        time.Duration
}

func NewHeaderPolicy(store StateStore) *HeaderPolicy {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &HeaderPolicy{
		Store: store,
		Clock: clockwork.NewRealClock(),
	}
}

func (p *HeaderPolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.Store == nil || !p.PreemptiveWait || p.MaxWait <= 0 {
		return nil
	}
	state, err := p.Store.Get(ctx, NormalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	if state.Remaining > 0 || state.ResetAt == nil {
		return nil
	}
	clock := p.clock()
	wait := state.ResetAt.Sub(clock.Now())
	if wait <= 0 {
		return nil
	}
	if wait > p.MaxWait {
		wait = p.MaxWait
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(wait):
		return nil
	}
}

func (p *HeaderPolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	info := res.RateLimit
	if !info.Present() {
		info = core.ParseRateLimit(res.Headers)
	}
	if !info.Present() && res.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	key = NormalizeKey(key)
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}

	state.LastStatus = res.StatusCode
	state.UpdatedAt = p.clock().Now().UTC()
	if info.HasLimit {
		state.Limit = info.Limit
	}
	if info.HasRemaining {
		state.Remaining = info.Remaining
	}
	if info.Reset != "" {
		state.Reset = info.Reset
		state.ResetAt = info.ResetAt
	}
	if res.StatusCode == http.StatusTooManyRequests {
		state.Remaining = 0
	}
	if state.Remaining <= 0 {
		state.Exhausted++
	} else {
		state.Exhausted = 0
	}
	state.Metadata = cloneMap(state.Metadata)
	for k, v := range res.Metadata {
		state.Metadata[k] = v
	}
	return p.Store.Upsert(ctx, state)
}

func (p *HeaderPolicy) clock() clockwork.Clock {
	if p != nil && p.Clock != nil {
		return p.Clock
	}
	return clockwork.NewRealClock()
}

var _ core.RateLimitPolicy = (*HeaderPolicy)(nil)
