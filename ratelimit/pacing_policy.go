package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-twitch/core"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long a credential's limiter survives without calls.
const DefaultIdleTTL = 10 * time.Minute

// PacingPolicy spreads calls evenly over the bucket's refill window, one
// token bucket per credential. Limiters start from RequestsPerMinute and
// follow Ratelimit-Limit once the server reports it. A limiter unused for
// IdleTTL is dropped, so rotated or revoked tokens do not pile up.
type PacingPolicy struct {
	RequestsPerMinute int
	MaxWait           time.Duration
	IdleTTL           time.Duration
	Clock             clockwork.Clock

	mu        sync.Mutex
	limiters  map[string]*pacedBucket
	lastSweep time.Time
}

type pacedBucket struct {
	limiter  *rate.Limiter
	perMin   int
	lastUsed time.Time
}

func NewPacingPolicy(requestsPerMinute int, maxWait time.Duration) *PacingPolicy {
	return &PacingPolicy{
		RequestsPerMinute: requestsPerMinute,
		MaxWait:           maxWait,
		IdleTTL:           DefaultIdleTTL,
		Clock:             clockwork.NewRealClock(),
		limiters:          map[string]*pacedBucket{},
	}
}

func (p *PacingPolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil {
		return nil
	}
	bucket := p.bucket(key, 0)
	if bucket == nil {
		return nil
	}
	clock := p.clock()
	now := clock.Now()
	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return nil
	}
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if p.MaxWait > 0 && delay > p.MaxWait {
		// Pacing is advisory: past the cap the call goes out unpaced.
		reservation.CancelAt(now)
		return nil
	}
	select {
	case <-ctx.Done():
		reservation.CancelAt(clock.Now())
		return ctx.Err()
	case <-clock.After(delay):
		return nil
	}
}

func (p *PacingPolicy) AfterCall(_ context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	if p == nil {
		return nil
	}
	info := res.RateLimit
	if !info.Present() {
		info = core.ParseRateLimit(res.Headers)
	}
	if !info.HasLimit || info.Limit <= 0 {
		return nil
	}
	p.bucket(key, info.Limit)
	return nil
}

// bucket returns the limiter for key, retuning it when perMinute differs
// from its current rate.
func (p *PacingPolicy) bucket(key core.RateLimitKey, perMinute int) *pacedBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limiters == nil {
		p.limiters = map[string]*pacedBucket{}
	}
	id := StateKey(NormalizeKey(key))
	now := p.clock().Now()
	p.sweepLocked(now)
	existing, ok := p.limiters[id]
	if !ok {
		initial := perMinute
		if initial <= 0 {
			initial = p.RequestsPerMinute
		}
		if initial <= 0 {
			return nil
		}
		existing = &pacedBucket{
			limiter:  rate.NewLimiter(perMinuteLimit(initial), initial),
			perMin:   initial,
			lastUsed: now,
		}
		p.limiters[id] = existing
		return existing
	}
	existing.lastUsed = now
	if perMinute > 0 && perMinute != existing.perMin {
		existing.limiter.SetLimitAt(now, perMinuteLimit(perMinute))
		existing.limiter.SetBurstAt(now, perMinute)
		existing.perMin = perMinute
	}
	return existing
}

// sweepLocked drops idle limiters, scanning at most once per IdleTTL.
func (p *PacingPolicy) sweepLocked(now time.Time) {
	ttl := p.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if p.lastSweep.IsZero() {
		p.lastSweep = now
		return
	}
	if now.Sub(p.lastSweep) < ttl {
		return
	}
	p.lastSweep = now
	for id, bucket := range p.limiters {
		if now.Sub(bucket.lastUsed) >= ttl {
			delete(p.limiters, id)
		}
	}
}

func (p *PacingPolicy) clock() clockwork.Clock {
	if p != nil && p.Clock != nil {
		return p.Clock
	}
	return clockwork.NewRealClock()
}

func perMinuteLimit(perMinute int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(perMinute))
}

var _ core.RateLimitPolicy = (*PacingPolicy)(nil)
