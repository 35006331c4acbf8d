package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-twitch/core"
	"github.com/jonboulle/clockwork"
)

var testKey = core.RateLimitKey{ProviderID: "Twitch", ScopeType: "helix", ScopeID: "client-1", BucketKey: "ABC"}

func TestHeaderPolicy_AfterCallRecordsHeaders(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewHeaderPolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Clock = clockwork.NewFakeClockAt(now)

	err := policy.AfterCall(context.Background(), testKey, core.ResponseMeta{
		StatusCode: 200,
		Headers: map[string]string{
			"Ratelimit-Limit":     "800",
			"Ratelimit-Remaining": "799",
			"Ratelimit-Reset":     "1700000045",
		},
		Metadata: map[string]any{"operation": "GET helix/users"},
	})
	if err != nil {
		t.Fatalf("after call: %v", err)
	}

	state, err := store.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Limit != 800 || state.Remaining != 799 {
		t.Fatalf("unexpected counters: %+v", state)
	}
	if state.Reset != "1700000045" || state.ResetAt == nil || !state.ResetAt.Equal(now.Add(45*time.Second)) {
		t.Fatalf("unexpected reset: %q %v", state.Reset, state.ResetAt)
	}
	if state.Key.ProviderID != "twitch" || state.Key.BucketKey != "abc" {
		t.Fatalf("expected normalized key, got %+v", state.Key)
	}
	if state.Metadata["operation"] != "GET helix/users" || !state.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected metadata: %+v", state)
	}
}

func TestHeaderPolicy_TooManyRequestsMarksExhausted(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewHeaderPolicy(store)

	if err := policy.AfterCall(context.Background(), testKey, core.ResponseMeta{StatusCode: 429}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, err := store.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Remaining != 0 || state.Exhausted != 1 || state.LastStatus != 429 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestHeaderPolicy_BeforeCallWithoutPreemptiveWaitNeverBlocks(t *testing.T) {
	store := NewMemoryStateStore()
	clock := clockwork.NewFakeClock()
	resetAt := clock.Now().Add(time.Hour)
	if err := store.Upsert(context.Background(), State{Key: testKey, Remaining: 0, ResetAt: &resetAt}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	policy := NewHeaderPolicy(store)
	policy.Clock = clock

	if err := policy.BeforeCall(context.Background(), testKey); err != nil {
		t.Fatalf("expected advisory policy to allow the call, got %v", err)
	}
}

func TestHeaderPolicy_PreemptiveWaitIsCapped(t *testing.T) {
	store := NewMemoryStateStore()
	clock := clockwork.NewFakeClock()
	resetAt := clock.Now().Add(time.Minute)
	if err := store.Upsert(context.Background(), State{Key: testKey, Remaining: 0, ResetAt: &resetAt}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	policy := NewHeaderPolicy(store)
	policy.Clock = clock
	policy.PreemptiveWait = true
	policy.MaxWait = 2 * time.Second

	done := make(chan error, 1)
	go func() {
		done <- policy.BeforeCall(context.Background(), testKey)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("waiting for policy timer: %v", err)
	}
	clock.Advance(2 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("before call: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("policy waited past MaxWait")
	}
}

func TestHeaderPolicy_PreemptiveWaitHonoursCancellation(t *testing.T) {
	store := NewMemoryStateStore()
	clock := clockwork.NewFakeClock()
	resetAt := clock.Now().Add(time.Minute)
	if err := store.Upsert(context.Background(), State{Key: testKey, Remaining: 0, ResetAt: &resetAt}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	policy := NewHeaderPolicy(store)
	policy.Clock = clock
	policy.PreemptiveWait = true
	policy.MaxWait = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := policy.BeforeCall(ctx, testKey); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
