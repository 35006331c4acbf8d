package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/ratelimit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore keeps the last Ratelimit-* snapshot per credential so
// that several processes sharing a client id see the same bucket.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.repo == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = ratelimit.NormalizeKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return ratelimit.State{}, err
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider_id", "=", key.ProviderID),
		repository.SelectBy("scope_type", "=", key.ScopeType),
		repository.SelectBy("scope_id", "=", key.ScopeID),
		repository.SelectBy("bucket_key", "=", key.BucketKey),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return ratelimit.State{}, err
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toDomain(), nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	record := &rateLimitStateRecord{
		ID:         uuid.NewString(),
		ProviderID: state.Key.ProviderID,
		ScopeType:  state.Key.ScopeType,
		ScopeID:    state.Key.ScopeID,
		BucketKey:  state.Key.BucketKey,
		Limit:      state.Limit,
		Remaining:  state.Remaining,
		Reset:      state.Reset,
		ResetAt:    copyTimePointer(state.ResetAt),
		LastStatus: state.LastStatus,
		Exhausted:  state.Exhausted,
		Metadata:   copyAnyMap(state.Metadata),
		CreatedAt:  state.UpdatedAt.UTC(),
		UpdatedAt:  state.UpdatedAt.UTC(),
	}

	// One row per bucket: the unique key index turns a repeat insert into an
	// update of the snapshot columns. id and created_at keep their first values.
	insert := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_id, scope_type, scope_id, bucket_key) DO UPDATE")
	for _, column := range rateLimitSnapshotColumns {
		insert = insert.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
	}
	_, err := insert.Exec(ctx)
	return err
}

var rateLimitSnapshotColumns = []string{
	"limit", "remaining", "reset", "reset_at", "last_status", "exhausted", "metadata", "updated_at",
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	return ratelimit.State{
		Key: core.RateLimitKey{
			ProviderID: r.ProviderID,
			ScopeType:  r.ScopeType,
			ScopeID:    r.ScopeID,
			BucketKey:  r.BucketKey,
		},
		Limit:      r.Limit,
		Remaining:  r.Remaining,
		Reset:      r.Reset,
		ResetAt:    copyTimePointer(r.ResetAt),
		LastStatus: r.LastStatus,
		Exhausted:  r.Exhausted,
		UpdatedAt:  r.UpdatedAt.UTC(),
		Metadata:   copyAnyMap(r.Metadata),
	}
}

// Unauthenticated calls carry no client id or token fingerprint, so only the
// provider and API are mandatory.
func validateRateLimitKey(key core.RateLimitKey) error {
	if strings.TrimSpace(key.ProviderID) == "" {
		return fmt.Errorf("sqlstore: rate-limit provider id is required")
	}
	if strings.TrimSpace(key.ScopeType) == "" {
		return fmt.Errorf("sqlstore: rate-limit scope type is required")
	}
	return nil
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
