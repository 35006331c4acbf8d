package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type tokenRecord struct {
	bun.BaseModel `bun:"table:twitch_tokens,alias:tt"`

	ID                string     `bun:"id,pk"`
	TokenKey          string     `bun:"token_key,notnull"`
	ClientID          string     `bun:"client_id,notnull"`
	UserID            string     `bun:"user_id,notnull"`
	Login             string     `bun:"login,notnull"`
	EncryptedPayload  []byte     `bun:"encrypted_payload,notnull"`
	Scopes            []string   `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	EncryptionKeyID   string     `bun:"encryption_key_id,notnull"`
	EncryptionVersion int        `bun:"encryption_version,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:twitch_rate_limit_states,alias:trl"`

	ID         string         `bun:"id,pk"`
	ProviderID string         `bun:"provider_id,notnull"`
	ScopeType  string         `bun:"scope_type,notnull"`
	ScopeID    string         `bun:"scope_id,notnull"`
	BucketKey  string         `bun:"bucket_key,notnull"`
	Limit      int            `bun:"limit,notnull"`
	Remaining  int            `bun:"remaining,notnull"`
	Reset      string         `bun:"reset,notnull"`
	ResetAt    *time.Time     `bun:"reset_at,nullzero"`
	LastStatus int            `bun:"last_status,notnull"`
	Exhausted  int            `bun:"exhausted,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
