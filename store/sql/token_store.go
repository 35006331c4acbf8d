package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// tokenPayload is the part of a token that is sealed before it reaches the
// database.
type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

type keyMetadata interface {
	Metadata() (string, int)
}

// TokenStore persists OAuth tokens with the secrets encrypted at rest.
type TokenStore struct {
	db      *bun.DB
	repo    repository.Repository[*tokenRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

func NewTokenStore(db *bun.DB, secrets core.SecretProvider) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required")
	}
	repo := repository.NewRepository[*tokenRecord](db, tokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	return &TokenStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *TokenStore) Load(ctx context.Context, key string) (auth.Token, error) {
	if s == nil || s.repo == nil {
		return auth.Token{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return auth.Token{}, fmt.Errorf("sqlstore: token key is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("token_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return auth.Token{}, err
	}
	if len(records) == 0 {
		return auth.Token{}, auth.ErrTokenNotFound
	}
	return s.toDomain(ctx, records[0])
}

func (s *TokenStore) Save(ctx context.Context, key string, token auth.Token) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: token key is required")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return fmt.Errorf("sqlstore: access token is required")
	}

	payload, err := json.Marshal(tokenPayload{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	})
	if err != nil {
		return fmt.Errorf("sqlstore: encode token payload: %w", err)
	}
	sealed, err := s.secrets.Encrypt(ctx, payload)
	if err != nil {
		return fmt.Errorf("sqlstore: encrypt token payload: %w", err)
	}
	keyID, keyVersion := "", 0
	if meta, ok := s.secrets.(keyMetadata); ok {
		keyID, keyVersion = meta.Metadata()
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findTokenTx(ctx, tx, key)
		if err != nil {
			return err
		}
		created := record == nil
		if created {
			record = &tokenRecord{ID: uuid.NewString(), TokenKey: key, CreatedAt: now}
		}
		record.ClientID = strings.TrimSpace(token.ClientID)
		record.UserID = strings.TrimSpace(token.UserID)
		record.Login = strings.TrimSpace(token.Login)
		record.EncryptedPayload = sealed
		record.Scopes = append([]string{}, token.Scopes...)
		record.ExpiresAt = nil
		if !token.ExpiresAt.IsZero() {
			expiresAt := token.ExpiresAt.UTC()
			record.ExpiresAt = &expiresAt
		}
		record.EncryptionKeyID = keyID
		record.EncryptionVersion = keyVersion
		record.UpdatedAt = now

		if created {
			_, err := tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err = tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return err
	})
}

func (s *TokenStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("token_key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}

func (s *TokenStore) toDomain(ctx context.Context, record *tokenRecord) (auth.Token, error) {
	plaintext, err := s.secrets.Decrypt(ctx, record.EncryptedPayload)
	if err != nil {
		return auth.Token{}, fmt.Errorf("sqlstore: decrypt token %q: %w", record.TokenKey, err)
	}
	var payload tokenPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return auth.Token{}, fmt.Errorf("sqlstore: decode token %q: %w", record.TokenKey, err)
	}
	token := auth.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Scopes:       append([]string(nil), record.Scopes...),
		ClientID:     record.ClientID,
		UserID:       record.UserID,
		Login:        record.Login,
	}
	if record.ExpiresAt != nil {
		token.ExpiresAt = record.ExpiresAt.UTC()
	}
	return token, nil
}

func findTokenTx(ctx context.Context, tx bun.Tx, key string) (*tokenRecord, error) {
	record := &tokenRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
