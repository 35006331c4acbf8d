package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrTokenNotFound = errors.New("auth: token not found")

// TokenStore persists user tokens under a caller chosen key such as the user id.
type TokenStore interface {
	Load(ctx context.Context, key string) (Token, error)
	Save(ctx context.Context, key string, token Token) error
	Delete(ctx context.Context, key string) error
}

type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]Token{}}
}

func (s *MemoryTokenStore) Load(_ context.Context, key string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[strings.TrimSpace(key)]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	token.Scopes = append([]string(nil), token.Scopes...)
	return token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, key string, token Token) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("auth: token key is required")
	}
	token.Scopes = append([]string(nil), token.Scopes...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = token
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, strings.TrimSpace(key))
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
