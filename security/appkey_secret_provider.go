package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-twitch/core"
)

type Option func(*AppKeySecretProvider)

type appKey struct {
	id      string
	version int
	aead    cipher.AEAD
}

// AppKeySecretProvider seals secrets such as OAuth tokens with AES-GCM under
// an application key. Retired keys can still open what they sealed.
type AppKeySecretProvider struct {
	current  appKey
	retired  []appKey
	window   KeyRotationWindow
	now      func() time.Time
	buildErr error
}

// KeyRotationWindow bounds when the current key may seal new secrets. A zero
// bound is open.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	afterStart := w.NotBefore.IsZero() || !at.Before(w.NotBefore)
	beforeEnd := w.NotAfter.IsZero() || !at.After(w.NotAfter)
	return afterStart && beforeEnd
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.current.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.current.version = version
		}
	}
}

// WithRetiredKey keeps an older key around for decryption only.
func WithRetiredKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) {
		aead, err := newAEAD(keyMaterial)
		if err != nil {
			provider.buildErr = err
			return
		}
		provider.retired = append(provider.retired, appKey{id: strings.TrimSpace(id), version: version, aead: aead})
	}
}

// WithRotationWindow limits when the current key may encrypt.
func WithRotationWindow(window KeyRotationWindow) Option {
	return func(provider *AppKeySecretProvider) {
		provider.window = window
	}
}

func WithNow(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	aead, err := newAEAD(keyMaterial)
	if err != nil {
		return nil, err
	}
	provider := &AppKeySecretProvider{
		current: appKey{id: "app-key", version: 1, aead: aead},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if provider.buildErr != nil {
		return nil, provider.buildErr
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	if !p.window.Allows(p.now()) {
		return nil, fmt.Errorf("security: key %s v%d is outside its rotation window", p.current.id, p.current.version)
	}
	nonce := make([]byte, p.current.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := p.current.aead.Seal(nil, nonce, plaintext, nil)
	return encodeEnvelope(envelope{
		KeyID:      p.current.id,
		Version:    p.current.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, ok := p.keyFor(env.KeyID, env.Version)
	if !ok {
		return nil, fmt.Errorf("security: no key for kid %q version %d", env.KeyID, env.Version)
	}
	nonce, err := decodeBase64("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	sealed, err := decodeBase64("ciphertext payload", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := key.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) keyFor(id string, version int) (appKey, bool) {
	matches := func(key appKey) bool {
		return (id == "" || id == key.id) && (version <= 0 || version == key.version)
	}
	if matches(p.current) {
		return p.current, true
	}
	for _, key := range p.retired {
		if matches(key) {
			return key, true
		}
	}
	return appKey{}, false
}

// Metadata returns the key id and version new secrets are sealed with.
func (p *AppKeySecretProvider) Metadata() (string, int) {
	if p == nil {
		return "", 0
	}
	return p.current.id, p.current.version
}

func newAEAD(keyMaterial []byte) (cipher.AEAD, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return aead, nil
}

// normalizeKey keeps valid AES key sizes and hashes anything else to 32 bytes.
func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		return append([]byte(nil), value...)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
