package devkit

import (
	"context"
	"sync"

	"github.com/goliatone/go-twitch/core"
)

// FakeCredentialProvider hands out credentials in order: the first until the
// first invalidation, the second after that, and so on. The last credential
// is reused once the list is exhausted.
type FakeCredentialProvider struct {
	mu            sync.Mutex
	credentials   []core.Credential
	invalidations []core.Invalidation
	currentCalls  int
	Err           error
}

func NewFakeCredentialProvider(credentials ...core.Credential) *FakeCredentialProvider {
	return &FakeCredentialProvider{credentials: append([]core.Credential(nil), credentials...)}
}

func (p *FakeCredentialProvider) Current(context.Context) (core.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentCalls++
	if p.Err != nil {
		return core.Credential{}, p.Err
	}
	if len(p.credentials) == 0 {
		return core.Credential{}, core.NewError(core.KindAuthenticationRejected, "devkit", "no credential scripted")
	}
	index := len(p.invalidations)
	if index >= len(p.credentials) {
		index = len(p.credentials) - 1
	}
	cred := p.credentials[index]
	cred.Scopes = append([]string(nil), cred.Scopes...)
	return cred, nil
}

func (p *FakeCredentialProvider) Invalidate(_ context.Context, reason core.Invalidation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidations = append(p.invalidations, reason)
}

func (p *FakeCredentialProvider) Invalidations() []core.Invalidation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Invalidation(nil), p.invalidations...)
}

func (p *FakeCredentialProvider) CurrentCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentCalls
}

var _ core.CredentialProvider = (*FakeCredentialProvider)(nil)
