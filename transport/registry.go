package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-twitch/core"
)

// AdapterFactory builds an adapter from loosely typed settings such as
// "timeout" (time.Duration or duration string) and "max_response_body_bytes".
type AdapterFactory func(config map[string]any) (core.TransportAdapter, error)

type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]core.TransportAdapter
	factories map[string]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{
		adapters:  map[string]core.TransportAdapter{},
		factories: map[string]AdapterFactory{},
	}
}

// NewDefaultRegistry knows the net/http ("rest") and fasthttp backends, plus
// the "disabled" kind.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.RegisterFactory(KindREST, restFactory)
	_ = registry.RegisterFactory(KindFastHTTP, fasthttpFactory)
	_ = registry.RegisterFactory(KindDisabled, unsupportedFactory(KindDisabled))
	return registry
}

func (r *Registry) Register(adapter core.TransportAdapter) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if adapter == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	kind := normalizeKind(adapter.Kind())
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("transport: adapter kind %q already registered", kind)
	}
	r.adapters[kind] = adapter
	return nil
}

func (r *Registry) RegisterFactory(kind string, factory AdapterFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: adapter factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("transport: adapter factory kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Build returns the registered adapter for kind, or builds one with its factory.
func (r *Registry) Build(kind string, config map[string]any) (core.TransportAdapter, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		kind = KindREST
	}

	r.mu.RLock()
	adapter, ok := r.adapters[kind]
	factory := r.factories[kind]
	r.mu.RUnlock()
	if ok {
		return adapter, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("transport: adapter kind %q not registered", kind)
	}
	built, err := factory(cloneMap(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil adapter", kind)
	}
	return built, nil
}

func (r *Registry) Get(kind string) (core.TransportAdapter, bool) {
	if r == nil {
		return nil, false
	}
	kind = normalizeKind(kind)
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[kind]
	return adapter, ok
}

// Kinds lists every kind that Build can satisfy, sorted.
func (r *Registry) Kinds() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	for kind := range r.adapters {
		seen[kind] = struct{}{}
	}
	for kind := range r.factories {
		seen[kind] = struct{}{}
	}
	kinds := make([]string, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func restFactory(config map[string]any) (core.TransportAdapter, error) {
	timeout, limit, err := adapterSettings(config)
	if err != nil {
		return nil, err
	}
	adapter := NewRESTAdapter(nil)
	adapter.DefaultTimeout = timeout
	if limit > 0 {
		adapter.MaxResponseBodyBytes = limit
	}
	return adapter, nil
}

func fasthttpFactory(config map[string]any) (core.TransportAdapter, error) {
	timeout, limit, err := adapterSettings(config)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	adapter := NewFastHTTPAdapter(newFastHTTPClient(timeout))
	adapter.DefaultTimeout = timeout
	if limit > 0 {
		adapter.MaxResponseBodyBytes = limit
	}
	return adapter, nil
}

func adapterSettings(config map[string]any) (time.Duration, int64, error) {
	var timeout time.Duration
	switch value := config["timeout"].(type) {
	case nil:
	case time.Duration:
		timeout = value
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return 0, 0, fmt.Errorf("transport: invalid timeout %q: %w", value, err)
		}
		timeout = parsed
	default:
		return 0, 0, fmt.Errorf("transport: unsupported timeout type %T", value)
	}

	var limit int64
	switch value := config["max_response_body_bytes"].(type) {
	case nil:
	case int:
		limit = int64(value)
	case int64:
		limit = value
	default:
		return 0, 0, fmt.Errorf("transport: unsupported max_response_body_bytes type %T", value)
	}
	return timeout, limit, nil
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
