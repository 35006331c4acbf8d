package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

var errNoRegistry = errors.New("gocommand: registry is not configured")

// RegistryAdapter holds the go-command registry the twitch handlers are
// registered with. Resolvers added here run once on Initialize.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) target() (*command.Registry, error) {
	if a == nil || a.registry == nil {
		return nil, errNoRegistry
	}
	return a.registry, nil
}

// Register adds a command or query handler. go-command keeps both kinds in
// the same table.
func (a *RegistryAdapter) Register(handler any) error {
	registry, err := a.target()
	if err != nil {
		return err
	}
	return registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	registry, err := a.target()
	if err != nil {
		return err
	}
	return registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered handler into queueRegistry so
// token jobs can be executed by go-job workers.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	registry, err := a.target()
	if err != nil {
		return false
	}
	return registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	registry, err := a.target()
	if err != nil {
		return err
	}
	return registry.Initialize()
}

// CheckMessage requires a non-empty Type and runs Validate when present.
func CheckMessage(msg any) error {
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: %T does not implement Type() string", msg)
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: %T has an empty message type", msg)
	}
	return command.ValidateMessage(msg)
}

// Dispatch checks msg and hands it to the subscribed command handler.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := CheckMessage(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := CheckMessage(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
