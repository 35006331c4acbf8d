package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/pubsub"
)

type CredentialService interface {
	RefreshCredential(ctx context.Context) (RefreshResult, error)
	RevokeCredential(ctx context.Context, accessToken string, reason string) error
}

type TopicService interface {
	SubscribeTopic(ctx context.Context, topic string, authToken string, handler pubsub.Handler) error
	UnsubscribeTopic(ctx context.Context, topic string) error
}

// RefreshResult describes a refreshed token without exposing its secrets.
type RefreshResult struct {
	UserID    string
	Login     string
	Scopes    []string
	ExpiresAt time.Time
}

type RefreshCredentialCommand struct {
	service CredentialService
}

func NewRefreshCredentialCommand(service CredentialService) *RefreshCredentialCommand {
	return &RefreshCredentialCommand{service: service}
}

func (c *RefreshCredentialCommand) Execute(ctx context.Context, msg RefreshCredentialMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command: credential service is required")
	}
	out, err := c.service.RefreshCredential(ctx)
	if err != nil {
		return core.MapError(err)
	}
	storeResult(ctx, out)
	return nil
}

type RevokeCredentialCommand struct {
	service CredentialService
}

func NewRevokeCredentialCommand(service CredentialService) *RevokeCredentialCommand {
	return &RevokeCredentialCommand{service: service}
}

func (c *RevokeCredentialCommand) Execute(ctx context.Context, msg RevokeCredentialMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command: credential service is required")
	}
	if err := c.service.RevokeCredential(ctx, msg.AccessToken, msg.Reason); err != nil {
		return core.MapError(err)
	}
	return nil
}

type SubscribeTopicCommand struct {
	service TopicService
}

func NewSubscribeTopicCommand(service TopicService) *SubscribeTopicCommand {
	return &SubscribeTopicCommand{service: service}
}

func (c *SubscribeTopicCommand) Execute(ctx context.Context, msg SubscribeTopicMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command: topic service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.service.SubscribeTopic(ctx, msg.Topic, msg.AuthToken, msg.Handler); err != nil {
		return core.MapError(err)
	}
	return nil
}

type UnsubscribeTopicCommand struct {
	service TopicService
}

func NewUnsubscribeTopicCommand(service TopicService) *UnsubscribeTopicCommand {
	return &UnsubscribeTopicCommand{service: service}
}

func (c *UnsubscribeTopicCommand) Execute(ctx context.Context, msg UnsubscribeTopicMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command: topic service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.service.UnsubscribeTopic(ctx, msg.Topic); err != nil {
		return core.MapError(err)
	}
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
