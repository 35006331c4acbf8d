package command

import (
	"strings"

	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/pubsub"
)

const (
	TypeRefreshCredential = "twitch.command.credential.refresh"
	TypeRevokeCredential  = "twitch.command.credential.revoke"
	TypeSubscribeTopic    = "twitch.command.pubsub.subscribe"
	TypeUnsubscribeTopic  = "twitch.command.pubsub.unsubscribe"
)

// RefreshCredentialMessage forces a refresh grant for the configured user
// token.
type RefreshCredentialMessage struct {
	Reason string
}

func (RefreshCredentialMessage) Type() string { return TypeRefreshCredential }

func (RefreshCredentialMessage) Validate() error { return nil }

// RevokeCredentialMessage revokes AccessToken, or the current credential when
// it is empty.
type RevokeCredentialMessage struct {
	AccessToken string
	Reason      string
}

func (RevokeCredentialMessage) Type() string { return TypeRevokeCredential }

func (RevokeCredentialMessage) Validate() error { return nil }

type SubscribeTopicMessage struct {
	Topic     string
	AuthToken string
	Handler   pubsub.Handler
}

func (SubscribeTopicMessage) Type() string { return TypeSubscribeTopic }

func (m SubscribeTopicMessage) Validate() error {
	if err := validateTopic(m.Topic); err != nil {
		return err
	}
	if strings.TrimSpace(m.AuthToken) == "" {
		return core.FieldError("command", "auth_token", "auth token is required")
	}
	return nil
}

type UnsubscribeTopicMessage struct {
	Topic string
}

func (UnsubscribeTopicMessage) Type() string { return TypeUnsubscribeTopic }

func (m UnsubscribeTopicMessage) Validate() error {
	return validateTopic(m.Topic)
}

func validateTopic(topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return core.FieldError("command", "topic", "topic is required")
	}
	family, id, ok := strings.Cut(topic, ".")
	if !ok || family == "" || id == "" {
		return core.FieldError("command", "topic", "topic must be <family>.<id>")
	}
	return nil
}
