package query

import (
	"strings"

	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/helix"
)

const (
	TypeValidateCredential = "twitch.query.credential.validate"
	TypeGetChatters        = "twitch.query.tmi.chatters"
	TypeListModerators     = "twitch.query.helix.moderators"
)

// ValidateCredentialMessage validates AccessToken, or the current credential
// when it is empty.
type ValidateCredentialMessage struct {
	AccessToken string
}

func (ValidateCredentialMessage) Type() string { return TypeValidateCredential }

func (ValidateCredentialMessage) Validate() error { return nil }

type GetChattersMessage struct {
	Channel string
}

func (GetChattersMessage) Type() string { return TypeGetChatters }

func (m GetChattersMessage) Validate() error {
	if strings.Trim(strings.TrimSpace(m.Channel), "#") == "" {
		return core.FieldError("query", "channel", "channel is required")
	}
	return nil
}

type ListModeratorsMessage struct {
	Request helix.GetModeratorsRequest
}

func (ListModeratorsMessage) Type() string { return TypeListModerators }

func (m ListModeratorsMessage) Validate() error {
	if strings.TrimSpace(m.Request.BroadcasterID) == "" {
		return core.FieldError("query", "broadcaster_id", "broadcaster id is required")
	}
	return nil
}
