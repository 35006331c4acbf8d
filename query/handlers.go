package query

import (
	"context"

	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/helix"
	"github.com/goliatone/go-twitch/tmi"
)

type CredentialValidator interface {
	ValidateCredential(ctx context.Context, accessToken string) (auth.Validation, error)
}

type ChattersReader interface {
	GetChatters(ctx context.Context, channel string) (tmi.ChattersResponse, error)
}

// ModeratorLister is satisfied by *helix.Client.
type ModeratorLister interface {
	Moderators(req helix.GetModeratorsRequest) *core.Walker[helix.Moderator]
}

type ValidateCredentialQuery struct {
	validator CredentialValidator
}

func NewValidateCredentialQuery(validator CredentialValidator) *ValidateCredentialQuery {
	return &ValidateCredentialQuery{validator: validator}
}

func (q *ValidateCredentialQuery) Query(ctx context.Context, msg ValidateCredentialMessage) (auth.Validation, error) {
	if q == nil || q.validator == nil {
		return auth.Validation{}, core.DependencyError("query: credential validator is required")
	}
	out, err := q.validator.ValidateCredential(ctx, msg.AccessToken)
	if err != nil {
		return auth.Validation{}, core.MapError(err)
	}
	return out, nil
}

type GetChattersQuery struct {
	reader ChattersReader
}

func NewGetChattersQuery(reader ChattersReader) *GetChattersQuery {
	return &GetChattersQuery{reader: reader}
}

func (q *GetChattersQuery) Query(ctx context.Context, msg GetChattersMessage) (tmi.ChattersResponse, error) {
	if q == nil || q.reader == nil {
		return tmi.ChattersResponse{}, core.DependencyError("query: chatters reader is required")
	}
	if err := msg.Validate(); err != nil {
		return tmi.ChattersResponse{}, err
	}
	out, err := q.reader.GetChatters(ctx, msg.Channel)
	if err != nil {
		return tmi.ChattersResponse{}, core.MapError(err)
	}
	return out, nil
}

// ListModeratorsQuery walks every page and returns the moderators in cursor
// order.
type ListModeratorsQuery struct {
	lister ModeratorLister
}

func NewListModeratorsQuery(lister ModeratorLister) *ListModeratorsQuery {
	return &ListModeratorsQuery{lister: lister}
}

func (q *ListModeratorsQuery) Query(ctx context.Context, msg ListModeratorsMessage) ([]helix.Moderator, error) {
	if q == nil || q.lister == nil {
		return nil, core.DependencyError("query: moderator lister is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	moderators := []helix.Moderator{}
	for moderator, err := range q.lister.Moderators(msg.Request).All(ctx) {
		if err != nil {
			return nil, core.MapError(err)
		}
		moderators = append(moderators, moderator)
	}
	return moderators, nil
}
