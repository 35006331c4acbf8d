package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/helix"
	"github.com/goliatone/go-twitch/tmi"
)

var (
	_ gocmd.Querier[ValidateCredentialMessage, auth.Validation] = (*ValidateCredentialQuery)(nil)
	_ gocmd.Querier[GetChattersMessage, tmi.ChattersResponse]   = (*GetChattersQuery)(nil)
	_ gocmd.Querier[ListModeratorsMessage, []helix.Moderator]   = (*ListModeratorsQuery)(nil)
	_ ModeratorLister                                           = (*helix.Client)(nil)
	_ ChattersReader                                            = (*tmi.Client)(nil)
)
