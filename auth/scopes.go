package auth

import "strings"

const (
	ScopeAnalyticsReadExtensions    = "analytics:read:extensions"
	ScopeAnalyticsReadGames         = "analytics:read:games"
	ScopeBitsRead                   = "bits:read"
	ScopeChannelEditCommercial      = "channel:edit:commercial"
	ScopeChannelManageBroadcast     = "channel:manage:broadcast"
	ScopeChannelManageRedemptions   = "channel:manage:redemptions"
	ScopeChannelModerate            = "channel:moderate"
	ScopeChannelReadHypeTrain       = "channel:read:hype_train"
	ScopeChannelReadRedemptions     = "channel:read:redemptions"
	ScopeChannelReadStreamKey       = "channel:read:stream_key"
	ScopeChannelReadSubscriptions   = "channel:read:subscriptions"
	ScopeChatEdit                   = "chat:edit"
	ScopeChatRead                   = "chat:read"
	ScopeClipsEdit                  = "clips:edit"
	ScopeModerationRead             = "moderation:read"
	ScopeModeratorManageBannedUsers = "moderator:manage:banned_users"
	ScopeModeratorManageAutoMod     = "moderator:manage:automod"
	ScopeUserEdit                   = "user:edit"
	ScopeUserEditFollows            = "user:edit:follows"
	ScopeUserReadBlockedUsers       = "user:read:blocked_users"
	ScopeUserReadBroadcast          = "user:read:broadcast"
	ScopeUserReadEmail              = "user:read:email"
	ScopeWhispersRead               = "whispers:read"
	ScopeWhispersEdit               = "whispers:edit"
)

// ParseScopes splits a space separated scope string as sent to /authorize.
func ParseScopes(raw string) []string {
	return normalizeValues(strings.Fields(raw))
}

func JoinScopes(scopes []string) string {
	return strings.Join(normalizeValues(scopes), " ")
}
