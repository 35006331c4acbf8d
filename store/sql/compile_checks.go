package sqlstore

import (
	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/ratelimit"
)

var (
	_ auth.TokenStore      = (*TokenStore)(nil)
	_ ratelimit.StateStore = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
)
