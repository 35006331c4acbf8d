package core

import (
	"strconv"
	"strings"
	"time"
)

const (
	HeaderRateLimitLimit     = "Ratelimit-Limit"
	HeaderRateLimitRemaining = "Ratelimit-Remaining"
	HeaderRateLimitReset     = "Ratelimit-Reset"
)

// RateLimitInfo is what the server reported on one response. Reset is kept
// verbatim; ResetAt is only set when Reset parses as unix seconds.
type RateLimitInfo struct {
	Limit        int
	Remaining    int
	Reset        string
	ResetAt      *time.Time
	HasLimit     bool
	HasRemaining bool
}

func (r RateLimitInfo) Present() bool {
	return r.HasLimit || r.HasRemaining || r.Reset != ""
}

func (r RateLimitInfo) Exhausted() bool {
	return r.HasRemaining && r.Remaining <= 0
}

func ParseRateLimit(headers map[string]string) RateLimitInfo {
	info := RateLimitInfo{}
	if value := HeaderValue(headers, HeaderRateLimitLimit); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			info.Limit = parsed
			info.HasLimit = true
		}
	}
	if value := HeaderValue(headers, HeaderRateLimitRemaining); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			info.Remaining = parsed
			info.HasRemaining = true
		}
	}
	if value, ok := rawHeaderValue(headers, HeaderRateLimitReset); ok {
		info.Reset = value
		if unix, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && unix > 0 {
			resetAt := time.Unix(unix, 0).UTC()
			info.ResetAt = &resetAt
		}
	}
	return info
}

// HeaderValue looks a header up case-insensitively and trims it.
func HeaderValue(headers map[string]string, key string) string {
	value, _ := rawHeaderValue(headers, key)
	return strings.TrimSpace(value)
}

func rawHeaderValue(headers map[string]string, key string) (string, bool) {
	if len(headers) == 0 {
		return "", false
	}
	if value, ok := headers[key]; ok {
		return value, true
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return value, true
		}
	}
	return "", false
}
