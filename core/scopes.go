package core

import (
	"sort"
	"strings"
)

// MissingScopes returns the required scopes absent from granted, compared
// case-insensitively, sorted.
func MissingScopes(required []string, granted []string) []string {
	if len(required) == 0 {
		return nil
	}
	grantedSet := toScopeSet(granted)
	missing := []string{}
	for scope := range toScopeSet(required) {
		if _, ok := grantedSet[scope]; !ok {
			missing = append(missing, scope)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return missing
}

func NormalizeScopes(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	set := toScopeSet(values)
	out := make([]string, 0, len(set))
	for scope := range set {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

func toScopeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	return set
}
