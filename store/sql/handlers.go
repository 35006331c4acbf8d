package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func tokenHandlers() repository.ModelHandlers[*tokenRecord] {
	return repository.ModelHandlers[*tokenRecord]{
		NewRecord: func() *tokenRecord {
			return &tokenRecord{}
		},
		GetID: func(record *tokenRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *tokenRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "token_key"
		},
		GetIdentifierValue: func(record *tokenRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.TokenKey)
		},
	}
}

func rateLimitStateHandlers() repository.ModelHandlers[*rateLimitStateRecord] {
	return repository.ModelHandlers[*rateLimitStateRecord]{
		NewRecord: func() *rateLimitStateRecord {
			return &rateLimitStateRecord{}
		},
		GetID: func(record *rateLimitStateRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *rateLimitStateRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *rateLimitStateRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
