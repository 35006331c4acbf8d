package transport

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-twitch/core"
)

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return withEnvelope(goerrors.New(message, category), nil, code, metadata)
}

// transportWrapError keeps source in the chain so the engine can still match
// context cancellation and deadline errors.
func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	return withEnvelope(goerrors.Wrap(source, category, message), source, code, metadata)
}

func withEnvelope(err *goerrors.Error, source error, code int, metadata map[string]any) error {
	err = err.WithCode(code).WithTextCode(transportTextCode(err.Category))
	fields := map[string]any{}
	for key, value := range metadata {
		fields[key] = value
	}
	switch {
	case errors.Is(source, context.DeadlineExceeded):
		fields["timeout"] = true
	case errors.Is(source, context.Canceled):
		fields["cancelled"] = true
	}
	if len(fields) > 0 {
		err.WithMetadata(fields)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorCodeBadInput
	case goerrors.CategoryExternal:
		return core.ErrorCodeTransportFailure
	}
	return core.ErrorCodeInternal
}
