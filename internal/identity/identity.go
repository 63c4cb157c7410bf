// Package identity resolves the acting user for write paths. Send and
// read-patch operations require a signed-in user and fail fast with
// ErrAuthRequired before touching the store.
package identity

import (
	"context"
	"errors"
)

// ErrAuthRequired is returned when an operation that writes on behalf of a
// user runs without a resolved user identity.
var ErrAuthRequired = errors.New("identity: sign-in required")

// Provider yields the current user's id.
type Provider interface {
	// CurrentUserID returns the acting user, or ErrAuthRequired when nobody
	// is signed in.
	CurrentUserID(ctx context.Context) (string, error)
}

type ctxKey struct{}

// WithUser stores the acting user id on the context.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFromContext extracts the acting user id, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// ContextProvider reads the user id placed on the context by the HTTP
// middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentUserID(ctx context.Context) (string, error) {
	id, ok := UserFromContext(ctx)
	if !ok {
		return "", ErrAuthRequired
	}
	return id, nil
}

// StaticProvider always reports the same user. Used in tests and -dev mode.
type StaticProvider string

func (p StaticProvider) CurrentUserID(context.Context) (string, error) {
	if p == "" {
		return "", ErrAuthRequired
	}
	return string(p), nil
}
