package authui

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// TemplateUserKey is the request local and template variable holding the signed in user
var TemplateUserKey = "current_user"

// localAllowUnconfirmed marks routes that accept unconfirmed accounts
const localAllowUnconfirmed = "auth_allow_unconfirmed"

const localUserLoaded = "auth_user_loaded"

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// CurrentUser returns the user loaded by LoadCurrentUser or nil
func CurrentUser(c router.Context) *User {
	if user, ok := c.Locals(TemplateUserKey).(*User); ok && user != nil {
		return user
	}
	if user, ok := FromContext(c.Context()); ok {
		return user
	}
	return nil
}

// IsAuthenticated reports if the request has a signed in user
func IsAuthenticated(c router.Context) bool {
	return CurrentUser(c) != nil
}

func setCurrentUser(c router.Context, user *User) {
	c.Locals(TemplateUserKey, user)
	c.SetContext(WithContext(c.Context(), user))
}

func clearCurrentUser(c router.Context) {
	c.Locals(TemplateUserKey, (*User)(nil))
	c.SetContext(WithContext(c.Context(), nil))
}
