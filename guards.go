package authui

import (
	"github.com/goliatone/go-router"
)

// LoginRequired lets signed in users through. Unconfirmed accounts are sent
// to the account verification page when confirmation is required, unless
// the route was wrapped with AllowUnconfirmed.
func (b *Blueprint) LoginRequired() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return b.Unauthenticated(c)
			}

			if !b.confirmed(c, user) {
				return b.unconfirmed(c)
			}

			return next(c)
		}
	}
}

// RolesRequired lets users through that have every role
func (b *Blueprint) RolesRequired(roles ...string) router.MiddlewareFunc {
	requirements := make([][]string, 0, len(roles))
	for _, role := range roles {
		requirements = append(requirements, []string{role})
	}
	return b.rolesGuard(requirements)
}

// RolesAccepted lets users through that have at least one role
func (b *Blueprint) RolesAccepted(roles ...string) router.MiddlewareFunc {
	return b.rolesGuard([][]string{roles})
}

func (b *Blueprint) rolesGuard(requirements [][]string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return b.Unauthenticated(c)
			}

			if !b.confirmed(c, user) {
				return b.unconfirmed(c)
			}

			if err := CheckRoles(user, requirements...); err != nil {
				return b.controller.unauthorized(c, err)
			}

			return next(c)
		}
	}
}

// CheckRoles returns ErrUnauthorized unless user satisfies every
// requirement. A requirement is met by any one of its roles.
func CheckRoles(user *User, requirements ...[]string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if user.HasRoles(requirements...) {
		return nil
	}
	return cloneWithMetadata(ErrUnauthorized, map[string]any{
		"user_id":  user.ID.String(),
		"required": requirements,
	})
}

// AllowUnconfirmed marks the route so the guards accept accounts that
// have not been confirmed yet
func AllowUnconfirmed(handler router.HandlerFunc) router.HandlerFunc {
	return func(c router.Context) error {
		c.Locals(localAllowUnconfirmed, true)
		return handler(c)
	}
}

// AllowUnconfirmedAccount is AllowUnconfirmed as a middleware, placed
// before the guards of a route
func AllowUnconfirmedAccount() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return AllowUnconfirmed(next)
	}
}

func (b *Blueprint) confirmed(c router.Context, user *User) bool {
	if !b.settings.RequiresConfirmedAccount() || user.Verified {
		return true
	}
	allowed, _ := c.Locals(localAllowUnconfirmed).(bool)
	return allowed
}

func (b *Blueprint) unconfirmed(c router.Context) error {
	b.flashes.Add(c, FlashError, b.controller.notConfirmedMessage(c))
	return b.controller.redirect(c, b.URLFor("account_verification"))
}

// Unauthenticated flashes a sign in message and redirects to the login
// page with the requested URL as next
func (b *Blueprint) Unauthenticated(c router.Context) error {
	return b.controller.unauthenticated(c)
}

// Unauthorized flashes a permission message and renders the 403 page
func (b *Blueprint) Unauthorized(c router.Context) error {
	return b.controller.unauthorized(c, ErrUnauthorized)
}

// IsFullyAuthenticated reports if the request has a signed in user whose
// account satisfies the confirmation setting
func (b *Blueprint) IsFullyAuthenticated(c router.Context) bool {
	user := CurrentUser(c)
	if user == nil {
		return false
	}
	return !b.settings.RequiresConfirmedAccount() || user.Verified
}
