package authui

import (
	"context"
	"fmt"
)

type LoginMessage struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (e LoginMessage) Type() string { return "user.login" }

// LoginHandler checks credentials and authorizes the login of a user
type LoginHandler struct {
	*flow
}

// NewLoginHandler creates the login flow
func NewLoginHandler(deps FlowDeps) *LoginHandler {
	return &LoginHandler{flow: newFlow(deps)}
}

// Execute returns the user matching the credentials. Wrong credentials
// return a ValidationError with the messages to render on the form.
func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) (*User, error) {
	var user *User
	err := h.run(ctx, "user login", func(ctx context.Context) error {
		payload := LoginPayload{Username: event.Username, Email: event.Email, Password: event.Password}
		if err := payload.Validate(h.settings); err != nil {
			return err
		}

		found, err := h.identify(ctx, payload.Identifier(h.settings))
		if err != nil {
			if HasTextCode(err, TextCodeUserNotFound) {
				return h.credentialsError(true)
			}
			return err
		}

		if !h.passwords.VerifyPassword(event.Password, found.PasswordHash) {
			return h.credentialsError(false)
		}

		if h.passwords.NeedsRehash(found.PasswordHash) {
			h.rehash(ctx, found, event.Password)
		}

		user = found
		return nil
	})
	return user, err
}

// Authorize is the last step of every login: the account must be
// active, and confirmed when confirmation is required
func (h *LoginHandler) Authorize(ctx context.Context, user *User) error {
	return h.run(ctx, "login authorization", func(ctx context.Context) error {
		if user == nil {
			return ErrUnauthenticated
		}

		if !user.Active {
			return cloneWithMetadata(ErrAccountDisabled, map[string]any{"user_id": user.ID.String()})
		}

		if h.settings.RequiresConfirmedAccount() && !user.Verified {
			return cloneWithMetadata(ErrAccountNotConfirmed, map[string]any{"user_id": user.ID.String()})
		}

		if err := h.store.TrackLogin(ctx, user); err != nil {
			h.logger.Warn("failed to track login", "user_id", user.ID.String(), "error", err)
		}

		h.activity.emit(ctx, ActivityEventLoggedIn, user, nil)
		return nil
	})
}

func (h *LoginHandler) identify(ctx context.Context, identifier string) (*User, error) {
	if !h.settings.EnableLoginByUsername {
		return h.store.FindByEmail(ctx, identifier)
	}

	user, err := h.store.FindByUsername(ctx, identifier)
	if err == nil || !HasTextCode(err, TextCodeUserNotFound) || !h.settings.EnableLoginByEmail {
		return user, err
	}

	return h.store.FindByEmail(ctx, identifier)
}

func (h *LoginHandler) identifierField() string {
	if h.settings.EnableLoginByUsername {
		return "username"
	}
	return "email"
}

func (h *LoginHandler) identifierLabel() string {
	switch {
	case h.settings.EnableLoginByUsername && h.settings.EnableLoginByEmail:
		return "Username/Email"
	case h.settings.EnableLoginByUsername:
		return "Username"
	default:
		return "Email"
	}
}

func (h *LoginHandler) credentialsError(unknownUser bool) error {
	field := h.identifierField()
	label := h.identifierLabel()

	var show bool
	switch {
	case h.settings.EnableLoginByUsername && h.settings.EnableLoginByEmail:
		show = h.settings.ShowEmailDoesNotExist || h.settings.ShowUsernameDoesNotExist
	case h.settings.EnableLoginByUsername:
		show = h.settings.ShowUsernameDoesNotExist
	default:
		show = h.settings.ShowEmailDoesNotExist
	}

	if show {
		if unknownUser {
			return NewValidationError(field, fmt.Sprintf("%s does not exist", label)).
				WithCause(ErrUserNotFound)
		}
		return NewValidationError("password", "Incorrect Password").
			WithCause(ErrIncorrectCredentials)
	}

	message := fmt.Sprintf("Incorrect %s and/or Password", label)
	return NewValidationError(field, message).Add("password", message).
		WithCause(ErrIncorrectCredentials)
}

func (h *LoginHandler) rehash(ctx context.Context, user *User, password string) {
	if err := h.passwords.SetPassword(user, password); err != nil {
		h.logger.Warn("failed to rehash password", "user_id", user.ID.String(), "error", err)
		return
	}
	if _, err := h.store.Update(ctx, user); err != nil {
		h.logger.Warn("failed to store rehashed password", "user_id", user.ID.String(), "error", err)
	}
}

type LogoutMessage struct {
	User *User
}

func (e LogoutMessage) Type() string { return "user.logout" }

// LogoutHandler emits the logged out signal
type LogoutHandler struct {
	*flow
}

// NewLogoutHandler creates the logout flow
func NewLogoutHandler(deps FlowDeps) *LogoutHandler {
	return &LogoutHandler{flow: newFlow(deps)}
}

func (h *LogoutHandler) Execute(ctx context.Context, event LogoutMessage) error {
	return h.run(ctx, "user logout", func(ctx context.Context) error {
		if event.User != nil {
			h.activity.emit(ctx, ActivityEventLoggedOut, event.User, nil)
		}
		return nil
	})
}
