package authui

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type ChangePasswordMessage struct {
	User    *User
	Payload ChangePasswordPayload
}

func (e ChangePasswordMessage) Type() string { return "user.change_password" }

// ChangePasswordHandler replaces the password of the signed in user
type ChangePasswordHandler struct {
	*flow
}

// NewChangePasswordHandler creates the change password flow
func NewChangePasswordHandler(deps FlowDeps) *ChangePasswordHandler {
	return &ChangePasswordHandler{flow: newFlow(deps)}
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	err := h.run(ctx, "password change", func(ctx context.Context) error {
		if event.User == nil {
			return ErrUnauthenticated
		}

		if err := event.Payload.Validate(h.settings); err != nil {
			return err
		}

		if !h.passwords.VerifyPassword(event.Payload.OldPassword, event.User.PasswordHash) {
			return NewValidationError("old_password", "Old Password is incorrect")
		}

		return h.store.RunInTx(ctx, func(ctx context.Context, tx UserStore) error {
			if err := h.hashInto(event.User, event.Payload.NewPassword); err != nil {
				return err
			}
			if _, err := tx.Update(ctx, event.User); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
			}
			return nil
		})
	})

	if err != nil {
		return err
	}

	h.notify("password_changed", event.User, func() error {
		return h.mailer.SendPasswordChangedEmail(ctx, event.User)
	})
	h.activity.emit(ctx, ActivityEventChangedPassword, event.User, nil)
	return nil
}

type ChangeUsernameMessage struct {
	User    *User
	Payload ChangeUsernamePayload
}

func (e ChangeUsernameMessage) Type() string { return "user.change_username" }

// ChangeUsernameHandler renames the signed in user
type ChangeUsernameHandler struct {
	*flow
}

// NewChangeUsernameHandler creates the change username flow
func NewChangeUsernameHandler(deps FlowDeps) *ChangeUsernameHandler {
	return &ChangeUsernameHandler{flow: newFlow(deps)}
}

func (h *ChangeUsernameHandler) Execute(ctx context.Context, event ChangeUsernameMessage) error {
	var previous string
	err := h.run(ctx, "username change", func(ctx context.Context) error {
		if event.User == nil {
			return ErrUnauthenticated
		}

		if err := event.Payload.Validate(ctx, h.store); err != nil {
			return unwrapInternal(err, "failed to validate username change")
		}

		if !h.passwords.VerifyPassword(event.Payload.Password, event.User.PasswordHash) {
			return NewValidationError("password", "Password is incorrect")
		}

		return h.store.RunInTx(ctx, func(ctx context.Context, tx UserStore) error {
			previous = event.User.Username
			event.User.Username = strings.TrimSpace(event.Payload.NewUsername)
			if _, err := tx.Update(ctx, event.User); err != nil {
				event.User.Username = previous
				if verr := duplicateAsValidation(err, map[string]string{"username": "new_username"}); verr != nil {
					return verr
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update username")
			}
			return nil
		})
	})

	if err != nil {
		return err
	}

	h.notify("username_changed", event.User, func() error {
		return h.mailer.SendUsernameChangedEmail(ctx, event.User)
	})
	h.activity.emit(ctx, ActivityEventChangedUsername, event.User, map[string]any{
		"from": previous,
		"to":   event.User.Username,
	})
	return nil
}

type ChangeEmailMessage struct {
	User    *User
	Payload ChangeEmailPayload
}

func (e ChangeEmailMessage) Type() string { return "user.change_email" }

// ChangeEmailHandler moves the signed in user to a new email address
type ChangeEmailHandler struct {
	*flow
}

// NewChangeEmailHandler creates the change email flow
func NewChangeEmailHandler(deps FlowDeps) *ChangeEmailHandler {
	return &ChangeEmailHandler{flow: newFlow(deps)}
}

// Execute returns ErrInformationMismatch when the old email does not
// belong to the signed in user
func (h *ChangeEmailHandler) Execute(ctx context.Context, event ChangeEmailMessage) error {
	var previous string
	err := h.run(ctx, "email change", func(ctx context.Context) error {
		if event.User == nil {
			return ErrUnauthenticated
		}

		if err := event.Payload.Validate(ctx, h.store); err != nil {
			return unwrapInternal(err, "failed to validate email change")
		}

		owner, err := h.store.FindByEmail(ctx, event.Payload.OldEmail)
		if err != nil && !HasTextCode(err, TextCodeUserNotFound) {
			return err
		}

		if owner == nil || owner.ID != event.User.ID {
			return cloneWithMetadata(ErrInformationMismatch, map[string]any{
				"user_id": event.User.ID.String(),
			})
		}

		return h.store.RunInTx(ctx, func(ctx context.Context, tx UserStore) error {
			previous = event.User.Email
			event.User.Email = strings.TrimSpace(event.Payload.Email)
			if _, err := tx.Update(ctx, event.User); err != nil {
				event.User.Email = previous
				if verr := duplicateAsValidation(err, map[string]string{"email": "email"}); verr != nil {
					return verr
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update email")
			}
			return nil
		})
	})

	if err != nil {
		return err
	}

	h.notify("email_changed", event.User, func() error {
		return h.mailer.SendEmailChangedEmail(ctx, event.User, previous)
	})
	h.activity.emit(ctx, ActivityEventChangedEmail, event.User, map[string]any{
		"from": previous,
		"to":   event.User.Email,
	})
	return nil
}
