package authui

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type ForgotPasswordMessage struct {
	Payload ForgotPasswordPayload
	// ResetLink builds the reset password link sent by email
	ResetLink LinkBuilder
}

func (e ForgotPasswordMessage) Type() string { return "user.forgot_password" }

// ForgotPasswordHandler sends the reset password email
type ForgotPasswordHandler struct {
	*flow
}

// NewForgotPasswordHandler creates the forgot password flow
func NewForgotPasswordHandler(deps FlowDeps) *ForgotPasswordHandler {
	return &ForgotPasswordHandler{flow: newFlow(deps)}
}

// Execute finds the user from the enabled fields. When both username and
// email are asked for they must belong to the same user, otherwise
// ErrInformationMismatch is returned.
func (h *ForgotPasswordHandler) Execute(ctx context.Context, event ForgotPasswordMessage) (*User, error) {
	var user *User
	err := h.run(ctx, "password reset initialization", func(ctx context.Context) error {
		if err := event.Payload.Validate(ctx, h.settings, h.store); err != nil {
			return unwrapInternal(err, "failed to validate forgot password")
		}

		found, err := h.lookup(ctx, event.Payload)
		if err != nil {
			return err
		}

		if h.tokens == nil {
			return goerrors.New("password reset requires a token issuer", goerrors.CategoryInternal)
		}

		token, err := h.tokens.GenerateResetPasswordToken(found)
		if err != nil {
			return err
		}

		href := token
		if event.ResetLink != nil {
			href = event.ResetLink(token)
		}

		if h.mailer != nil {
			if err := h.mailer.SendResetPasswordEmail(ctx, found, href); err != nil {
				return err
			}
		}

		user = found
		return nil
	})

	if err != nil {
		return nil, err
	}

	h.activity.emit(ctx, ActivityEventForgotPassword, user, nil)
	return user, nil
}

func (h *ForgotPasswordHandler) lookup(ctx context.Context, p ForgotPasswordPayload) (*User, error) {
	var byUsername, byEmail *User
	var err error

	if h.settings.EnableForgotPasswordByUsername {
		if byUsername, err = h.store.FindByUsername(ctx, strings.TrimSpace(p.Username)); err != nil {
			return nil, err
		}
	}

	if h.settings.EnableForgotPasswordByEmail {
		if byEmail, err = h.store.FindByEmail(ctx, strings.TrimSpace(p.Email)); err != nil {
			return nil, err
		}
	}

	switch {
	case byUsername != nil && byEmail != nil:
		if byUsername.ID != byEmail.ID {
			return nil, cloneWithMetadata(ErrInformationMismatch, map[string]any{
				"username": p.Username,
				"email":    p.Email,
			})
		}
		return byUsername, nil
	case byUsername != nil:
		return byUsername, nil
	case byEmail != nil:
		return byEmail, nil
	default:
		return nil, ErrUserNotFound
	}
}

type ResetPasswordMessage struct {
	Token   string `json:"token"`
	Payload ResetPasswordPayload
}

func (e ResetPasswordMessage) Type() string { return "user.reset_password" }

// ResetPasswordHandler sets a new password for the user of a reset token
type ResetPasswordHandler struct {
	*flow
}

// NewResetPasswordHandler creates the reset password flow
func NewResetPasswordHandler(deps FlowDeps) *ResetPasswordHandler {
	return &ResetPasswordHandler{flow: newFlow(deps)}
}

// Verify returns the user of a reset token, or ErrInvalidToken
func (h *ResetPasswordHandler) Verify(ctx context.Context, token string) (*User, error) {
	var user *User
	err := h.run(ctx, "password reset verification", func(ctx context.Context) error {
		if h.tokens == nil {
			return goerrors.New("password reset requires a token issuer", goerrors.CategoryInternal)
		}
		found, err := h.tokens.VerifyResetPasswordToken(ctx, token)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	return user, err
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) (*User, error) {
	user, err := h.Verify(ctx, event.Token)
	if err != nil {
		return nil, err
	}

	err = h.run(ctx, "password reset finalization", func(ctx context.Context) error {
		if err := event.Payload.Validate(h.settings); err != nil {
			return err
		}

		return h.store.RunInTx(ctx, func(ctx context.Context, tx UserStore) error {
			if err := h.hashInto(user, event.Payload.NewPassword); err != nil {
				return err
			}
			if _, err := tx.Update(ctx, user); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	h.notify("password_changed", user, func() error {
		return h.mailer.SendPasswordChangedEmail(ctx, user)
	})
	h.activity.emit(ctx, ActivityEventResetPassword, user, nil)

	return user, nil
}

func unwrapInternal(err error, msg string) error {
	var internal validation.InternalError
	if goerrors.As(err, &internal) {
		return goerrors.Wrap(internal.InternalError(), goerrors.CategoryInternal, msg)
	}
	return err
}
