package authui

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ConfirmAccountMessage struct {
	Token string `json:"token"`
}

func (e ConfirmAccountMessage) Type() string { return "user.confirm_account" }

// ConfirmAccountHandler marks the account of a confirmation token as verified
type ConfirmAccountHandler struct {
	*flow
	now func() time.Time
}

// NewConfirmAccountHandler creates the confirm account flow
func NewConfirmAccountHandler(deps FlowDeps) *ConfirmAccountHandler {
	return &ConfirmAccountHandler{flow: newFlow(deps), now: time.Now}
}

func (h *ConfirmAccountHandler) Execute(ctx context.Context, event ConfirmAccountMessage) (*User, error) {
	var user *User
	err := h.run(ctx, "account confirmation", func(ctx context.Context) error {
		if h.tokens == nil {
			return goerrors.New("account confirmation requires a token issuer", goerrors.CategoryInternal)
		}

		found, err := h.tokens.VerifyConfirmAccountToken(ctx, event.Token)
		if err != nil {
			return err
		}

		return h.store.RunInTx(ctx, func(ctx context.Context, tx UserStore) error {
			found.MarkVerified(h.now().UTC())
			updated, err := tx.Update(ctx, found)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account")
			}
			user = updated
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	h.notify("welcome", user, func() error {
		return h.mailer.SendWelcomeEmail(ctx, user)
	})
	h.activity.emit(ctx, ActivityEventWelcome, user, nil)
	h.activity.emit(ctx, ActivityEventConfirmedAccount, user, nil)

	return user, nil
}

type ResendAccountVerificationMessage struct {
	User        *User
	ConfirmLink LinkBuilder
}

func (e ResendAccountVerificationMessage) Type() string { return "user.resend_account_verification" }

// ResendAccountVerificationHandler sends a new confirmation email to a
// signed in user
type ResendAccountVerificationHandler struct {
	*flow
}

// NewResendAccountVerificationHandler creates the resend flow
func NewResendAccountVerificationHandler(deps FlowDeps) *ResendAccountVerificationHandler {
	return &ResendAccountVerificationHandler{flow: newFlow(deps)}
}

func (h *ResendAccountVerificationHandler) Execute(ctx context.Context, event ResendAccountVerificationMessage) error {
	return h.run(ctx, "account verification request", func(ctx context.Context) error {
		if event.User == nil {
			return ErrUnauthenticated
		}

		if event.User.Verified || h.mailer == nil {
			return nil
		}

		return sendConfirmAccountEmail(ctx, h.flow, event.User, event.ConfirmLink)
	})
}
