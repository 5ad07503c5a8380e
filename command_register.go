package authui

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

type RegisterUserMessage struct {
	Payload RegisterPayload
	// ConfirmLink builds the account confirmation link sent by email
	ConfirmLink LinkBuilder
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates accounts and sends the registration email
type RegisterUserHandler struct {
	*flow
}

// NewRegisterUserHandler creates the register flow
func NewRegisterUserHandler(deps FlowDeps) *RegisterUserHandler {
	return &RegisterUserHandler{flow: newFlow(deps)}
}

// Execute validates the payload and stores the new user. When the
// registration email cannot be sent the user is not created.
func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	user := &User{}
	err := h.run(ctx, "user registration", func(ctx context.Context) error {
		if err := event.Payload.Validate(ctx, h.settings, h.store); err != nil {
			return unwrapInternal(err, "failed to validate registration")
		}

		if err := h.populate(user, event.Payload); err != nil {
			return err
		}

		return h.store.RunInTx(ctx, func(ctx context.Context, tx UserStore) error {
			created, err := tx.Create(ctx, user)
			if err != nil {
				if verr := duplicateAsValidation(err, map[string]string{"username": "username", "email": "email"}); verr != nil {
					return verr
				}
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
			}
			user = created

			return h.sendRegistrationEmail(ctx, user, event.ConfirmLink)
		})
	})

	if err != nil {
		return nil, err
	}

	if !h.settings.SendRegisteredEmail {
		h.notify("welcome", user, func() error {
			return h.mailer.SendWelcomeEmail(ctx, user)
		})
		h.activity.emit(ctx, ActivityEventWelcome, user, nil)
	}

	h.activity.emit(ctx, ActivityEventRegistered, user, map[string]any{
		"confirm_account": h.settings.EnableConfirmAccount,
	})

	return user, nil
}

func (h *RegisterUserHandler) populate(user *User, p RegisterPayload) error {
	user.Username = strings.TrimSpace(p.Username)
	user.Email = strings.TrimSpace(p.Email)
	user.FirstName = strings.TrimSpace(p.FirstName)
	user.LastName = strings.TrimSpace(p.LastName)
	user.Language = p.Language
	user.Active = true
	user.Verified = false

	if !h.settings.EnableUsername {
		user.Username = ""
	}
	if !h.settings.EnableEmail {
		user.Email = ""
	}

	if h.settings.EnablePhone && strings.TrimSpace(p.Phone) != "" {
		phone, err := NormalizePhone(p.Phone, h.settings.PhoneRegion)
		if err != nil {
			return NewValidationError("phone_number", "Invalid phone number")
		}
		user.Phone = phone
	}

	if h.settings.UseHashid && user.Email != "" {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	return h.hashInto(user, p.Password)
}

func (h *RegisterUserHandler) sendRegistrationEmail(ctx context.Context, user *User, link LinkBuilder) error {
	if !h.settings.SendRegisteredEmail || h.mailer == nil {
		return nil
	}

	if !h.settings.EnableConfirmAccount {
		return h.mailer.SendRegisteredEmail(ctx, user)
	}

	return sendConfirmAccountEmail(ctx, h.flow, user, link)
}

func sendConfirmAccountEmail(ctx context.Context, f *flow, user *User, link LinkBuilder, specificEmail ...string) error {
	if f.tokens == nil {
		return goerrors.New("account confirmation requires a token issuer", goerrors.CategoryInternal)
	}

	token, err := f.tokens.GenerateConfirmAccountToken(user)
	if err != nil {
		return err
	}

	href := token
	if link != nil {
		href = link(token)
	}

	return f.mailer.SendConfirmAccountEmail(ctx, user, href, specificEmail...)
}
