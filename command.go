package authui

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const flowTimeout = time.Second * 10

// LinkBuilder turns a confirm or reset token into an absolute URL
type LinkBuilder func(token string) string

// FlowDeps are the collaborators shared by the flow handlers
type FlowDeps struct {
	Settings  Settings
	Store     UserStore
	Passwords *PasswordManager
	Tokens    TokenIssuer
	Mailer    Mailer
	Activity  ActivitySink
	Logger    Logger
}

type flow struct {
	settings  Settings
	store     UserStore
	passwords *PasswordManager
	tokens    TokenIssuer
	mailer    Mailer
	activity  *emitter
	logger    Logger
}

func newFlow(deps FlowDeps) *flow {
	logger := normalizeLogger(deps.Logger)
	return &flow{
		settings:  deps.Settings,
		store:     deps.Store,
		passwords: deps.Passwords,
		tokens:    deps.Tokens,
		mailer:    deps.Mailer,
		activity:  newEmitter(deps.Activity, logger),
		logger:    logger,
	}
}

// run checks for cancellation, bounds fn with the flow timeout and
// normalizes the returned error
func (f *flow) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+op,
		)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	return normalizeFlowError(fn(ctx), op)
}

func normalizeFlowError(err error, op string) error {
	if err == nil {
		return nil
	}

	if IsValidationError(err) {
		return err
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, op+" failed")
}

// notify sends a courtesy email. Failures are logged, the flow continues.
func (f *flow) notify(name string, user *User, send func() error) {
	if f.mailer == nil {
		return
	}
	if err := send(); err != nil {
		f.logger.Error("failed to send notification email", "email", name, "user_id", user.ID.String(), "error", err)
	}
}

// duplicateAsValidation turns a unique index violation into a form error on
// the field the user typed the value in
func duplicateAsValidation(err error, fields map[string]string) error {
	column := ExistingUserField(err)
	field, ok := fields[column]
	if !ok {
		return nil
	}
	switch column {
	case "username":
		return NewValidationError(field, "This Username is already in use. Please try another one.")
	default:
		return NewValidationError(field, "This Email is already in use. Please try another one.")
	}
}

func (f *flow) hashInto(user *User, password string) error {
	if err := f.passwords.SetPassword(user, password); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return nil
}
