package authui

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeConfigError          = "AUTH_CONFIG_ERROR"
	TextCodeIncorrectCredentials = "AUTH_INCORRECT_CREDENTIALS"
	TextCodeUserNotFound         = "AUTH_USER_NOT_FOUND"
	TextCodeUserExists           = "AUTH_USER_EXISTS"
	TextCodeAccountDisabled      = "AUTH_ACCOUNT_DISABLED"
	TextCodeAccountNotConfirmed  = "AUTH_ACCOUNT_NOT_CONFIRMED"
	TextCodeInvalidToken         = "AUTH_INVALID_TOKEN"
	TextCodeFeatureDisabled      = "AUTH_FEATURE_DISABLED"
	TextCodeInformationMismatch  = "AUTH_INFORMATION_MISMATCH"
	TextCodeUnauthenticated      = "AUTH_UNAUTHENTICATED"
	TextCodeUnauthorized         = "AUTH_UNAUTHORIZED"
	TextCodeValidation           = "AUTH_VALIDATION_FAILED"
	TextCodeMailDelivery         = "AUTH_MAIL_DELIVERY_FAILED"
)

// ErrConfigMissingSender is returned when AUTH_EMAIL_SENDER_EMAIL is not set
var ErrConfigMissingSender = goerrors.New(
	"AUTH_EMAIL_SENDER_EMAIL is missing, specify AUTH_EMAIL_SENDER_EMAIL (and AUTH_EMAIL_SENDER_NAME)",
	goerrors.CategoryValidation,
).WithTextCode(TextCodeConfigError)

// ErrConfigInvalidSender is returned when the sender email has no @
var ErrConfigInvalidSender = goerrors.New(
	"AUTH_EMAIL_SENDER_EMAIL is not a valid email address",
	goerrors.CategoryValidation,
).WithTextCode(TextCodeConfigError)

// ErrConfigMissingSecret is returned when no signing secret is configured
var ErrConfigMissingSecret = goerrors.New(
	"AUTH_SECRET_KEY is missing",
	goerrors.CategoryValidation,
).WithTextCode(TextCodeConfigError)

// ErrIncorrectCredentials the identifier and password do not match a user
var ErrIncorrectCredentials = goerrors.New("incorrect credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeIncorrectCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotFound no user matches the lookup
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUserExists an active user already holds the username or email
var ErrUserExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrAccountDisabled the user account is not active
var ErrAccountDisabled = goerrors.New("Your account has not been enabled.", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrAccountNotConfirmed the user has not confirmed the account yet
var ErrAccountNotConfirmed = goerrors.New("Your email address has not yet been confirmed.", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotConfirmed).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidToken a confirmation or reset token failed verification
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrFeatureDisabled the requested flow is turned off by configuration
var ErrFeatureDisabled = goerrors.New("feature disabled", goerrors.CategoryNotFound).
	WithTextCode(TextCodeFeatureDisabled).
	WithCode(goerrors.CodeNotFound)

// ErrInformationMismatch username and email point to different users
var ErrInformationMismatch = goerrors.New("The given information does not match", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInformationMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrUnauthenticated the route requires a signed in user
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthorized the signed in user lacks the required roles
var ErrUnauthorized = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeForbidden)

// ErrMailDelivery the mail transport failed to send a message
var ErrMailDelivery = goerrors.New("failed to send email", goerrors.CategoryInternal).
	WithTextCode(TextCodeMailDelivery).
	WithCode(goerrors.CodeInternal)

// HasTextCode reports if err is a rich error with the given text code
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// ValidationError carries per field messages out of a command handler.
// Cause, when set, is the domain error behind the messages.
type ValidationError struct {
	Fields map[string][]string
	Cause  error
}

func (v *ValidationError) Error() string {
	if v.Cause != nil {
		return "validation failed: " + v.Cause.Error()
	}
	return "validation failed"
}

func (v *ValidationError) Unwrap() error {
	return v.Cause
}

// WithCause sets the domain error behind the messages
func (v *ValidationError) WithCause(err error) *ValidationError {
	v.Cause = err
	return v
}

// NewValidationError builds a ValidationError for a single field
func NewValidationError(field string, messages ...string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: messages}}
}

// Add appends messages to a field
func (v *ValidationError) Add(field string, messages ...string) *ValidationError {
	if v.Fields == nil {
		v.Fields = map[string][]string{}
	}
	v.Fields[field] = append(v.Fields[field], messages...)
	return v
}

func cloneWithMetadata(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

func wrapSource(base *goerrors.Error, err error, meta map[string]any) *goerrors.Error {
	clone := cloneWithMetadata(base, meta)
	if err != nil {
		clone.Source = err
	}
	return clone
}
