package authui

import (
	"context"
	"fmt"
	"strings"
)

// Logger takes a message and key value pairs, the go-logger way
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PasswordHasher hashes and verifies user passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) bool
}

// TokenIssuer generates and verifies account confirmation and reset password tokens
type TokenIssuer interface {
	GenerateConfirmAccountToken(user *User) (string, error)
	VerifyConfirmAccountToken(ctx context.Context, token string) (*User, error)
	GenerateResetPasswordToken(user *User) (string, error)
	VerifyResetPasswordToken(ctx context.Context, token string) (*User, error)
}

// Mailer sends the notification emails of every flow
type Mailer interface {
	SendConfirmAccountEmail(ctx context.Context, user *User, link string, specificEmail ...string) error
	SendRegisteredEmail(ctx context.Context, user *User, specificEmail ...string) error
	SendPasswordChangedEmail(ctx context.Context, user *User, specificEmail ...string) error
	SendResetPasswordEmail(ctx context.Context, user *User, link string, specificEmail ...string) error
	SendWelcomeEmail(ctx context.Context, user *User, specificEmail ...string) error
	SendUsernameChangedEmail(ctx context.Context, user *User, specificEmail ...string) error
	SendEmailChangedEmail(ctx context.Context, user *User, specificEmail ...string) error
}

// defLogger prints messages followed by their key value pairs
type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + line(msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(msg, "\n"))
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
