package authui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

const usernameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._"

// MaxPasswordBytes bcrypt ignores anything past 72 bytes and rejects longer input
const MaxPasswordBytes = 72

// PasswordRule requires at least 6 characters with one lowercase letter,
// one uppercase letter and one number, and at most MaxPasswordBytes bytes
var PasswordRule = validation.By(func(value any) error {
	password, _ := value.(string)
	if password == "" {
		return nil
	}

	var lowers, uppers, digits int
	for _, ch := range password {
		switch {
		case unicode.IsLower(ch):
			lowers++
		case unicode.IsUpper(ch):
			uppers++
		case unicode.IsDigit(ch):
			digits++
		}
	}

	if len([]rune(password)) < 6 || lowers == 0 || uppers == 0 || digits == 0 {
		return errors.New("Password must have at least 6 characters with one lowercase letter, one uppercase letter and one number")
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("Password must be at most %d bytes long", MaxPasswordBytes)
	}
	return nil
})

// UsernameRule requires at least 3 characters from letters, digits, '-', '.' and '_'
var UsernameRule = validation.By(func(value any) error {
	username, _ := value.(string)
	if username == "" {
		return nil
	}

	if len(username) < 3 {
		return errors.New("Username must be at least 3 characters long")
	}

	for _, ch := range username {
		if !strings.ContainsRune(usernameChars, ch) {
			return errors.New("Username may only contain letters, numbers, '-', '.' and '_'")
		}
	}
	return nil
})

// Equals fails with message when the value differs from other
func Equals(other string, message string) validation.Rule {
	return validation.By(func(value any) error {
		v, _ := value.(string)
		if v != other {
			return errors.New(message)
		}
		return nil
	})
}

// UniqueUsername fails when the username is taken
func UniqueUsername(ctx context.Context, store UserStore) validation.Rule {
	return availabilityRule(func(v string) (bool, error) {
		return UsernameIsAvailable(ctx, store, v)
	}, true, "This Username is already in use. Please try another one.")
}

// UniqueEmail fails when the email is taken
func UniqueEmail(ctx context.Context, store UserStore) validation.Rule {
	return availabilityRule(func(v string) (bool, error) {
		return EmailIsAvailable(ctx, store, v)
	}, true, "This Email is already in use. Please try another one.")
}

// UsedUsername fails when no user has the username
func UsedUsername(ctx context.Context, store UserStore) validation.Rule {
	return availabilityRule(func(v string) (bool, error) {
		return UsernameIsAvailable(ctx, store, v)
	}, false, "This Username does not exist.")
}

// UsedEmail fails when no user has the email
func UsedEmail(ctx context.Context, store UserStore) validation.Rule {
	return availabilityRule(func(v string) (bool, error) {
		return EmailIsAvailable(ctx, store, v)
	}, false, "This Email does not exist.")
}

func availabilityRule(check func(string) (bool, error), wantAvailable bool, message string) validation.Rule {
	return validation.By(func(value any) error {
		v, _ := value.(string)
		if strings.TrimSpace(v) == "" {
			return nil
		}

		available, err := check(v)
		if err != nil {
			return validation.NewInternalError(err)
		}

		if available != wantAvailable {
			return errors.New(message)
		}
		return nil
	})
}

// LanguageRule accepts one of the configured language codes
func LanguageRule(languages []Language) validation.Rule {
	return validation.By(func(value any) error {
		code, _ := value.(string)
		if code == "" {
			return nil
		}
		for _, l := range languages {
			if l.Code == code {
				return nil
			}
		}
		return fmt.Errorf("The language %s is not supported yet", code)
	})
}

// PhoneRule accepts numbers that are valid for the region
func PhoneRule(region string) validation.Rule {
	return validation.By(func(value any) error {
		number, _ := value.(string)
		if strings.TrimSpace(number) == "" {
			return nil
		}
		if _, err := NormalizePhone(number, region); err != nil {
			return errors.New("Invalid phone number")
		}
		return nil
	})
}

// NormalizePhone parses number and formats it as E.164
func NormalizePhone(number, region string) (string, error) {
	parsed, err := phonenumbers.Parse(number, strings.ToUpper(region))
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number %q for region %s", number, region)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
