//go:build race

package authui

import "golang.org/x/crypto/bcrypt"

// race builds are too slow for production bcrypt costs
func defaultBcryptCost() int { return bcrypt.DefaultCost }
