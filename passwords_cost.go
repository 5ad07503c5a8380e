//go:build !race

package authui

func defaultBcryptCost() int { return 12 }
