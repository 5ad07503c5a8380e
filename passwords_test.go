package authui_test

import (
	"strings"
	"testing"

	authui "github.com/goliatone/go-auth-ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastArgon2() authui.Argon2Params {
	return authui.Argon2Params{Memory: 1024, Time: 1, Threads: 1, KeyLen: 32, SaltLen: 16}
}

func newTestPasswordManager(t *testing.T, schemes ...string) *authui.PasswordManager {
	t.Helper()
	m, err := authui.NewPasswordManager(schemes,
		authui.WithBcryptCost(bcrypt.MinCost),
		authui.WithArgon2Params(fastArgon2()),
	)
	require.NoError(t, err)
	return m
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		scheme   string
		password string
		prefix   string
		wantErr  bool
	}{
		{
			name:     "Valid password bcrypt",
			scheme:   authui.SchemeBcrypt,
			password: "securePassword123!",
			prefix:   "$2a$",
		},
		{
			name:     "Valid password argon2id",
			scheme:   authui.SchemeArgon2id,
			password: "securePassword123!",
			prefix:   "$argon2id$v=19$",
		},
		{
			name:     "Empty password",
			scheme:   authui.SchemeBcrypt,
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestPasswordManager(t, tt.scheme)
			hash, err := m.HashPassword(tt.password)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, tt.prefix), hash)
			assert.NoError(t, m.ComparePasswordAndHash(tt.password, hash))
			assert.True(t, m.VerifyPassword(tt.password, hash))
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	m := newTestPasswordManager(t, authui.SchemeBcrypt, authui.SchemeArgon2id)

	password := "testPassword123!"
	hash, err := m.HashPassword(password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  bool
	}{
		{
			name:     "Matching password",
			password: password,
			hash:     hash,
		},
		{
			name:     "Wrong password",
			password: "wrongPassword",
			hash:     hash,
			wantErr:  true,
		},
		{
			name:     "Invalid hash",
			password: password,
			hash:     "invalidhash",
			wantErr:  true,
		},
		{
			name:     "Truncated argon2 hash",
			password: password,
			hash:     "$argon2id$v=19$m=1024",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ComparePasswordAndHash(tt.password, tt.hash)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, m.VerifyPassword(tt.password, tt.hash))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPasswordManagerVerifiesSecondaryScheme(t *testing.T) {
	legacy := newTestPasswordManager(t, authui.SchemeArgon2id)
	hash, err := legacy.HashPassword("Secret123")
	require.NoError(t, err)

	m := newTestPasswordManager(t, authui.SchemeBcrypt, authui.SchemeArgon2id)

	assert.Equal(t, authui.SchemeBcrypt, m.Scheme())
	assert.True(t, m.VerifyPassword("Secret123", hash))
	assert.True(t, m.NeedsRehash(hash))

	fresh, err := m.HashPassword("Secret123")
	require.NoError(t, err)
	assert.False(t, m.NeedsRehash(fresh))
}

func TestPasswordManagerRejectsUnknownScheme(t *testing.T) {
	_, err := authui.NewPasswordManager([]string{"md5"})
	require.Error(t, err)
	assert.True(t, authui.HasTextCode(err, authui.TextCodeConfigError))

	_, err = authui.NewPasswordManager(nil, authui.WithBcryptCost(bcrypt.MaxCost+1))
	require.Error(t, err)
}

func TestSetPassword(t *testing.T) {
	m := newTestPasswordManager(t)
	user := &authui.User{}

	require.NoError(t, m.SetPassword(user, "Secret123"))
	assert.NotEmpty(t, user.PasswordHash)
	assert.True(t, m.VerifyPassword("Secret123", user.PasswordHash))

	assert.Error(t, m.SetPassword(user, ""))
}

func TestArgon2RejectsInvalidStoredParams(t *testing.T) {
	m := newTestPasswordManager(t, authui.SchemeArgon2id)

	const salt = "c29tZXNhbHRzb21lc2FsdA"
	const key = "a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2U"

	tests := []struct {
		name   string
		params string
	}{
		{name: "zero threads", params: "m=1024,t=1,p=0"},
		{name: "zero iterations", params: "m=1024,t=0,p=1"},
		{name: "memory below threads floor", params: "m=4,t=1,p=1"},
		{name: "memory above cap", params: "m=4294967295,t=1,p=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := "$argon2id$v=19$" + tt.params + "$" + salt + "$" + key

			var err error
			require.NotPanics(t, func() {
				err = m.ComparePasswordAndHash("Secret123", hash)
			})
			require.Error(t, err)
			assert.False(t, m.VerifyPassword("Secret123", hash))
		})
	}

	t.Run("empty key", func(t *testing.T) {
		hash := "$argon2id$v=19$m=1024,t=1,p=1$" + salt + "$"
		require.NotPanics(t, func() {
			assert.False(t, m.VerifyPassword("Secret123", hash))
		})
	})
}

func TestBcryptRejectsPasswordsOverLimit(t *testing.T) {
	m := newTestPasswordManager(t, authui.SchemeBcrypt)

	_, err := m.HashPassword("Aa1" + strings.Repeat("x", authui.MaxPasswordBytes))
	require.Error(t, err)
	assert.True(t, authui.HasTextCode(err, authui.TextCodeValidation))

	_, err = m.HashPassword("Aa1" + strings.Repeat("x", authui.MaxPasswordBytes-3))
	assert.NoError(t, err)
}
