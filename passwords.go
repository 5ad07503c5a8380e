package authui

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"
	SchemeArgon2   = "argon2"
)

var supportedSchemes = []string{SchemeBcrypt, SchemeArgon2id, SchemeArgon2}

// ErrEmptyPassword is returned when hashing an empty string
var ErrEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation)

// ErrMismatchedHashAndPassword is returned when the password does not match the hash
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeIncorrectCredentials)

type schemeHasher interface {
	scheme() string
	hash(password string) (string, error)
	verify(password, hash string) error
	identifies(hash string) bool
}

// PasswordManager hashes new passwords with the first configured scheme
// and verifies hashes made with any of the configured schemes.
type PasswordManager struct {
	hashers []schemeHasher
}

var _ PasswordHasher = (*PasswordManager)(nil)

// Argon2Params are the argon2id cost parameters
type Argon2Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params follows the x/crypto recommendation for IDKey
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:  64 * 1024,
		Time:    1,
		Threads: 4,
		KeyLen:  32,
		SaltLen: 16,
	}
}

// PasswordManagerOption configures a PasswordManager
type PasswordManagerOption func(*passwordManagerConfig)

type passwordManagerConfig struct {
	bcryptCost int
	argon2     Argon2Params
}

// WithBcryptCost overrides the bcrypt cost
func WithBcryptCost(cost int) PasswordManagerOption {
	return func(c *passwordManagerConfig) {
		if cost > 0 {
			c.bcryptCost = cost
		}
	}
}

// WithArgon2Params overrides the argon2id parameters
func WithArgon2Params(p Argon2Params) PasswordManagerOption {
	return func(c *passwordManagerConfig) {
		c.argon2 = p
	}
}

// NewPasswordManager builds a manager for the given schemes, in order
func NewPasswordManager(schemes []string, opts ...PasswordManagerOption) (*PasswordManager, error) {
	cfg := &passwordManagerConfig{
		bcryptCost: defaultBcryptCost(),
		argon2:     DefaultArgon2Params(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	if len(schemes) == 0 {
		schemes = []string{SchemeBcrypt}
	}

	m := &PasswordManager{}
	for _, scheme := range schemes {
		switch strings.ToLower(strings.TrimSpace(scheme)) {
		case SchemeBcrypt:
			if cfg.bcryptCost < bcrypt.MinCost || cfg.bcryptCost > bcrypt.MaxCost {
				return nil, goerrors.New("invalid bcrypt cost", goerrors.CategoryValidation).
					WithTextCode(TextCodeConfigError).
					WithMetadata(map[string]any{"cost": cfg.bcryptCost})
			}
			m.hashers = append(m.hashers, bcryptHasher{cost: cfg.bcryptCost})
		case SchemeArgon2id, SchemeArgon2:
			m.hashers = append(m.hashers, argon2Hasher{params: cfg.argon2})
		default:
			return nil, goerrors.New("unsupported password hash scheme", goerrors.CategoryValidation).
				WithTextCode(TextCodeConfigError).
				WithMetadata(map[string]any{"scheme": scheme})
		}
	}

	return m, nil
}

// NewPasswordManagerFromSettings uses AUTH_PASSWORD_HASH_SCHEMES and AUTH_BCRYPT_COST
func NewPasswordManagerFromSettings(s Settings) (*PasswordManager, error) {
	return NewPasswordManager(s.PasswordHashSchemes, WithBcryptCost(s.BcryptCost))
}

// Scheme returns the name of the scheme used for new hashes
func (m *PasswordManager) Scheme() string {
	return m.hashers[0].scheme()
}

// HashPassword will generate a password hash
func (m *PasswordManager) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return m.hashers[0].hash(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (m *PasswordManager) ComparePasswordAndHash(password, hash string) error {
	for _, h := range m.hashers {
		if h.identifies(hash) {
			return h.verify(password, hash)
		}
	}
	return goerrors.New("unknown password hash format", goerrors.CategoryAuth).
		WithTextCode(TextCodeIncorrectCredentials)
}

// VerifyPassword reports if password matches hash
func (m *PasswordManager) VerifyPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return m.ComparePasswordAndHash(password, hash) == nil
}

// NeedsRehash reports if the hash was not produced by the primary scheme
func (m *PasswordManager) NeedsRehash(hash string) bool {
	return !m.hashers[0].identifies(hash)
}

// SetPassword hashes password and stores it in the user record
func (m *PasswordManager) SetPassword(user *User, password string) error {
	hash, err := m.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return nil
}

type bcryptHasher struct {
	cost int
}

func (b bcryptHasher) scheme() string { return SchemeBcrypt }

func (b bcryptHasher) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "password is too long").
			WithTextCode(TextCodeValidation)
	}
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

func (b bcryptHasher) verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid bcrypt hash")
	}
	return nil
}

func (b bcryptHasher) identifies(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// maxArgon2Memory caps the memory cost read from a stored hash, in KiB (4 GiB)
const maxArgon2Memory = 4 * 1024 * 1024

type argon2Hasher struct {
	params Argon2Params
}

func (a argon2Hasher) scheme() string { return SchemeArgon2id }

// hash encodes in PHC format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func (a argon2Hasher) hash(password string) (string, error) {
	salt := make([]byte, a.params.SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt")
	}

	key := argon2.IDKey([]byte(password), salt, a.params.Time, a.params.Memory, a.params.Threads, a.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a argon2Hasher) verify(password, encoded string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != SchemeArgon2id {
		return goerrors.New("invalid argon2 hash", goerrors.CategoryAuth)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return goerrors.New("unsupported argon2 version", goerrors.CategoryAuth)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid argon2 parameters")
	}
	if threads < 1 || iterations < 1 || memory < 8*uint32(threads) || memory > maxArgon2Memory {
		return goerrors.New("invalid argon2 parameters", goerrors.CategoryAuth).
			WithMetadata(map[string]any{"m": memory, "t": iterations, "p": threads})
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid argon2 salt")
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid argon2 key")
	}
	if len(expected) == 0 {
		return goerrors.New("invalid argon2 key", goerrors.CategoryAuth)
	}

	key := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(expected)))
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return ErrMismatchedHashAndPassword
	}
	return nil
}

func (a argon2Hasher) identifies(hash string) bool {
	return strings.HasPrefix(hash, "$argon2id$")
}
