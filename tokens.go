package authui

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	ClaimResetPassword = "reset_password"
	ClaimVerifyAccount = "verify_account"

	minSecretLength = 32
)

// TokenManager signs and verifies the single purpose tokens sent by email
type TokenManager struct {
	secret      []byte
	confirmTTL  time.Duration
	resetTTL    time.Duration
	store       UserStore
	logger      Logger
	now         func() time.Time
	signingAlgo jwt.SigningMethod
}

var _ TokenIssuer = (*TokenManager)(nil)

// NewTokenManager creates a TokenManager using AUTH_SECRET_KEY
func NewTokenManager(settings Settings, store UserStore, logger Logger) *TokenManager {
	logger = normalizeLogger(logger)

	if len(settings.SecretKey) < minSecretLength {
		logger.Warn("secret key is shorter than recommended", "length", len(settings.SecretKey), "min", minSecretLength)
	}

	return &TokenManager{
		secret:      []byte(settings.SecretKey),
		confirmTTL:  settings.ConfirmAccountTTL(),
		resetTTL:    settings.ResetPasswordTTL(),
		store:       store,
		logger:      logger,
		now:         time.Now,
		signingAlgo: jwt.SigningMethodHS256,
	}
}

func (tm *TokenManager) GenerateConfirmAccountToken(user *User) (string, error) {
	return tm.generate(ClaimVerifyAccount, user, tm.confirmTTL)
}

func (tm *TokenManager) VerifyConfirmAccountToken(ctx context.Context, token string) (*User, error) {
	return tm.verify(ctx, ClaimVerifyAccount, token)
}

func (tm *TokenManager) GenerateResetPasswordToken(user *User) (string, error) {
	return tm.generate(ClaimResetPassword, user, tm.resetTTL)
}

func (tm *TokenManager) VerifyResetPasswordToken(ctx context.Context, token string) (*User, error) {
	return tm.verify(ctx, ClaimResetPassword, token)
}

func (tm *TokenManager) generate(purpose string, user *User, ttl time.Duration) (string, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", goerrors.New("user id is required to sign a token", goerrors.CategoryBadInput)
	}

	claims := jwt.MapClaims{
		purpose: user.ID.String(),
		"exp":   jwt.NewNumericDate(tm.now().Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(tm.signingAlgo, claims).SignedString(tm.secret)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token").
			WithMetadata(map[string]any{"purpose": purpose})
	}
	return signed, nil
}

func (tm *TokenManager) verify(ctx context.Context, purpose, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != tm.signingAlgo.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		tm.logger.Debug("token rejected", "purpose", purpose, "error", err)
		return nil, wrapSource(ErrInvalidToken, err, map[string]any{"purpose": purpose})
	}

	raw, ok := claims[purpose].(string)
	if !ok {
		return nil, cloneWithMetadata(ErrInvalidToken, map[string]any{
			"purpose": purpose,
			"reason":  "missing claim",
		})
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, wrapSource(ErrInvalidToken, err, map[string]any{"purpose": purpose})
	}

	user, err := tm.store.GetByID(ctx, id)
	if err != nil {
		return nil, wrapSource(ErrInvalidToken, err, map[string]any{"purpose": purpose})
	}

	return user, nil
}
