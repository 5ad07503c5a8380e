package authui

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

const sessionIssuer = "go-auth-ui"

type sessionClaims struct {
	Remember bool `json:"rmb,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager keeps the signed in user in a signed JWT cookie
type SessionManager struct {
	cookieName    string
	secure        bool
	secret        []byte
	sessionTTL    time.Duration
	rememberTTL   time.Duration
	allowRemember bool
	store         UserStore
	logger        Logger
	now           func() time.Time
}

// SessionOption configures a SessionManager
type SessionOption func(*SessionManager)

// WithSessionClock replaces time.Now, used to test expiry
func WithSessionClock(now func() time.Time) SessionOption {
	return func(sm *SessionManager) {
		if now != nil {
			sm.now = now
		}
	}
}

// NewSessionManager creates a session manager from the settings
func NewSessionManager(settings Settings, store UserStore, logger Logger, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		cookieName:    settings.SessionCookieName,
		secure:        settings.SecureCookies,
		secret:        []byte(settings.SecretKey),
		sessionTTL:    settings.SessionTTL(),
		rememberTTL:   settings.RememberMeTTL(),
		allowRemember: settings.EnableRememberMe,
		store:         store,
		logger:        normalizeLogger(logger),
		now:           time.Now,
	}

	if sm.cookieName == "" {
		sm.cookieName = DefaultSettings().SessionCookieName
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}
	return sm
}

// CookieName is the name of the session cookie
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Login starts a session for user and makes it the current user
func (sm *SessionManager) Login(c router.Context, user *User, remember bool) error {
	if user == nil || user.ID == uuid.Nil {
		return goerrors.New("cannot start a session without a user", goerrors.CategoryBadInput)
	}

	remember = remember && sm.allowRemember
	if err := sm.issue(c, user.ID, remember); err != nil {
		return err
	}

	setCurrentUser(c, user)
	return nil
}

// Logout clears the session cookie and the current user
func (sm *SessionManager) Logout(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Expires:  sm.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   sm.secure,
		SameSite: "Lax",
	})
	clearCurrentUser(c)
}

// LoadCurrentUser resolves the session cookie into the current user.
// Requests without a valid session continue anonymously.
func (sm *SessionManager) LoadCurrentUser() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if loaded, _ := c.Locals(localUserLoaded).(bool); !loaded {
				c.Locals(localUserLoaded, true)
				sm.load(c)
			}
			return next(c)
		}
	}
}

func (sm *SessionManager) load(c router.Context) {
	raw := c.Cookies(sm.cookieName)
	if raw == "" {
		return
	}

	claims, err := sm.parse(raw)
	if err != nil {
		sm.logger.Debug("discarding session cookie", "error", err)
		sm.Logout(c)
		return
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		sm.Logout(c)
		return
	}

	user, err := sm.store.GetByID(c.Context(), id)
	if err != nil || user == nil || !user.Active || user.DeletedAt != nil {
		if err != nil && !HasTextCode(err, TextCodeUserNotFound) {
			sm.logger.Error("failed to load session user", "id", id.String(), "error", err)
		}
		sm.Logout(c)
		return
	}

	setCurrentUser(c, user)

	if sm.shouldRefresh(claims) {
		if err := sm.issue(c, user.ID, claims.Remember); err != nil {
			sm.logger.Error("failed to refresh session", "error", err)
		}
	}
}

func (sm *SessionManager) ttl(remember bool) time.Duration {
	if remember {
		return sm.rememberTTL
	}
	return sm.sessionTTL
}

func (sm *SessionManager) shouldRefresh(claims *sessionClaims) bool {
	if claims.IssuedAt == nil {
		return true
	}
	half := sm.ttl(claims.Remember) / 2
	return IsOutsideThresholdPeriod(sm.now(), claims.IssuedAt.Time, half)
}

func (sm *SessionManager) issue(c router.Context, id uuid.UUID, remember bool) error {
	now := sm.now()
	expires := now.Add(sm.ttl(remember))

	claims := sessionClaims{
		Remember: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session")
	}

	cookie := &router.Cookie{
		Name:     sm.cookieName,
		Value:    signed,
		HTTPOnly: true,
		Secure:   sm.secure,
		SameSite: "Lax",
	}

	// without Expires the browser drops the cookie when it closes
	if remember {
		cookie.Expires = expires
	}

	c.Cookie(cookie)
	return nil
}

func (sm *SessionManager) parse(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return sm.secret, nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
