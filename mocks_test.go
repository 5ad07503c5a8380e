package authui_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	authui "github.com/goliatone/go-auth-ui"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Secret123"

// memStore is an in memory UserStore. Records are copied in and out so
// handlers only see their changes after Update, like with a database.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*authui.User
	failWrite error
}

var _ authui.UserStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{users: map[uuid.UUID]*authui.User{}}
}

func cloneUser(u *authui.User) *authui.User {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = slices.Clone(u.Roles)
	return &out
}

func notFound() error {
	return authui.ErrUserNotFound.Clone()
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*authui.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok && u.DeletedAt == nil {
		return cloneUser(u), nil
	}
	return nil, notFound()
}

func (s *memStore) find(match func(*authui.User) bool) (*authui.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.DeletedAt == nil && match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, notFound()
}

func (s *memStore) FindByUsername(_ context.Context, username string) (*authui.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, notFound()
	}
	return s.find(func(u *authui.User) bool { return strings.EqualFold(u.Username, username) })
}

func (s *memStore) FindByEmail(_ context.Context, email string) (*authui.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, notFound()
	}
	return s.find(func(u *authui.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *memStore) Create(_ context.Context, user *authui.User) (*authui.User, error) {
	if s.failWrite != nil {
		return nil, s.failWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, ok := s.users[user.ID]; ok {
		return nil, errors.New("duplicate id")
	}
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *memStore) Update(_ context.Context, user *authui.User) (*authui.User, error) {
	if s.failWrite != nil {
		return nil, s.failWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return nil, notFound()
	}
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *memStore) Delete(_ context.Context, user *authui.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, user.ID)
	return nil
}

func (s *memStore) TrackLogin(_ context.Context, user *authui.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	user.LoggedInAt = &now
	if stored, ok := s.users[user.ID]; ok {
		stored.LoggedInAt = &now
	}
	return nil
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store authui.UserStore) error) error {
	s.mu.Lock()
	snapshot := make(map[uuid.UUID]*authui.User, len(s.users))
	for id, u := range s.users {
		snapshot[id] = cloneUser(u)
	}
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.users = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) get(t *testing.T, id uuid.UUID) *authui.User {
	t.Helper()
	u, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// captureSender records every message handed to it
type captureSender struct {
	mu       sync.Mutex
	messages []*authui.Message
	err      error
}

func (c *captureSender) Send(_ context.Context, msg *authui.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureSender) templates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Template)
	}
	return out
}

func (c *captureSender) last() *authui.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

// captureSink records every signal
type captureSink struct {
	mu     sync.Mutex
	events []authui.ActivityEvent
}

func (c *captureSink) Record(_ context.Context, event authui.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) types() []authui.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]authui.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

// MockMailer is a testify mock of authui.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendConfirmAccountEmail(ctx context.Context, user *authui.User, link string, specificEmail ...string) error {
	return m.Called(ctx, user, link, specificEmail).Error(0)
}

func (m *MockMailer) SendRegisteredEmail(ctx context.Context, user *authui.User, specificEmail ...string) error {
	return m.Called(ctx, user, specificEmail).Error(0)
}

func (m *MockMailer) SendPasswordChangedEmail(ctx context.Context, user *authui.User, specificEmail ...string) error {
	return m.Called(ctx, user, specificEmail).Error(0)
}

func (m *MockMailer) SendResetPasswordEmail(ctx context.Context, user *authui.User, link string, specificEmail ...string) error {
	return m.Called(ctx, user, link, specificEmail).Error(0)
}

func (m *MockMailer) SendWelcomeEmail(ctx context.Context, user *authui.User, specificEmail ...string) error {
	return m.Called(ctx, user, specificEmail).Error(0)
}

func (m *MockMailer) SendUsernameChangedEmail(ctx context.Context, user *authui.User, specificEmail ...string) error {
	return m.Called(ctx, user, specificEmail).Error(0)
}

func (m *MockMailer) SendEmailChangedEmail(ctx context.Context, user *authui.User, specificEmail ...string) error {
	return m.Called(ctx, user, specificEmail).Error(0)
}

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }

func (l *captureLogger) has(level, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c.level == level && c.message == message {
			return true
		}
	}
	return false
}

// testSettings are valid settings with cheap password hashing
func testSettings(mutators ...func(*authui.Settings)) authui.Settings {
	s := authui.DefaultSettings()
	s.AppName = "Test App"
	s.SecretKey = "0123456789abcdef0123456789abcdef"
	s.EmailSenderEmail = "no-reply@example.com"
	s.EmailSenderName = "Test App"
	s.BcryptCost = bcrypt.MinCost
	for _, m := range mutators {
		m(&s)
	}
	s.Normalize()
	return s
}

func testPasswords(t *testing.T) *authui.PasswordManager {
	t.Helper()
	return newTestPasswordManager(t, authui.SchemeBcrypt)
}

// seedUser stores an active user with testPassword
func seedUser(t *testing.T, store *memStore, pm *authui.PasswordManager, mutators ...func(*authui.User)) *authui.User {
	t.Helper()
	u := &authui.User{
		ID:        uuid.New(),
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		FirstName: "John",
		LastName:  "Doe",
		Language:  "en",
		Active:    true,
		Verified:  true,
	}
	for _, m := range mutators {
		m(u)
	}
	require.NoError(t, pm.SetPassword(u, testPassword))
	created, err := store.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

type testEnv struct {
	t        *testing.T
	settings authui.Settings
	store    *memStore
	sender   *captureSender
	sink     *captureSink
	logger   *captureLogger
	bp       *authui.Blueprint
	router   router.Router[*fiber.App]
	app      *fiber.App
	cookies  map[string]*http.Cookie
}

// newTestEnv mounts a blueprint on a fiber backed router with a fake csrf
// middleware that exposes a fixed token
func newTestEnv(t *testing.T, mutators ...func(*authui.Settings)) *testEnv {
	t.Helper()

	settings := testSettings(mutators...)
	env := &testEnv{
		t:        t,
		settings: settings,
		store:    newMemStore(),
		sender:   &captureSender{},
		sink:     &captureSink{},
		logger:   &captureLogger{},
		cookies:  map[string]*http.Cookie{},
	}

	bp, err := authui.NewBlueprint(settings, env.store,
		authui.WithLogger(env.logger),
		authui.WithMailSender(env.sender),
		authui.WithActivitySink(env.sink),
		authui.WithPasswordManager(testPasswords(t)),
	)
	require.NoError(t, err)
	env.bp = bp

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return fiber.New(fiber.Config{Views: bp.Views()})
	})

	r := srv.Router()
	r.Use(fakeCSRF(settings.CSRFContextKey, "test-csrf-token"))
	r.Use(bp.LoadCurrentUser())
	authui.RegisterRoutes(bp, r)

	r.Get("/members", func(c router.Context) error {
		return c.SendString("members:" + authui.CurrentUser(c).Username)
	}, bp.LoginRequired())
	r.Get("/admin", func(c router.Context) error {
		return c.SendString("admin")
	}, bp.RolesRequired("admin"))
	r.Get("/staff", func(c router.Context) error {
		return c.SendString("staff")
	}, bp.RolesAccepted("admin", "editor"))
	r.Get("/pending", func(c router.Context) error {
		return c.SendString("pending")
	}, authui.AllowUnconfirmedAccount(), bp.LoginRequired())
	r.Get("/home", func(c router.Context) error {
		return bp.Render(c, "auth/unauthorized", router.ViewContext{"error_message": "host page"})
	})

	env.router = r
	env.app = srv.WrappedRouter()
	return env
}

func fakeCSRF(key, token string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			c.Locals(key, token)
			return next(c)
		}
	}
}

func (e *testEnv) seed(mutators ...func(*authui.User)) *authui.User {
	e.t.Helper()
	return seedUser(e.t, e.store, testPasswords(e.t), mutators...)
}

func (e *testEnv) do(req *http.Request) *http.Response {
	e.t.Helper()
	for _, c := range e.cookies {
		req.AddCookie(c)
	}

	res, err := e.app.Test(req, -1)
	require.NoError(e.t, err)

	for _, c := range res.Cookies() {
		if c.Value == "" || c.MaxAge < 0 {
			delete(e.cookies, c.Name)
			continue
		}
		e.cookies[c.Name] = c
	}
	return res
}

func (e *testEnv) get(path string) *http.Response {
	e.t.Helper()
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) getWithHeaders(path string, headers map[string]string) *http.Response {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.do(req)
}

func (e *testEnv) post(path string, values map[string]string) *http.Response {
	e.t.Helper()
	return e.postWithHeaders(path, values, nil)
}

func (e *testEnv) postWithHeaders(path string, values map[string]string, headers map[string]string) *http.Response {
	e.t.Helper()
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.do(req)
}

func (e *testEnv) login(identifier string) {
	e.t.Helper()
	res := e.post("/auth/login/", map[string]string{"username": identifier, "password": testPassword})
	require.Equal(e.t, http.StatusSeeOther, res.StatusCode)
}

func (e *testEnv) sessionCookie() *http.Cookie {
	return e.cookies[e.bp.Sessions().CookieName()]
}
