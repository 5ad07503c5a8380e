package authui

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const endpointPrefix = "auth."

// endpoint names and their paths relative to URL_PREFIX
var endpoints = map[string]string{
	"login":                       "/login/",
	"logout":                      "/logout/",
	"register":                    "/register",
	"account_verification":        "/register/account_verification",
	"resend_account_verification": "/register/resend_account_verification",
	"confirm_account":             "/register/confirm_account/:token",
	"change_password":             "/change_password/",
	"change_username":             "/change_username/",
	"change_email":                "/change_email/",
	"forgot_password":             "/forgot_password/",
	"reset_password":              "/reset_password/:token",
	"unauthenticated":             "/unauthenticated/",
	"unauthorized":                "/unauthorized/",
}

// Blueprint bundles the routes, views and collaborators of the auth UI
type Blueprint struct {
	settings  Settings
	store     UserStore
	passwords *PasswordManager
	tokens    TokenIssuer
	sessions  *SessionManager
	mailer    Mailer
	sender    MailSender
	flashes   *FlashStore
	views     *Views
	activity  ActivitySink
	logger    Logger

	catalog    *Catalog
	translator Translator
	controller *AuthController
}

// BlueprintOption configures a Blueprint
type BlueprintOption func(*Blueprint)

// WithLogger sets the logger of every component
func WithLogger(logger Logger) BlueprintOption {
	return func(b *Blueprint) {
		b.logger = logger
	}
}

// WithMailSender sets the transport used by the default EmailManager
func WithMailSender(sender MailSender) BlueprintOption {
	return func(b *Blueprint) {
		b.sender = sender
	}
}

// WithMailer replaces the EmailManager
func WithMailer(mailer Mailer) BlueprintOption {
	return func(b *Blueprint) {
		b.mailer = mailer
	}
}

// WithActivitySink receives the signals of every flow
func WithActivitySink(sink ActivitySink) BlueprintOption {
	return func(b *Blueprint) {
		b.activity = sink
	}
}

// WithCatalog replaces the bundled translations. The catalog also picks
// the language of anonymous requests from Accept-Language.
func WithCatalog(catalog *Catalog) BlueprintOption {
	return func(b *Blueprint) {
		b.catalog = catalog
	}
}

// WithTranslator translates flashes, form labels and validation messages
// with t instead of the catalog
func WithTranslator(t Translator) BlueprintOption {
	return func(b *Blueprint) {
		b.translator = t
	}
}

// WithViews replaces the template renderer
func WithViews(views *Views) BlueprintOption {
	return func(b *Blueprint) {
		b.views = views
	}
}

// WithPasswordManager replaces the password manager built from the settings
func WithPasswordManager(pm *PasswordManager) BlueprintOption {
	return func(b *Blueprint) {
		b.passwords = pm
	}
}

// WithTokenIssuer replaces the JWT token manager
func WithTokenIssuer(tokens TokenIssuer) BlueprintOption {
	return func(b *Blueprint) {
		b.tokens = tokens
	}
}

// WithSessionManager replaces the login session manager
func WithSessionManager(sm *SessionManager) BlueprintOption {
	return func(b *Blueprint) {
		b.sessions = sm
	}
}

// NewBlueprint normalizes and validates the settings, then builds every
// collaborator that was not given as an option
func NewBlueprint(settings Settings, store UserStore, opts ...BlueprintOption) (*Blueprint, error) {
	if store == nil {
		return nil, goerrors.New("auth blueprint requires a user store", goerrors.CategoryInternal).
			WithTextCode(TextCodeConfigError)
	}

	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	b := &Blueprint{
		settings: settings,
		store:    store,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	b.logger = normalizeLogger(b.logger)

	if b.passwords == nil {
		pm, err := NewPasswordManagerFromSettings(settings)
		if err != nil {
			return nil, err
		}
		b.passwords = pm
	}

	if b.tokens == nil {
		b.tokens = NewTokenManager(settings, store, b.logger)
	}

	if b.sessions == nil {
		b.sessions = NewSessionManager(settings, store, b.logger)
	}

	if b.views == nil {
		b.views = NewViews(WithViewsDebug(settings.Debug), WithViewsLogger(b.logger))
	}

	if b.catalog == nil {
		catalog, err := DefaultCatalog(settings.DefaultLanguage)
		if err != nil {
			return nil, err
		}
		b.catalog = catalog
	}

	if b.translator == nil {
		b.translator = b.catalog
	}

	if b.mailer == nil {
		sender, err := b.defaultSender()
		if err != nil {
			return nil, err
		}
		mailer, err := NewEmailManager(settings, b.views, sender, b.logger)
		if err != nil {
			return nil, err
		}
		b.mailer = mailer.WithTranslator(b.translator)
	}

	b.flashes = NewFlashStore(settings.FlashCookieName, settings.SecureCookies, b.logger)
	b.controller = newAuthController(b)

	return b, nil
}

func (b *Blueprint) defaultSender() (MailSender, error) {
	if b.sender != nil {
		return b.sender, nil
	}
	if b.settings.EmailSenderSMTP == "" {
		b.logger.Warn("AUTH_EMAIL_SENDER_SMTP is not set, emails will not be delivered")
		return NoopSender{}, nil
	}
	return NewSMTPSender(b.settings, b.logger)
}

// Settings returns the normalized settings
func (b *Blueprint) Settings() Settings {
	return b.settings
}

// Sessions returns the login session manager
func (b *Blueprint) Sessions() *SessionManager {
	return b.sessions
}

// Flashes returns the flash store
func (b *Blueprint) Flashes() *FlashStore {
	return b.flashes
}

// Views returns the template renderer
func (b *Blueprint) Views() *Views {
	return b.views
}

// Controller returns the route handlers
func (b *Blueprint) Controller() *AuthController {
	return b.controller
}

// Translator returns the translator of flashes and forms
func (b *Blueprint) Translator() Translator {
	return b.translator
}

// Render renders a host page with the same data the auth pages get:
// current_user, flashes, the csrf helpers and the auth urls
func (b *Blueprint) Render(c router.Context, name string, data router.ViewContext) error {
	return b.controller.render(c, name, nil, data)
}

// LoadCurrentUser is the middleware that resolves the session user.
// Hosts mount it globally so every page sees current_user.
func (b *Blueprint) LoadCurrentUser() router.MiddlewareFunc {
	return b.sessions.LoadCurrentUser()
}

// Register mounts the routes on a fiber backed router
func (b *Blueprint) Register(r router.Router[*fiber.App]) {
	RegisterRoutes(b, r)
}

// RegisterRoutes mounts the routes of bp under URL_PREFIX. Every route is
// named "auth.<endpoint>".
func RegisterRoutes[T any](bp *Blueprint, r router.Router[T]) {
	a := bp.controller
	s := bp.settings

	g := r.Group(s.URLPrefix)
	g.Use(bp.sessions.LoadCurrentUser())

	route := func(name string) string { return endpoints[name] }

	g.Get(route("login"), a.Login).SetName(endpointPrefix + "login")
	g.Post(route("login"), a.Login)
	g.Get(route("logout"), a.Logout).SetName(endpointPrefix + "logout")

	register := bp.gate(s.EnableRegister)
	g.Get(route("register"), a.Register, register).SetName(endpointPrefix + "register")
	g.Post(route("register"), a.Register, register)

	confirm := bp.gate(s.EnableConfirmAccount)
	g.Get(route("account_verification"), a.AccountVerification, confirm, AllowUnconfirmedAccount()).
		SetName(endpointPrefix + "account_verification")
	g.Get(route("resend_account_verification"), a.ResendAccountVerification, confirm, AllowUnconfirmedAccount()).
		SetName(endpointPrefix + "resend_account_verification")
	g.Get(route("confirm_account"), a.ConfirmAccount, confirm).SetName(endpointPrefix + "confirm_account")

	changePassword := bp.gate(s.EnableChangePassword)
	g.Get(route("change_password"), a.ChangePassword, changePassword, bp.LoginRequired()).
		SetName(endpointPrefix + "change_password")
	g.Post(route("change_password"), a.ChangePassword, changePassword, bp.LoginRequired())

	changeUsername := bp.gate(s.EnableChangeUsername)
	g.Get(route("change_username"), a.ChangeUsername, changeUsername, bp.LoginRequired()).
		SetName(endpointPrefix + "change_username")
	g.Post(route("change_username"), a.ChangeUsername, changeUsername, bp.LoginRequired())

	changeEmail := bp.gate(s.EnableChangeEmail)
	g.Get(route("change_email"), a.ChangeEmail, changeEmail, bp.LoginRequired()).
		SetName(endpointPrefix + "change_email")
	g.Post(route("change_email"), a.ChangeEmail, changeEmail, bp.LoginRequired())

	forgot := bp.gate(s.EnableForgotPassword)
	g.Get(route("forgot_password"), a.ForgotPassword, forgot).SetName(endpointPrefix + "forgot_password")
	g.Post(route("forgot_password"), a.ForgotPassword, forgot)
	g.Get(route("reset_password"), a.ResetPassword, forgot).SetName(endpointPrefix + "reset_password")
	g.Post(route("reset_password"), a.ResetPassword, forgot)

	g.Get(route("unauthenticated"), a.UnauthenticatedPage).SetName(endpointPrefix + "unauthenticated")
	g.Get(route("unauthorized"), a.UnauthorizedPage).SetName(endpointPrefix + "unauthorized")
}

// gate answers 404 for routes of a disabled feature
func (b *Blueprint) gate(enabled bool) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !enabled {
				return b.controller.handleError(c, ErrFeatureDisabled)
			}
			return next(c)
		}
	}
}

// URLFor builds the path of an endpoint. Path parameters are filled in
// order:
//
//	bp.URLFor("auth.reset_password", token)
func (b *Blueprint) URLFor(name string, params ...string) string {
	pattern, ok := endpoints[strings.TrimPrefix(name, endpointPrefix)]
	if !ok {
		return "/"
	}

	segments := strings.Split(pattern, "/")
	i := 0
	for j, segment := range segments {
		if strings.HasPrefix(segment, ":") {
			value := ""
			if i < len(params) {
				value = url.PathEscape(params[i])
				i++
			}
			segments[j] = value
		}
	}

	return b.settings.URLPrefix + strings.Join(segments, "/")
}

// URLs returns the paths of the endpoints without path parameters, keyed
// by endpoint name without the "auth." prefix
func (b *Blueprint) URLs() map[string]string {
	out := make(map[string]string, len(endpoints))
	for name, pattern := range endpoints {
		if strings.Contains(pattern, ":") {
			continue
		}
		out[name] = b.settings.URLPrefix + pattern
	}
	return out
}

// MakeSafeURL drops the scheme and host of raw so a next parameter can
// only point inside the application
func MakeSafeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "/"
	}

	u.Scheme = ""
	u.Host = ""
	u.User = nil
	u.Opaque = ""

	out := u.String()
	if out == "" {
		return "/"
	}

	if strings.HasPrefix(out, "//") || strings.HasPrefix(out, "/\\") {
		out = "/" + strings.TrimLeft(out, "/\\")
	}
	return out
}
