package authui

import (
	"context"
	"net"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"
)

const defaultSMTPPort = 587

// Message is a rendered email ready to be sent
type Message struct {
	FromName  string
	FromEmail string
	ToName    string
	ToEmail   string
	Subject   string
	Text      string
	HTML      string
	Template  string
}

// MailSender delivers rendered messages
type MailSender interface {
	Send(ctx context.Context, msg *Message) error
}

// SenderFunc adapts a function to MailSender
type SenderFunc func(ctx context.Context, msg *Message) error

// Send implements MailSender
func (f SenderFunc) Send(ctx context.Context, msg *Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// NoopSender drops every message
type NoopSender struct{}

// Send implements MailSender
func (NoopSender) Send(context.Context, *Message) error {
	return nil
}

// SMTPSender sends messages over SMTP with mandatory STARTTLS
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	logger   Logger
}

// NewSMTPSender builds a sender from AUTH_EMAIL_SENDER_SMTP, a host with
// an optional port. The sender email and password are used for PLAIN auth
// when a password is set.
func NewSMTPSender(settings Settings, logger Logger) (*SMTPSender, error) {
	host, port, err := splitHostPort(settings.EmailSenderSMTP)
	if err != nil {
		return nil, err
	}

	return &SMTPSender{
		host:     host,
		port:     port,
		username: settings.EmailSenderEmail,
		password: settings.EmailSenderPassword,
		logger:   normalizeLogger(logger),
	}, nil
}

func splitHostPort(addr string) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, goerrors.New("AUTH_EMAIL_SENDER_SMTP is missing", goerrors.CategoryValidation).
			WithTextCode(TextCodeConfigError)
	}

	if !strings.Contains(addr, ":") {
		return addr, defaultSMTPPort, nil
	}

	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid AUTH_EMAIL_SENDER_SMTP").
			WithTextCode(TextCodeConfigError)
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 {
		return "", 0, goerrors.New("invalid AUTH_EMAIL_SENDER_SMTP port", goerrors.CategoryValidation).
			WithTextCode(TextCodeConfigError).
			WithMetadata(map[string]any{"port": rawPort})
	}

	return host, port, nil
}

func (s *SMTPSender) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if s.password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}
	return opts
}

// Send implements MailSender
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	m, err := buildMailMsg(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.host, s.options()...)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create smtp client")
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.Error("smtp delivery failed", "host", s.host, "to", msg.ToEmail, "error", err)
		return err
	}

	s.logger.Debug("email sent", "template", msg.Template, "to", msg.ToEmail)
	return nil
}

func buildMailMsg(msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.FromEmail); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sender address")
	}
	if err := m.AddToFormat(msg.ToName, msg.ToEmail); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid receiver address").
			WithMetadata(map[string]any{"email": msg.ToEmail})
	}
	m.Subject(msg.Subject)

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}

// EmailManager renders the emails of every flow and hands them to a MailSender
type EmailManager struct {
	settings   Settings
	views      *Views
	sender     MailSender
	translator Translator
	logger     Logger
}

var _ Mailer = (*EmailManager)(nil)

// NewEmailManager fails when the sender address is missing or invalid
func NewEmailManager(settings Settings, views *Views, sender MailSender, logger Logger) (*EmailManager, error) {
	if settings.EmailSenderEmail == "" {
		return nil, ErrConfigMissingSender
	}
	if !strings.Contains(settings.EmailSenderEmail, "@") {
		return nil, cloneWithMetadata(ErrConfigInvalidSender, map[string]any{
			"email_sender_email": settings.EmailSenderEmail,
		})
	}

	if views == nil {
		views = NewViews()
	}

	if sender == nil {
		sender = NoopSender{}
	}

	return &EmailManager{
		settings: settings,
		views:    views,
		sender:   sender,
		logger:   normalizeLogger(logger),
	}, nil
}

// WithTranslator translates subjects to the language of the recipient
func (m *EmailManager) WithTranslator(t Translator) *EmailManager {
	m.translator = t
	return m
}

func (m *EmailManager) subject(user *User, key string, args ...any) string {
	if m.translator == nil || user == nil {
		return untranslated(key, args...)
	}
	locale := user.Language
	if locale == "" {
		locale = m.settings.DefaultLanguage
	}
	return m.translator.Translate(locale, key, args...)
}

func (m *EmailManager) SendConfirmAccountEmail(ctx context.Context, user *User, link string, specificEmail ...string) error {
	if !m.settings.EnableEmail || !m.settings.EnableConfirmAccount {
		return nil
	}
	return m.renderAndSend(ctx, user, m.subject(user, "Account Confirmation"), "confirm_account", map[string]any{
		"confirm_account_link": link,
	}, specificEmail...)
}

func (m *EmailManager) SendRegisteredEmail(ctx context.Context, user *User, specificEmail ...string) error {
	if !m.settings.EnableEmail || !m.settings.SendRegisteredEmail {
		return nil
	}
	return m.renderAndSend(ctx, user, m.subject(user, "Account Registered"), "registered", nil, specificEmail...)
}

func (m *EmailManager) SendPasswordChangedEmail(ctx context.Context, user *User, specificEmail ...string) error {
	if !m.settings.EnableEmail || !m.settings.SendPasswordChangedEmail {
		return nil
	}
	return m.renderAndSend(ctx, user, m.subject(user, "Your password has been changed"), "password_changed", nil, specificEmail...)
}

func (m *EmailManager) SendResetPasswordEmail(ctx context.Context, user *User, link string, specificEmail ...string) error {
	if !m.settings.EnableEmail || !m.settings.EnableForgotPassword {
		return nil
	}
	return m.renderAndSend(ctx, user, m.subject(user, "Reset Password"), "reset_password", map[string]any{
		"reset_password_link": link,
	}, specificEmail...)
}

func (m *EmailManager) SendWelcomeEmail(ctx context.Context, user *User, specificEmail ...string) error {
	if !m.settings.EnableEmail || !m.settings.SendWelcomeEmail {
		return nil
	}
	return m.renderAndSend(ctx, user, m.subject(user, "Welcome to %s", m.settings.AppName), "welcome", nil, specificEmail...)
}

func (m *EmailManager) SendUsernameChangedEmail(ctx context.Context, user *User, specificEmail ...string) error {
	if !m.settings.EnableEmail || !m.settings.SendUsernameChangedEmail {
		return nil
	}
	return m.renderAndSend(ctx, user, m.subject(user, "Your username has been changed"), "username_changed", nil, specificEmail...)
}

func (m *EmailManager) SendEmailChangedEmail(ctx context.Context, user *User, specificEmail ...string) error {
	if !m.settings.EnableEmail || !m.settings.SendEmailChangedEmail {
		return nil
	}
	return m.renderAndSend(ctx, user, m.subject(user, "Your email has been changed"), "email_changed", nil, specificEmail...)
}

func (m *EmailManager) renderAndSend(ctx context.Context, user *User, subject, name string, extra map[string]any, specificEmail ...string) error {
	if user == nil {
		return goerrors.New("cannot send email without a user", goerrors.CategoryBadInput)
	}

	email := user.Email
	if len(specificEmail) > 0 && specificEmail[0] != "" {
		email = specificEmail[0]
	}

	if email == "" {
		m.logger.Warn("user has no email, skipping", "template", name, "user", user.ID.String())
		return nil
	}

	data := map[string]any{
		"app_name": m.settings.AppName,
		"email":    email,
		"user":     user,
		"auth":     m.settings,
	}
	for k, v := range extra {
		data[k] = v
	}

	html, err := m.views.RenderString("emails/"+name+".html", data)
	if err != nil {
		return err
	}

	text, err := m.views.RenderString("emails/"+name+".txt", data)
	if err != nil {
		return err
	}

	msg := &Message{
		FromName:  m.settings.EmailSenderName,
		FromEmail: m.settings.EmailSenderEmail,
		ToName:    user.FullName(),
		ToEmail:   email,
		Subject:   subject,
		Text:      strings.TrimSpace(text),
		HTML:      html,
		Template:  name,
	}

	if err := m.sender.Send(ctx, msg); err != nil {
		return wrapSource(ErrMailDelivery, err, map[string]any{
			"template": name,
			"email":    email,
		})
	}
	return nil
}
