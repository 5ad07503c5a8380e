package authui

import (
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Language is an entry of the register form language selector
type Language struct {
	Code string `koanf:"code" json:"code"`
	Name string `koanf:"name" json:"name"`
}

// Settings holds the AUTH_* feature flags. The koanf key of every field is
// the flag name without the AUTH_ prefix, lower cased.
type Settings struct {
	AppName    string `koanf:"app_name" json:"app_name"`
	LogoImgURL string `koanf:"logo_img_url" json:"logo_img_url"`

	SecretKey string `koanf:"secret_key" json:"-"`

	EmailSenderEmail    string `koanf:"email_sender_email" json:"email_sender_email"`
	EmailSenderName     string `koanf:"email_sender_name" json:"email_sender_name"`
	EmailSenderPassword string `koanf:"email_sender_password" json:"-"`
	EmailSenderSMTP     string `koanf:"email_sender_smtp" json:"email_sender_smtp"`

	EnableEmail           bool `koanf:"enable_email" json:"enable_email"`
	EnableUsername        bool `koanf:"enable_username" json:"enable_username"`
	EnableLoginByUsername bool `koanf:"enable_login_by_username" json:"enable_login_by_username"`
	EnableLoginByEmail    bool `koanf:"enable_login_by_email" json:"enable_login_by_email"`

	EnableRememberMe      bool `koanf:"enable_remember_me" json:"enable_remember_me"`
	UserSessionExpiration int  `koanf:"user_session_expiration" json:"user_session_expiration"`
	RememberMeExpiration  int  `koanf:"remember_me_expiration" json:"remember_me_expiration"`
	AutoLoginAtLogin      bool `koanf:"auto_login_at_login" json:"auto_login_at_login"`

	EnableRegister         bool       `koanf:"enable_register" json:"enable_register"`
	SendRegisteredEmail    bool       `koanf:"send_registered_email" json:"send_registered_email"`
	SendWelcomeEmail       bool       `koanf:"send_welcome_email" json:"send_welcome_email"`
	AutoLoginAfterRegister bool       `koanf:"auto_login_after_register" json:"auto_login_after_register"`
	EnablePhone            bool       `koanf:"enable_phone" json:"enable_phone"`
	PhoneRegion            string     `koanf:"phone_region" json:"phone_region"`
	Languages              []Language `koanf:"languages" json:"languages"`
	UseHashid              bool       `koanf:"use_hashid" json:"use_hashid"`
	DefaultLanguage        string     `koanf:"default_language" json:"default_language"`

	EnableChangeUsername     bool `koanf:"enable_change_username" json:"enable_change_username"`
	SendUsernameChangedEmail bool `koanf:"send_username_changed_email" json:"send_username_changed_email"`
	EnableChangeEmail        bool `koanf:"enable_change_email" json:"enable_change_email"`
	SendEmailChangedEmail    bool `koanf:"send_email_changed_email" json:"send_email_changed_email"`
	EnableChangePassword     bool `koanf:"enable_change_password" json:"enable_change_password"`
	SendPasswordChangedEmail bool `koanf:"send_password_changed_email" json:"send_password_changed_email"`

	EnableConfirmAccount              bool `koanf:"enable_confirm_account" json:"enable_confirm_account"`
	ConfirmAccountExpiration          int  `koanf:"confirm_account_expiration" json:"confirm_account_expiration"`
	AllowLoginWithoutConfirmedAccount bool `koanf:"allow_login_without_confirmed_account" json:"allow_login_without_confirmed_account"`
	AutoLoginAfterConfirm             bool `koanf:"auto_login_after_confirm" json:"auto_login_after_confirm"`

	EnableForgotPassword           bool `koanf:"enable_forgot_password" json:"enable_forgot_password"`
	ResetPasswordExpiration        int  `koanf:"reset_password_expiration" json:"reset_password_expiration"`
	EnableForgotPasswordByUsername bool `koanf:"enable_forgot_password_by_username" json:"enable_forgot_password_by_username"`
	EnableForgotPasswordByEmail    bool `koanf:"enable_forgot_password_by_email" json:"enable_forgot_password_by_email"`
	AutoLoginAfterResetPassword    bool `koanf:"auto_login_after_reset_password" json:"auto_login_after_reset_password"`

	RequireRetypePassword    bool `koanf:"require_retype_password" json:"require_retype_password"`
	ShowEmailDoesNotExist    bool `koanf:"show_email_does_not_exist" json:"show_email_does_not_exist"`
	ShowUsernameDoesNotExist bool `koanf:"show_username_does_not_exist" json:"show_username_does_not_exist"`

	PasswordHashSchemes []string `koanf:"password_hash_schemes" json:"password_hash_schemes"`
	BcryptCost          int      `koanf:"bcrypt_cost" json:"bcrypt_cost"`

	URLPrefix         string `koanf:"url_prefix" json:"url_prefix"`
	AfterLoginURL     string `koanf:"after_login_url" json:"after_login_url"`
	BaseURL           string `koanf:"base_url" json:"base_url"`
	SessionCookieName string `koanf:"session_cookie_name" json:"session_cookie_name"`
	FlashCookieName   string `koanf:"flash_cookie_name" json:"flash_cookie_name"`
	CSRFContextKey    string `koanf:"csrf_context_key" json:"csrf_context_key"`
	CSRFFieldName     string `koanf:"csrf_field_name" json:"csrf_field_name"`
	SecureCookies     bool   `koanf:"secure_cookies" json:"secure_cookies"`
	Debug             bool   `koanf:"debug" json:"debug"`
}

// DefaultSettings returns the settings with every flag at its default value
func DefaultSettings() Settings {
	return Settings{
		AppName: "AUTH_APP_NAME",

		EnableEmail:           true,
		EnableUsername:        true,
		EnableLoginByUsername: true,
		EnableLoginByEmail:    true,

		EnableRememberMe:      true,
		UserSessionExpiration: 3600,
		RememberMeExpiration:  30 * 24 * 3600,
		AutoLoginAtLogin:      true,

		EnableRegister:         true,
		SendRegisteredEmail:    true,
		SendWelcomeEmail:       true,
		AutoLoginAfterRegister: true,
		PhoneRegion:            "US",
		Languages: []Language{
			{Code: "en", Name: "English"},
			{Code: "es", Name: "Spanish"},
		},
		DefaultLanguage: "en",

		EnableChangeUsername:     true,
		SendUsernameChangedEmail: true,
		EnableChangeEmail:        true,
		SendEmailChangedEmail:    true,
		EnableChangePassword:     true,
		SendPasswordChangedEmail: true,

		EnableConfirmAccount:     true,
		ConfirmAccountExpiration: 24 * 3600,
		AutoLoginAfterConfirm:    true,

		EnableForgotPassword:           true,
		ResetPasswordExpiration:        24 * 3600,
		EnableForgotPasswordByUsername: true,
		EnableForgotPasswordByEmail:    true,
		AutoLoginAfterResetPassword:    true,

		RequireRetypePassword: true,

		PasswordHashSchemes: []string{SchemeBcrypt},
		BcryptCost:          12,

		URLPrefix:         "/auth",
		AfterLoginURL:     "/",
		SessionCookieName: "auth_session",
		FlashCookieName:   DefaultFlashCookieName,
		CSRFContextKey:    "csrf",
		CSRFFieldName:     "_csrf",
	}
}

// Normalize disables settings that depend on a feature that is turned off
// and fills derived values. It is idempotent.
func (s *Settings) Normalize() {
	if !s.EnableUsername && !s.EnableEmail {
		s.EnableRegister = false
	}

	if !s.EnableRegister {
		s.AutoLoginAfterRegister = false
	}

	if !s.EnableEmail {
		s.EnableLoginByEmail = false
		s.EnableChangeEmail = false
		s.ShowEmailDoesNotExist = false
		s.EnableForgotPasswordByEmail = false
	}

	if !s.EnableUsername {
		s.EnableLoginByUsername = false
		s.EnableChangeUsername = false
		s.ShowUsernameDoesNotExist = false
		s.EnableForgotPasswordByUsername = false
	}

	if !s.EnableLoginByUsername && !s.EnableLoginByEmail {
		if s.EnableEmail {
			s.EnableLoginByEmail = true
		} else if s.EnableUsername {
			s.EnableLoginByUsername = true
		}
	}

	if !s.EnableChangeUsername {
		s.SendUsernameChangedEmail = false
	}

	if !s.EnableChangeEmail {
		s.SendEmailChangedEmail = false
	}

	if !s.EnableChangePassword {
		s.SendPasswordChangedEmail = false
	}

	if !s.EnableConfirmAccount {
		s.AllowLoginWithoutConfirmedAccount = false
		s.AutoLoginAfterConfirm = false
	}

	if s.EnableForgotPassword && !s.EnableForgotPasswordByUsername && !s.EnableForgotPasswordByEmail {
		s.EnableForgotPassword = false
	}

	if !s.EnableForgotPassword {
		s.EnableForgotPasswordByUsername = false
		s.EnableForgotPasswordByEmail = false
		s.AutoLoginAfterResetPassword = false
	}

	if s.EmailSenderName == "" {
		s.EmailSenderName = s.AppName
	}

	schemes := make([]string, 0, len(s.PasswordHashSchemes))
	for _, scheme := range s.PasswordHashSchemes {
		scheme = strings.ToLower(strings.TrimSpace(scheme))
		if scheme == "" || slices.Contains(schemes, scheme) {
			continue
		}
		schemes = append(schemes, scheme)
	}
	if len(schemes) == 0 {
		schemes = []string{SchemeBcrypt}
	}
	s.PasswordHashSchemes = schemes

	s.URLPrefix = "/" + strings.Trim(s.URLPrefix, "/")
	if s.URLPrefix == "/" {
		s.URLPrefix = ""
	}

	if s.AfterLoginURL == "" {
		s.AfterLoginURL = "/"
	}

	s.BaseURL = strings.TrimRight(s.BaseURL, "/")

	s.DefaultLanguage = strings.ToLower(strings.TrimSpace(s.DefaultLanguage))
	if s.DefaultLanguage == "" {
		s.DefaultLanguage = "en"
	}
}

// Validate checks the settings required to run the blueprint
func (s Settings) Validate() error {
	if s.EmailSenderEmail == "" {
		return ErrConfigMissingSender
	}

	if !strings.Contains(s.EmailSenderEmail, "@") {
		return cloneWithMetadata(ErrConfigInvalidSender, map[string]any{
			"email_sender_email": s.EmailSenderEmail,
		})
	}

	if s.SecretKey == "" {
		return ErrConfigMissingSecret
	}

	for _, scheme := range s.PasswordHashSchemes {
		if !slices.Contains(supportedSchemes, scheme) {
			return goerrors.New("unsupported password hash scheme", goerrors.CategoryValidation).
				WithTextCode(TextCodeConfigError).
				WithMetadata(map[string]any{
					"scheme":    scheme,
					"supported": supportedSchemes,
				})
		}
	}

	return nil
}

// SessionTTL is the lifetime of a login session without remember me
func (s Settings) SessionTTL() time.Duration {
	return time.Duration(s.UserSessionExpiration) * time.Second
}

// RememberMeTTL is the lifetime of a remembered login session
func (s Settings) RememberMeTTL() time.Duration {
	return time.Duration(s.RememberMeExpiration) * time.Second
}

// ConfirmAccountTTL is the lifetime of an account confirmation token
func (s Settings) ConfirmAccountTTL() time.Duration {
	return time.Duration(s.ConfirmAccountExpiration) * time.Second
}

// ResetPasswordTTL is the lifetime of a reset password token
func (s Settings) ResetPasswordTTL() time.Duration {
	return time.Duration(s.ResetPasswordExpiration) * time.Second
}

// RequiresConfirmedAccount reports if users must confirm the account to login
func (s Settings) RequiresConfirmedAccount() bool {
	return s.EnableEmail && s.EnableConfirmAccount && !s.AllowLoginWithoutConfirmedAccount
}

// LanguageCodes returns the codes accepted by the register form
func (s Settings) LanguageCodes() []any {
	out := make([]any, 0, len(s.Languages))
	for _, l := range s.Languages {
		out = append(out, l.Code)
	}
	return out
}
