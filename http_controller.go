package authui

import (
	"maps"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// AuthController holds the route handlers of every flow
type AuthController struct {
	bp       *Blueprint
	settings Settings
	logger   Logger

	login          *LoginHandler
	logout         *LogoutHandler
	register       *RegisterUserHandler
	confirm        *ConfirmAccountHandler
	resend         *ResendAccountVerificationHandler
	forgotPassword *ForgotPasswordHandler
	resetPassword  *ResetPasswordHandler
	changePassword *ChangePasswordHandler
	changeUsername *ChangeUsernameHandler
	changeEmail    *ChangeEmailHandler
}

func newAuthController(b *Blueprint) *AuthController {
	deps := FlowDeps{
		Settings:  b.settings,
		Store:     b.store,
		Passwords: b.passwords,
		Tokens:    b.tokens,
		Mailer:    b.mailer,
		Activity:  b.activity,
		Logger:    b.logger,
	}

	return &AuthController{
		bp:             b,
		settings:       b.settings,
		logger:         b.logger,
		login:          NewLoginHandler(deps),
		logout:         NewLogoutHandler(deps),
		register:       NewRegisterUserHandler(deps),
		confirm:        NewConfirmAccountHandler(deps),
		resend:         NewResendAccountVerificationHandler(deps),
		forgotPassword: NewForgotPasswordHandler(deps),
		resetPassword:  NewResetPasswordHandler(deps),
		changePassword: NewChangePasswordHandler(deps),
		changeUsername: NewChangeUsernameHandler(deps),
		changeEmail:    NewChangeEmailHandler(deps),
	}
}

func (a *AuthController) Login(c router.Context) error {
	next := a.safeNext(c, a.settings.AfterLoginURL)

	if a.bp.IsFullyAuthenticated(c) && a.settings.AutoLoginAtLogin {
		return a.redirect(c, next)
	}

	form := LoginForm(a.settings)
	form.SetValue("next", a.nextParam(c))

	if c.Method() == http.MethodPost {
		payload := LoginPayload{}
		if err := c.Bind(&payload); err != nil {
			return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid login payload").
				WithCode(goerrors.CodeBadRequest))
		}

		user, err := a.login.Execute(c.Context(), LoginMessage{
			Username: payload.Username,
			Email:    payload.Email,
			Password: payload.Password,
		})
		if err == nil {
			return a.doLogin(c, user, next, payload.Remember())
		}

		errs := FormatValidationErrorToMap(err)
		if errs == nil {
			return a.handleError(c, err)
		}
		a.debugErrors("login", errs)
		form.Bind(formValues(c), a.translateErrors(c, errs))
	}

	return a.render(c, "auth/login", form, nil)
}

func (a *AuthController) Logout(c router.Context) error {
	user := CurrentUser(c)
	if err := a.logout.Execute(c.Context(), LogoutMessage{User: user}); err != nil {
		a.logger.Warn("logout flow failed", "error", err)
	}

	message := a.t(c, "You have signed out successfully.")
	a.bp.sessions.Logout(c)
	a.bp.flashes.Add(c, FlashSuccess, message)
	return a.redirect(c, a.safeNext(c, "/"))
}

func (a *AuthController) Register(c router.Context) error {
	form := RegisterForm(a.settings)

	if c.Method() == http.MethodPost {
		payload := RegisterPayload{}
		if err := c.Bind(&payload); err != nil {
			return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid register payload").
				WithCode(goerrors.CodeBadRequest))
		}

		user, err := a.register.Execute(c.Context(), RegisterUserMessage{
			Payload:     payload,
			ConfirmLink: a.externalLink(c, "confirm_account"),
		})

		switch {
		case err == nil:
			return a.afterRegister(c, user)
		case IsValidationError(err):
			errs := FormatValidationErrorToMap(err)
			a.debugErrors("register", errs)
			form.Bind(formValues(c), a.translateErrors(c, errs))
		case HasTextCode(err, TextCodeMailDelivery):
			a.logger.Error("registration email failed", "error", err)
			a.bp.flashes.Now(c, FlashError, a.t(c, "We could not send the registration email. Please try again later."))
			form.Bind(formValues(c), nil)
		default:
			return a.handleError(c, err)
		}
	}

	return a.render(c, "auth/register", form, nil)
}

func (a *AuthController) afterRegister(c router.Context, user *User) error {
	confirmation := a.settings.EnableEmail && a.settings.EnableConfirmAccount

	if a.settings.EnableEmail && a.settings.SendRegisteredEmail {
		if confirmation {
			a.bp.flashes.Add(c, FlashSuccess, a.t(c,
				"A confirmation email has been sent to %s with instructions to complete your registration.",
				user.Email,
			))
		} else {
			a.bp.flashes.Add(c, FlashSuccess, a.t(c, "You have registered successfully."))
		}
	}

	if confirmation {
		// unconfirmed session so the verification pages know the user
		if err := a.bp.sessions.Login(c, user, false); err != nil {
			return a.handleError(c, err)
		}
		return a.redirect(c, a.bp.URLFor("account_verification"))
	}

	if a.settings.AutoLoginAfterRegister {
		return a.doLogin(c, user, a.settings.AfterLoginURL, false)
	}

	return a.redirect(c, a.bp.URLFor("login"))
}

func (a *AuthController) AccountVerification(c router.Context) error {
	return a.render(c, "auth/account_verification", nil, router.ViewContext{"resent": false})
}

func (a *AuthController) ResendAccountVerification(c router.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return a.unauthenticated(c)
	}

	err := a.resend.Execute(c.Context(), ResendAccountVerificationMessage{
		User:        user,
		ConfirmLink: a.externalLink(c, "confirm_account"),
	})
	if err != nil {
		return a.handleError(c, err)
	}

	if !user.Verified {
		a.bp.flashes.Now(c, FlashSuccess, a.t(c,
			"A confirmation email has been sent to %s with instructions to complete your registration.",
			user.Email,
		))
	}

	return a.render(c, "auth/account_verification", nil, router.ViewContext{"resent": true})
}

func (a *AuthController) ConfirmAccount(c router.Context) error {
	user, err := a.confirm.Execute(c.Context(), ConfirmAccountMessage{Token: c.Param("token", "")})
	if err != nil {
		if HasTextCode(err, TextCodeInvalidToken) {
			a.bp.flashes.Add(c, FlashError, a.t(c, "Invalid confirmation token."))
			return a.redirect(c, a.bp.URLFor("login"))
		}
		return a.handleError(c, err)
	}

	a.bp.flashes.Add(c, FlashSuccess, a.t(c, "Welcome to %s", a.settings.AppName))

	next := a.safeNext(c, a.bp.URLFor("login"))
	if a.settings.AutoLoginAfterConfirm {
		return a.doLogin(c, user, next, false)
	}

	return a.redirect(c, a.bp.URLFor("login")+"?next="+url.QueryEscape(next))
}

func (a *AuthController) ForgotPassword(c router.Context) error {
	form := ForgotPasswordForm(a.settings)

	if c.Method() == http.MethodPost {
		payload := ForgotPasswordPayload{}
		if err := c.Bind(&payload); err != nil {
			return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid forgot password payload").
				WithCode(goerrors.CodeBadRequest))
		}

		user, err := a.forgotPassword.Execute(c.Context(), ForgotPasswordMessage{
			Payload:   payload,
			ResetLink: a.externalLink(c, "reset_password"),
		})

		switch {
		case err == nil:
			email := strings.TrimSpace(payload.Email)
			if email == "" {
				email = user.Email
			}
			a.bp.flashes.Add(c, FlashSuccess, a.t(c,
				"A reset password email has been sent to '%s'. Open that email and follow the instructions to reset your password.",
				email,
			))
			return a.redirect(c, a.bp.URLFor("forgot_password"))
		case HasTextCode(err, TextCodeInformationMismatch):
			a.bp.flashes.Add(c, FlashError, a.t(c, "The given information does not match"))
			return a.redirect(c, a.bp.URLFor("login"))
		case IsValidationError(err):
			errs := FormatValidationErrorToMap(err)
			a.debugErrors("forgot_password", errs)
			form.Bind(formValues(c), a.translateErrors(c, errs))
		default:
			return a.handleError(c, err)
		}
	}

	return a.render(c, "auth/forgot_password", form, nil)
}

func (a *AuthController) ResetPassword(c router.Context) error {
	if IsAuthenticated(c) {
		a.bp.sessions.Logout(c)
	}

	token := c.Param("token", "")
	if _, err := a.resetPassword.Verify(c.Context(), token); err != nil {
		if HasTextCode(err, TextCodeInvalidToken) {
			a.bp.flashes.Add(c, FlashError, a.t(c, "Your reset password token is invalid."))
			return a.redirect(c, a.bp.URLFor("login"))
		}
		return a.handleError(c, err)
	}

	form := ResetPasswordForm(a.settings)
	form.SetValue("next", a.nextParam(c))

	if c.Method() == http.MethodPost {
		payload := ResetPasswordPayload{}
		if err := c.Bind(&payload); err != nil {
			return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid reset password payload").
				WithCode(goerrors.CodeBadRequest))
		}

		user, err := a.resetPassword.Execute(c.Context(), ResetPasswordMessage{Token: token, Payload: payload})
		switch {
		case err == nil:
			a.bp.flashes.Add(c, FlashSuccess, a.t(c, "Your password has been reset successfully."))
			next := a.safeNext(c, "/")
			if a.settings.AutoLoginAfterResetPassword {
				return a.doLogin(c, user, next, false)
			}
			return a.redirect(c, a.bp.URLFor("login")+"?next="+url.QueryEscape(next))
		case IsValidationError(err):
			form.Bind(formValues(c), a.translateErrors(c, FormatValidationErrorToMap(err)))
		default:
			return a.handleError(c, err)
		}
	}

	return a.render(c, "auth/reset_password", form, nil)
}

func (a *AuthController) ChangePassword(c router.Context) error {
	form := ChangePasswordForm(a.settings)

	if c.Method() == http.MethodPost {
		payload := ChangePasswordPayload{}
		if err := c.Bind(&payload); err != nil {
			return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid change password payload").
				WithCode(goerrors.CodeBadRequest))
		}

		err := a.changePassword.Execute(c.Context(), ChangePasswordMessage{User: CurrentUser(c), Payload: payload})
		switch {
		case err == nil:
			a.bp.flashes.Add(c, FlashSuccess, a.t(c, "Your password has been changed successfully."))
			return a.redirect(c, a.safeNext(c, a.bp.URLFor("login")))
		case IsValidationError(err):
			form.Bind(formValues(c), a.translateErrors(c, FormatValidationErrorToMap(err)))
		default:
			return a.handleError(c, err)
		}
	}

	return a.render(c, "auth/change_password", form, nil)
}

func (a *AuthController) ChangeUsername(c router.Context) error {
	form := ChangeUsernameForm(a.settings)

	if c.Method() == http.MethodPost {
		payload := ChangeUsernamePayload{}
		if err := c.Bind(&payload); err != nil {
			return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid change username payload").
				WithCode(goerrors.CodeBadRequest))
		}

		err := a.changeUsername.Execute(c.Context(), ChangeUsernameMessage{User: CurrentUser(c), Payload: payload})
		switch {
		case err == nil:
			a.bp.flashes.Add(c, FlashSuccess, a.t(c, "Your username has been changed to '%s'.", strings.TrimSpace(payload.NewUsername)))
			return a.redirect(c, a.safeNext(c, a.bp.URLFor("login")))
		case IsValidationError(err):
			form.Bind(formValues(c), a.translateErrors(c, FormatValidationErrorToMap(err)))
		default:
			return a.handleError(c, err)
		}
	}

	return a.render(c, "auth/change_username", form, nil)
}

func (a *AuthController) ChangeEmail(c router.Context) error {
	form := ChangeEmailForm(a.settings)

	if c.Method() == http.MethodPost {
		payload := ChangeEmailPayload{}
		if err := c.Bind(&payload); err != nil {
			return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid change email payload").
				WithCode(goerrors.CodeBadRequest))
		}

		err := a.changeEmail.Execute(c.Context(), ChangeEmailMessage{User: CurrentUser(c), Payload: payload})
		switch {
		case err == nil:
			a.bp.flashes.Add(c, FlashSuccess, a.t(c, "Your email has been changed successfully."))
			return a.redirect(c, a.bp.URLFor("change_email"))
		case HasTextCode(err, TextCodeInformationMismatch):
			a.bp.flashes.Add(c, FlashError, a.t(c, "The old email does not belong to your account."))
			return a.redirect(c, a.bp.URLFor("login"))
		case IsValidationError(err):
			form.Bind(formValues(c), a.translateErrors(c, FormatValidationErrorToMap(err)))
		default:
			return a.handleError(c, err)
		}
	}

	return a.render(c, "auth/change_email", form, nil)
}

// UnauthenticatedPage sends visitors to the login page keeping next
func (a *AuthController) UnauthenticatedPage(c router.Context) error {
	target := a.bp.URLFor("login")
	if next := a.nextParam(c); next != "" {
		target += "?next=" + url.QueryEscape(MakeSafeURL(next))
	}
	return a.redirect(c, target)
}

// UnauthorizedPage renders the 403 page
func (a *AuthController) UnauthorizedPage(c router.Context) error {
	return a.unauthorized(c, ErrUnauthorized)
}

func (a *AuthController) unauthenticated(c router.Context) error {
	requested := c.OriginalURL()
	a.bp.flashes.Add(c, FlashError, a.t(c, "You must be signed in to access '%s'.", requested))
	return a.redirect(c, a.bp.URLFor("login")+"?next="+url.QueryEscape(MakeSafeURL(requested)))
}

func (a *AuthController) unauthorized(c router.Context, err error) error {
	message := a.t(c, "You do not have permission to access '%s'.", c.Path())

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		a.logger.Debug("access denied",
			"path", c.OriginalURL(),
			"text_code", richErr.TextCode,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	data := a.templateData(c, nil, router.ViewContext{
		"error_message":  message,
		"system_message": "Access denied",
	})

	return flash.WithError(c, router.ViewContext{
		"error_message":  message,
		"system_message": "Access denied",
	}).Status(http.StatusForbidden).Render("auth/unauthorized", data)
}

func (a *AuthController) doLogin(c router.Context, user *User, next string, remember bool) error {
	if err := a.login.Authorize(c.Context(), user); err != nil {
		switch {
		case HasTextCode(err, TextCodeAccountDisabled):
			a.bp.flashes.Add(c, FlashError, a.t(c, "Your account has not been enabled."))
			return a.redirect(c, a.bp.URLFor("login"))
		case HasTextCode(err, TextCodeAccountNotConfirmed):
			// unconfirmed session so the resend link knows the user
			if err := a.bp.sessions.Login(c, user, false); err != nil {
				return a.handleError(c, err)
			}
			a.bp.flashes.Add(c, FlashError, a.notConfirmedMessage(c))
			return a.redirect(c, a.bp.URLFor("login"))
		case HasTextCode(err, TextCodeUnauthenticated):
			return a.unauthenticated(c)
		default:
			return a.handleError(c, err)
		}
	}

	if err := a.bp.sessions.Login(c, user, remember); err != nil {
		return a.handleError(c, err)
	}

	a.bp.flashes.Add(c, FlashSuccess, a.t(c, "You have signed in successfully."))
	return a.redirect(c, next)
}

func (a *AuthController) notConfirmedMessage(c router.Context) string {
	return a.t(c,
		`Your email address has not yet been confirmed. Check your email Inbox and Spam folders for the confirmation email or <a href="%s">Re-send confirmation email</a>.`,
		a.bp.URLFor("resend_account_verification"),
	)
}

// nextParam is the raw next value from the query, or from the form on POST
func (a *AuthController) nextParam(c router.Context) string {
	next := c.Query("next", "")
	if next == "" && c.Method() == http.MethodPost {
		next = c.FormValue("next")
	}
	return next
}

func (a *AuthController) safeNext(c router.Context, fallback string) string {
	next := a.nextParam(c)
	if next == "" {
		if fallback == "" {
			return "/"
		}
		return fallback
	}

	if unescaped, err := url.QueryUnescape(next); err == nil {
		next = unescaped
	}
	return MakeSafeURL(next)
}

// externalLink builds absolute links for emails. BASE_URL wins over the
// Host header of the request.
func (a *AuthController) externalLink(c router.Context, endpoint string) LinkBuilder {
	base := a.settings.BaseURL
	if base == "" {
		scheme := "http"
		if proto := c.Header("X-Forwarded-Proto"); proto != "" {
			scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
		} else if a.settings.SecureCookies {
			scheme = "https"
		}
		base = scheme + "://" + c.Header("Host")
	}
	return func(token string) string {
		return base + a.bp.URLFor(endpoint, token)
	}
}

func (a *AuthController) redirect(c router.Context, location string) error {
	status := http.StatusFound
	if c.Method() != http.MethodGet {
		status = http.StatusSeeOther
	}
	return c.Redirect(location, status)
}

func (a *AuthController) templateData(c router.Context, form *Form, extra router.ViewContext) router.ViewContext {
	locale := a.locale(c)

	data := router.ViewContext(TemplateHelpersWithContext(c, a.settings, a.bp.URLs()))
	data["flashes"] = a.bp.flashes.Pop(c)
	data["title"] = a.settings.AppName
	data["locale"] = locale
	data["t"] = func(key string, args ...any) string {
		return a.bp.translator.Translate(locale, key, args...)
	}

	if form != nil {
		form.CSRFName = a.settings.CSRFFieldName
		form.CSRFToken = CSRFToken(c, a.settings)
		if form.Action == "" {
			form.Action = c.OriginalURL()
		}
		form.Localize(func(s string) string {
			return a.bp.translator.Translate(locale, s)
		})
		data["form"] = form
	}

	maps.Copy(data, extra)
	return data
}

func (a *AuthController) render(c router.Context, name string, form *Form, extra router.ViewContext) error {
	data := a.templateData(c, form, extra)
	c.SetHeader(router.HeaderContentType, "text/html; charset=utf-8")
	return c.Render(name, data)
}

func (a *AuthController) handleError(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error("auth request failed",
			"path", c.OriginalURL(),
			"error", richErr.Message,
			"category", richErr.Category,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	} else {
		a.logger.Debug("auth request rejected",
			"path", c.OriginalURL(),
			"error", richErr.Message,
			"text_code", richErr.TextCode,
		)
	}

	return c.Status(status).SendString(http.StatusText(status))
}

func (a *AuthController) debugErrors(form string, errs map[string][]string) {
	if !a.settings.Debug {
		return
	}
	a.logger.Debug("form validation failed", "form", form, "errors", print.MaybePrettyJSON(errs))
}

func formValues(c router.Context) func(string) string {
	return func(name string) string {
		return c.FormValue(name)
	}
}
