package authui

import (
	"context"
	"errors"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	FieldText     = "text"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldHidden   = "hidden"
	FieldCheckbox = "checkbox"
	FieldSelect   = "select"
)

// Choice is an option of a select field
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field is a single form input
type Field struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	Type         string   `json:"type"`
	Value        string   `json:"value,omitempty"`
	Checked      bool     `json:"checked,omitempty"`
	Choices      []Choice `json:"choices,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Required     bool     `json:"required,omitempty"`
	Autocomplete string   `json:"autocomplete,omitempty"`
	Placeholder  string   `json:"placeholder,omitempty"`
}

// HasErrors reports if the field failed validation
func (f *Field) HasErrors() bool {
	return len(f.Errors) > 0
}

// Form is what the templates render. The set of fields depends on the settings.
type Form struct {
	Name      string   `json:"name"`
	Action    string   `json:"action"`
	Submit    string   `json:"submit"`
	CSRFName  string   `json:"csrf_name,omitempty"`
	CSRFToken string   `json:"-"`
	Fields    []*Field `json:"fields"`
	Errors    []string `json:"errors,omitempty"`
}

// Field returns the named field or nil
func (f *Form) Field(name string) *Field {
	for _, field := range f.Fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// Has reports if the form renders the named field
func (f *Form) Has(name string) bool {
	return f.Field(name) != nil
}

// Names lists the field names in render order
func (f *Form) Names() []string {
	out := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		out = append(out, field.Name)
	}
	return out
}

// SetValue sets the value of a field if present
func (f *Form) SetValue(name, value string) *Form {
	if field := f.Field(name); field != nil {
		field.Value = value
	}
	return f
}

// AddError appends a message to a field, or to the form when the field
// is not rendered
func (f *Form) AddError(name, message string) *Form {
	if field := f.Field(name); field != nil {
		field.Errors = append(field.Errors, message)
		return f
	}
	f.Errors = append(f.Errors, message)
	return f
}

// HasErrors reports if any field or the form has errors
func (f *Form) HasErrors() bool {
	if len(f.Errors) > 0 {
		return true
	}
	return slices.ContainsFunc(f.Fields, (*Field).HasErrors)
}

// Bind copies submitted values and validation errors into the fields.
// Password values are never echoed back.
func (f *Form) Bind(lookup func(string) string, errs map[string][]string) *Form {
	for _, field := range f.Fields {
		if lookup != nil {
			value := lookup(field.Name)
			switch field.Type {
			case FieldPassword:
			case FieldCheckbox:
				field.Checked = isChecked(value)
			default:
				field.Value = value
			}
		}
	}

	for name, messages := range errs {
		for _, message := range messages {
			f.AddError(name, message)
		}
	}
	return f
}

// Localize replaces the labels, submit text and choice labels with the
// output of translate
func (f *Form) Localize(translate func(string) string) *Form {
	if translate == nil {
		return f
	}
	f.Submit = translate(f.Submit)
	for _, field := range f.Fields {
		if field.Label != "" {
			field.Label = translate(field.Label)
		}
		for i, choice := range field.Choices {
			field.Choices[i].Label = translate(choice.Label)
		}
	}
	return f
}

func isChecked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off", "n", "no":
		return false
	}
	return true
}

func textField(name, label string) *Field {
	return &Field{Name: name, Label: label, Type: FieldText, Required: true}
}

func passwordField(name, label, autocomplete string) *Field {
	return &Field{Name: name, Label: label, Type: FieldPassword, Required: true, Autocomplete: autocomplete}
}

func emailField(name, label string) *Field {
	return &Field{Name: name, Label: label, Type: FieldEmail, Required: true, Autocomplete: "email"}
}

func hiddenField(name string) *Field {
	return &Field{Name: name, Type: FieldHidden}
}

// LoginForm builds the sign in form
func LoginForm(s Settings) *Form {
	form := &Form{Name: "login", Submit: "Sign in"}

	if s.EnableLoginByUsername {
		label := "Username"
		if s.EnableLoginByEmail {
			label = "Username or Email"
		}
		field := textField("username", label)
		field.Autocomplete = "username"
		form.Fields = append(form.Fields, field)
	} else {
		form.Fields = append(form.Fields, emailField("email", "Email"))
	}

	form.Fields = append(form.Fields, passwordField("password", "Password", "current-password"))

	if s.EnableRememberMe {
		form.Fields = append(form.Fields, &Field{Name: "remember_me", Label: "Remember me", Type: FieldCheckbox})
	}

	form.Fields = append(form.Fields, hiddenField("next"))
	return form
}

// RegisterForm builds the sign up form
func RegisterForm(s Settings) *Form {
	form := &Form{Name: "register", Submit: "Register"}

	if s.EnableUsername {
		field := textField("username", "Username")
		field.Autocomplete = "username"
		form.Fields = append(form.Fields, field)
	}

	form.Fields = append(form.Fields,
		textField("first_name", "First name"),
		textField("last_name", "Last name(s)"),
	)

	if s.EnableEmail {
		form.Fields = append(form.Fields, emailField("email", "Email"))
	}

	if s.EnablePhone {
		form.Fields = append(form.Fields, &Field{
			Name:         "phone_number",
			Label:        "Phone number",
			Type:         FieldText,
			Autocomplete: "tel",
		})
	}

	language := &Field{Name: "language", Label: "Language", Type: FieldSelect, Required: true}
	for _, l := range s.Languages {
		language.Choices = append(language.Choices, Choice{Value: l.Code, Label: l.Name})
	}
	if len(s.Languages) > 0 {
		language.Value = s.Languages[0].Code
	}
	form.Fields = append(form.Fields, language)

	form.Fields = append(form.Fields, passwordField("password", "Password", "new-password"))

	if s.RequireRetypePassword {
		form.Fields = append(form.Fields, passwordField("retype_password", "Retype Password", "new-password"))
	}
	return form
}

// ChangePasswordForm builds the change password form
func ChangePasswordForm(s Settings) *Form {
	form := &Form{Name: "change_password", Submit: "Change password"}
	form.Fields = append(form.Fields,
		passwordField("old_password", "Old Password", "current-password"),
		passwordField("new_password", "New Password", "new-password"),
	)
	if s.RequireRetypePassword {
		form.Fields = append(form.Fields, passwordField("retype_password", "Retype New Password", "new-password"))
	}
	return form
}

// ChangeUsernameForm builds the change username form
func ChangeUsernameForm(_ Settings) *Form {
	return &Form{
		Name:   "change_username",
		Submit: "Change username",
		Fields: []*Field{
			textField("new_username", "New Username"),
			passwordField("password", "Password", "current-password"),
		},
	}
}

// ChangeEmailForm builds the change email form
func ChangeEmailForm(_ Settings) *Form {
	return &Form{
		Name:   "change_email",
		Submit: "Add Email",
		Fields: []*Field{
			emailField("old_email", "Old Email"),
			emailField("email", "Email"),
		},
	}
}

// ForgotPasswordForm builds the forgot password form
func ForgotPasswordForm(s Settings) *Form {
	form := &Form{Name: "forgot_password", Submit: "Send reset password email"}
	if s.EnableForgotPasswordByUsername {
		form.Fields = append(form.Fields, textField("username", "Username"))
	}
	if s.EnableForgotPasswordByEmail {
		form.Fields = append(form.Fields, emailField("email", "Your email address"))
	}
	return form
}

// ResetPasswordForm builds the reset password form
func ResetPasswordForm(s Settings) *Form {
	form := &Form{Name: "reset_password", Submit: "Change password"}
	form.Fields = append(form.Fields, passwordField("new_password", "New Password", "new-password"))
	if s.RequireRetypePassword {
		form.Fields = append(form.Fields, passwordField("retype_password", "Retype New Password", "new-password"))
	}
	form.Fields = append(form.Fields, hiddenField("next"))
	return form
}

// LoginPayload is the sign in form payload
type LoginPayload struct {
	Username   string `form:"username" json:"username"`
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	RememberMe string `form:"remember_me" json:"remember_me"`
	Next       string `form:"next" json:"next"`
}

// Identifier is the value typed in the username or email field
func (r LoginPayload) Identifier(s Settings) string {
	if s.EnableLoginByUsername {
		return strings.TrimSpace(r.Username)
	}
	return strings.TrimSpace(r.Email)
}

// Remember reports if the remember me box was checked
func (r LoginPayload) Remember() bool {
	return isChecked(r.RememberMe)
}

// Validate will validate the payload
func (r LoginPayload) Validate(s Settings) error {
	fields := []*validation.FieldRules{}
	if s.EnableLoginByUsername {
		fields = append(fields, validation.Field(&r.Username, validation.Required.Error("Username is required")))
	} else {
		fields = append(fields, validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Invalid Email"),
		))
	}
	fields = append(fields, validation.Field(&r.Password, validation.Required.Error("Password is required")))
	return validation.ValidateStruct(&r, fields...)
}

// RegisterPayload is the sign up form payload
type RegisterPayload struct {
	Username       string `form:"username" json:"username"`
	FirstName      string `form:"first_name" json:"first_name"`
	LastName       string `form:"last_name" json:"last_name"`
	Email          string `form:"email" json:"email"`
	Phone          string `form:"phone_number" json:"phone_number"`
	Language       string `form:"language" json:"language"`
	Password       string `form:"password" json:"password"`
	RetypePassword string `form:"retype_password" json:"retype_password"`
}

// Validate will validate the payload
func (r RegisterPayload) Validate(ctx context.Context, s Settings, store UserStore) error {
	fields := []*validation.FieldRules{}

	if s.EnableUsername {
		fields = append(fields, validation.Field(&r.Username,
			validation.Required.Error("Username is required"),
			UsernameRule,
			validation.Length(0, 64).Error("Username must be at most 64 characters long"),
			UniqueUsername(ctx, store),
		))
	}

	fields = append(fields,
		validation.Field(&r.FirstName,
			validation.Required.Error("This field is required."),
			validation.Length(0, 64).Error("First name must be at most 64 characters long"),
		),
		validation.Field(&r.LastName,
			validation.Required.Error("This field is required."),
			validation.Length(0, 128).Error("Last name(s) must be at most 128 characters long"),
		),
	)

	if s.EnableEmail {
		fields = append(fields, validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Invalid Email"),
			validation.Length(0, 128).Error("Email must be at most 128 characters long"),
			UniqueEmail(ctx, store),
		))
	}

	if s.EnablePhone {
		fields = append(fields, validation.Field(&r.Phone, PhoneRule(s.PhoneRegion)))
	}

	fields = append(fields,
		validation.Field(&r.Language,
			validation.Required.Error("This field is required."),
			LanguageRule(s.Languages),
		),
		validation.Field(&r.Password,
			validation.Required.Error("Password is required"),
			PasswordRule,
			validation.Length(8, 0).Error("Password must be at least 8 characters long"),
		),
	)

	if s.RequireRetypePassword {
		fields = append(fields, validation.Field(&r.RetypePassword,
			Equals(r.Password, "Both passwords do not match"),
		))
	}

	return validation.ValidateStruct(&r, fields...)
}

// ChangePasswordPayload is the change password form payload
type ChangePasswordPayload struct {
	OldPassword    string `form:"old_password" json:"old_password"`
	NewPassword    string `form:"new_password" json:"new_password"`
	RetypePassword string `form:"retype_password" json:"retype_password"`
	Next           string `form:"next" json:"next"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate(s Settings) error {
	fields := []*validation.FieldRules{
		validation.Field(&r.OldPassword, validation.Required.Error("Old Password is required")),
		validation.Field(&r.NewPassword, validation.Required.Error("New Password is required"), PasswordRule),
	}
	if s.RequireRetypePassword {
		fields = append(fields, validation.Field(&r.RetypePassword,
			Equals(r.NewPassword, "New Password and Retype Password did not match"),
		))
	}
	return validation.ValidateStruct(&r, fields...)
}

// ChangeUsernamePayload is the change username form payload
type ChangeUsernamePayload struct {
	NewUsername string `form:"new_username" json:"new_username"`
	Password    string `form:"password" json:"password"`
	Next        string `form:"next" json:"next"`
}

// Validate will validate the payload
func (r ChangeUsernamePayload) Validate(ctx context.Context, store UserStore) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewUsername,
			validation.Required.Error("Username is required"),
			UsernameRule,
			UniqueUsername(ctx, store),
		),
		validation.Field(&r.Password, validation.Required.Error("Password is required")),
	)
}

// ChangeEmailPayload is the change email form payload
type ChangeEmailPayload struct {
	OldEmail string `form:"old_email" json:"old_email"`
	Email    string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ChangeEmailPayload) Validate(ctx context.Context, store UserStore) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldEmail,
			validation.Required.Error("Old Email is required"),
			is.Email.Error("Invalid Email"),
		),
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Invalid Email"),
			UniqueEmail(ctx, store),
		),
	)
}

// ForgotPasswordPayload is the forgot password form payload
type ForgotPasswordPayload struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate(ctx context.Context, s Settings, store UserStore) error {
	fields := []*validation.FieldRules{}
	if s.EnableForgotPasswordByUsername {
		fields = append(fields, validation.Field(&r.Username,
			validation.Required.Error("Username is required"),
			UsedUsername(ctx, store),
		))
	}
	if s.EnableForgotPasswordByEmail {
		fields = append(fields, validation.Field(&r.Email,
			validation.Required.Error("Email address is required"),
			is.Email.Error("Invalid Email address"),
			UsedEmail(ctx, store),
		))
	}
	return validation.ValidateStruct(&r, fields...)
}

// ResetPasswordPayload is the reset password form payload
type ResetPasswordPayload struct {
	NewPassword    string `form:"new_password" json:"new_password"`
	RetypePassword string `form:"retype_password" json:"retype_password"`
	Next           string `form:"next" json:"next"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate(s Settings) error {
	fields := []*validation.FieldRules{
		validation.Field(&r.NewPassword, validation.Required.Error("New Password is required"), PasswordRule),
	}
	if s.RequireRetypePassword {
		fields = append(fields, validation.Field(&r.RetypePassword,
			Equals(r.NewPassword, "New Password and Retype Password did not match"),
		))
	}
	return validation.ValidateStruct(&r, fields...)
}

// FormatValidationErrorToMap returns the per field messages of a validation
// error. Other errors return nil.
func FormatValidationErrorToMap(err error) map[string][]string {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		out := make(map[string][]string, len(verrs))
		for field, ferr := range verrs {
			if ferr == nil {
				continue
			}
			out[field] = append(out[field], ferr.Error())
		}
		return out
	}

	var fieldErr *ValidationError
	if errors.As(err, &fieldErr) {
		out := make(map[string][]string, len(fieldErr.Fields))
		for field, messages := range fieldErr.Fields {
			out[field] = slices.Clone(messages)
		}
		return out
	}

	return nil
}

// IsValidationError reports if err carries field messages
func IsValidationError(err error) bool {
	return FormatValidationErrorToMap(err) != nil
}
