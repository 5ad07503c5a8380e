package authui

import (
	"fmt"
	"html"
	"maps"
	"strings"

	"github.com/goliatone/go-router"
)

// DefaultCSRFHeaderName is the header read by the csrf middleware
const DefaultCSRFHeaderName = "X-Csrf-Token"

// TemplateHelpers returns the values shared by every page, without
// request data:
//
//	{% if auth.EnableRegister %}<a href="{{ url.register }}">Register</a>{% endif %}
//	{% if has_role(current_user, "admin") %}...{% endif %}
//	{{ csrf_field|safe }}
func TemplateHelpers(settings Settings, urls map[string]string) map[string]any {
	helpers := map[string]any{
		"auth":             settings,
		"app_name":         settings.AppName,
		"url":              maps.Clone(urls),
		"url_for":          urlForFunc(urls),
		"is_authenticated": isAuthenticated,
		"has_role":         hasRole,
		"has_any_role":     hasAnyRole,
		TemplateUserKey:    nil,
		"flashes":          []Flash{},
		"locale":           settings.DefaultLanguage,
		"t":                untranslated,
	}

	maps.Copy(helpers, CSRFTemplateHelpers(settings.CSRFFieldName, ""))
	return helpers
}

// TemplateHelpersWithContext returns the helpers with the current user and
// CSRF token of the request
func TemplateHelpersWithContext(c router.Context, settings Settings, urls map[string]string) map[string]any {
	helpers := TemplateHelpers(settings, urls)

	if user := CurrentUser(c); user != nil {
		helpers[TemplateUserKey] = user
	}

	maps.Copy(helpers, CSRFTemplateHelpersWithContext(c, settings))
	return helpers
}

// CSRFTemplateHelpers renders the csrf helpers for a token
func CSRFTemplateHelpers(fieldName, token string) map[string]any {
	if fieldName == "" {
		fieldName = DefaultSettings().CSRFFieldName
	}
	escaped := html.EscapeString(token)
	return map[string]any{
		"csrf_token":       token,
		"csrf_field_name":  fieldName,
		"csrf_field":       `<input type="hidden" name="` + html.EscapeString(fieldName) + `" value="` + escaped + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + escaped + `">`,
		"csrf_header_name": DefaultCSRFHeaderName,
	}
}

// CSRFTemplateHelpersWithContext reads the token that the host csrf
// middleware stored under settings.CSRFContextKey
func CSRFTemplateHelpersWithContext(c router.Context, settings Settings) map[string]any {
	return CSRFTemplateHelpers(settings.CSRFFieldName, CSRFToken(c, settings))
}

// CSRFToken returns the token of the request or an empty string
func CSRFToken(c router.Context, settings Settings) string {
	key := settings.CSRFContextKey
	if key == "" {
		key = DefaultSettings().CSRFContextKey
	}
	if token, ok := c.Locals(key).(string); ok {
		return token
	}
	return ""
}

// untranslated is the t helper of renders that have no request locale
func untranslated(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf(key, args...)
}

func urlForFunc(urls map[string]string) func(name string) string {
	return func(name string) string {
		if u, ok := urls[strings.TrimPrefix(name, endpointPrefix)]; ok {
			return u
		}
		return "/"
	}
}

func isAuthenticated(user any) bool {
	switch u := user.(type) {
	case *User:
		return u != nil
	case User:
		return true
	case map[string]any:
		return len(u) > 0
	default:
		return false
	}
}

func hasRole(user any, role string) bool {
	switch u := user.(type) {
	case *User:
		return u.HasRole(role)
	case User:
		return u.HasRole(role)
	default:
		return false
	}
}

func hasAnyRole(user any, roles ...string) bool {
	switch u := user.(type) {
	case *User:
		return u.HasRoles(roles)
	case User:
		return u.HasRoles(roles)
	default:
		return false
	}
}
