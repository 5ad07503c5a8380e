// Package authui is a mountable set of go-router routes and pongo2 views that
// implement the account pages of a web application: login, logout,
// registration, account confirmation by email, forgot and reset password
// and the change password, username and email pages.
//
// Settings:
//   - Every page and email is driven by the AUTH_* flags of Settings.
//     Normalize turns off the flags whose prerequisite is off. Without
//     username and email there is no registration. Without email there is
//     no login, change or forgot password by email, and the same goes for
//     username. When no login method is left, login uses email, else
//     username. Change emails follow their change flags, and forgot
//     password needs at least one lookup field. It also fills the derived
//     values: sender name, hash schemes, URL prefix, after login URL, base
//     URL and default language.
//   - Validate rejects combinations that cannot work.
//   - Confirmation is required only when email and confirm account are on
//     and unconfirmed logins are not allowed, see RequiresConfirmedAccount.
//
// Languages:
//   - Pages, flashes, validation messages and email subjects go through a
//     Translator. The bundled Catalog ships Spanish and picks the language
//     of the signed in user, then Accept-Language, then DefaultLanguage.
//
// Mounting:
//   - NewBlueprint builds the collaborators (password manager, JWT token
//     manager, login session, email manager, views) that are not given
//     as options. Register and RegisterRoutes mount the routes under
//     URLPrefix on a go-router router.
//   - Hosts mount LoadCurrentUser globally so every page and template sees
//     current_user, and a CSRF middleware that stores its token under
//     CSRFContextKey so forms render csrf_field.
//
// Guards:
//   - LoginRequired, RolesRequired and RolesAccepted protect host routes.
//     AllowUnconfirmed lets accounts that have not been confirmed yet
//     through.
//
// Signals:
//   - Every flow reports what happened to an ActivitySink. Sinks run best
//     effort, errors are logged and never fail the request.
package authui
