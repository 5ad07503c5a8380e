package authui_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	authui "github.com/goliatone/go-auth-ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func registration() map[string]string {
	return map[string]string{
		"username":        "newbie",
		"first_name":      "New",
		"last_name":       "User",
		"email":           "newbie@example.com",
		"language":        "en",
		"password":        "Passw0rdOk",
		"retype_password": "Passw0rdOk",
	}
}

func TestLoginPage(t *testing.T) {
	env := newTestEnv(t)

	res := env.get("/auth/login/?next=/members")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")

	body := readBody(t, res)
	assert.Contains(t, body, `name="_csrf" value="test-csrf-token"`)
	assert.Contains(t, body, `<meta name="csrf-token" content="test-csrf-token">`)
	assert.Contains(t, body, `name="username"`)
	assert.Contains(t, body, `name="password"`)
	assert.Contains(t, body, `name="remember_me"`)
	assert.Contains(t, body, `name="next" value="/members"`)
	assert.Contains(t, body, `href="/auth/register"`)
	assert.Contains(t, body, `href="/auth/forgot_password/"`)
}

func TestLoginSubmit(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		location string
	}{
		{name: "after login url", path: "/auth/login/", location: "/"},
		{name: "next parameter", path: "/auth/login/?next=/members", location: "/members"},
		{name: "external next is made local", path: "/auth/login/?next=http://evil.com/steal", location: "/steal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.seed()

			res := env.post(tt.path, map[string]string{"username": "jdoe", "password": testPassword})
			require.Equal(t, http.StatusSeeOther, res.StatusCode)
			assert.Equal(t, tt.location, res.Header.Get("Location"))
			assert.NotNil(t, env.sessionCookie())
			assert.Equal(t, []authui.ActivityEventType{authui.ActivityEventLoggedIn}, env.sink.types())

			res = env.get("/members")
			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "members:jdoe", readBody(t, res))
		})
	}
}

func TestLoginSubmitErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	res := env.post("/auth/login/", map[string]string{"username": "jdoe", "password": "Wrong123"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := readBody(t, res)
	assert.Contains(t, body, "Incorrect Username/Email and/or Password")
	assert.Contains(t, body, `value="jdoe"`)
	assert.Nil(t, env.sessionCookie())
}

func TestLoginWithAccountStates(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(func(u *authui.User) { u.Active = false })

		res := env.post("/auth/login/", map[string]string{"username": "jdoe", "password": testPassword})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "/auth/login/", res.Header.Get("Location"))
		assert.Nil(t, env.sessionCookie())

		assert.Contains(t, readBody(t, env.get("/auth/login/")), "Your account has not been enabled.")
	})

	t.Run("unconfirmed", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(func(u *authui.User) { u.Verified = false })

		res := env.post("/auth/login/", map[string]string{"username": "jdoe", "password": testPassword})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "/auth/login/", res.Header.Get("Location"))
		assert.NotNil(t, env.sessionCookie())

		body := readBody(t, env.get("/auth/login/"))
		assert.Contains(t, body, "Your email address has not yet been confirmed.")
		assert.Contains(t, body, "/auth/register/resend_account_verification")

		res = env.get("/auth/register/resend_account_verification")
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, []string{"confirm_account"}, env.sender.templates())
	})
}

func TestLoginPageRedirectsSignedInUsers(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.login("jdoe")

	res := env.get("/auth/login/?next=/members")
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/members", res.Header.Get("Location"))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.login("jdoe")

	res := env.get("/auth/logout/")
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))
	assert.Nil(t, env.sessionCookie())
	assert.Contains(t, env.sink.types(), authui.ActivityEventLoggedOut)

	res = env.get("/members")
	assert.Equal(t, http.StatusFound, res.StatusCode)
}

func TestGuards(t *testing.T) {
	t.Run("anonymous visitor", func(t *testing.T) {
		env := newTestEnv(t)

		res := env.get("/members")
		require.Equal(t, http.StatusFound, res.StatusCode)
		assert.Equal(t, "/auth/login/?next=%2Fmembers", res.Header.Get("Location"))

		body := readBody(t, env.get("/auth/login/?next=%2Fmembers"))
		assert.Contains(t, body, "You must be signed in to access &#39;/members&#39;.")
	})

	t.Run("missing role", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed()
		env.login("jdoe")

		res := env.get("/admin")
		require.Equal(t, http.StatusForbidden, res.StatusCode)
		assert.Contains(t, readBody(t, res), "You do not have permission to access &#39;/admin&#39;.")

		assert.Equal(t, http.StatusForbidden, env.get("/staff").StatusCode)
	})

	t.Run("roles", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(func(u *authui.User) { u.Roles = []string{"editor"} })
		env.login("jdoe")

		assert.Equal(t, http.StatusForbidden, env.get("/admin").StatusCode)

		res := env.get("/staff")
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "staff", readBody(t, res))
	})

	t.Run("unconfirmed account", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(func(u *authui.User) { u.Verified = false })
		env.login("jdoe")

		res := env.get("/members")
		require.Equal(t, http.StatusFound, res.StatusCode)
		assert.Equal(t, "/auth/register/account_verification", res.Header.Get("Location"))

		assert.Equal(t, http.StatusOK, env.get("/pending").StatusCode)
	})

	t.Run("unconfirmed account allowed", func(t *testing.T) {
		env := newTestEnv(t, func(s *authui.Settings) { s.AllowLoginWithoutConfirmedAccount = true })
		env.seed(func(u *authui.User) { u.Verified = false })
		env.login("jdoe")

		assert.Equal(t, http.StatusOK, env.get("/members").StatusCode)
	})

	t.Run("tampered session", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed()
		env.login("jdoe")
		env.sessionCookie().Value += "x"

		res := env.get("/members")
		assert.Equal(t, http.StatusFound, res.StatusCode)
	})
}

func TestRegisterWithConfirmation(t *testing.T) {
	env := newTestEnv(t)

	body := readBody(t, env.get("/auth/register"))
	for _, field := range []string{"username", "first_name", "last_name", "email", "language", "password", "retype_password"} {
		assert.Contains(t, body, `name="`+field+`"`)
	}
	assert.NotContains(t, body, `name="phone_number"`)

	res := env.post("/auth/register", registration())
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/auth/register/account_verification", res.Header.Get("Location"))
	require.Equal(t, 1, env.store.count())

	msg := env.sender.last()
	require.NotNil(t, msg)
	assert.Equal(t, "confirm_account", msg.Template)
	assert.Contains(t, msg.Text, "/auth/register/confirm_account/")

	body = readBody(t, env.get("/auth/register/account_verification"))
	assert.Contains(t, body, "A confirmation email has been sent to newbie@example.com")

	user, err := env.store.FindByUsername(context.Background(), "newbie")
	require.NoError(t, err)
	assert.False(t, user.Verified)

	token, err := authui.NewTokenManager(env.settings, env.store, nil).GenerateConfirmAccountToken(user)
	require.NoError(t, err)

	res = env.get("/auth/register/confirm_account/" + token)
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/auth/login/", res.Header.Get("Location"))

	assert.True(t, env.store.get(t, user.ID).Verified)
	assert.Equal(t, http.StatusOK, env.get("/members").StatusCode)
}

func TestRegisterWithoutConfirmation(t *testing.T) {
	env := newTestEnv(t, func(s *authui.Settings) { s.EnableConfirmAccount = false })

	res := env.post("/auth/register", registration())
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))
	assert.Equal(t, []string{"registered"}, env.sender.templates())

	res = env.get("/members")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "members:newbie", readBody(t, res))
}

func TestRegisterErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t)
		values := registration()
		values["retype_password"] = "Other1Pass"

		res := env.post("/auth/register", values)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := readBody(t, res)
		assert.Contains(t, body, "Both passwords do not match")
		assert.Contains(t, body, `value="newbie@example.com"`)
		assert.NotContains(t, body, "Passw0rdOk")
		assert.Equal(t, 0, env.store.count())
	})

	t.Run("mail delivery", func(t *testing.T) {
		env := newTestEnv(t)
		env.sender.err = assert.AnError

		res := env.post("/auth/register", registration())
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, readBody(t, res), "We could not send the registration email.")
		assert.Equal(t, 0, env.store.count())
	})
}

func TestInvalidConfirmationToken(t *testing.T) {
	env := newTestEnv(t)

	res := env.get("/auth/register/confirm_account/not-a-token")
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/auth/login/", res.Header.Get("Location"))
	assert.Contains(t, readBody(t, env.get("/auth/login/")), "Invalid confirmation token.")
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.seed()

	body := readBody(t, env.get("/auth/forgot_password/"))
	assert.Contains(t, body, `name="username"`)
	assert.Contains(t, body, `name="email"`)

	res := env.post("/auth/forgot_password/", map[string]string{"username": "jdoe", "email": "jdoe@example.com"})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/auth/forgot_password/", res.Header.Get("Location"))

	msg := env.sender.last()
	require.NotNil(t, msg)
	assert.Equal(t, "reset_password", msg.Template)
	assert.Contains(t, msg.HTML, "/auth/reset_password/")

	token, err := authui.NewTokenManager(env.settings, env.store, nil).GenerateResetPasswordToken(user)
	require.NoError(t, err)

	res = env.get("/auth/reset_password/" + token)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, readBody(t, res), `name="new_password"`)

	res = env.post("/auth/reset_password/"+token, map[string]string{
		"new_password":    "NewPass1",
		"retype_password": "NewPass1",
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))
	assert.NotNil(t, env.sessionCookie())

	pm := testPasswords(t)
	assert.True(t, pm.VerifyPassword("NewPass1", env.store.get(t, user.ID).PasswordHash))
}

func TestForgotPasswordErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.seed(func(u *authui.User) {
		u.Username = "other"
		u.Email = "other@example.com"
	})

	res := env.post("/auth/forgot_password/", map[string]string{"username": "jdoe", "email": "other@example.com"})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/auth/login/", res.Header.Get("Location"))

	res = env.post("/auth/forgot_password/", map[string]string{"username": "ghost", "email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, readBody(t, res), "This Username does not exist.")

	res = env.get("/auth/reset_password/not-a-token")
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/auth/login/", res.Header.Get("Location"))
}

func TestChangeAccountPages(t *testing.T) {
	t.Run("requires login", func(t *testing.T) {
		env := newTestEnv(t)
		for _, path := range []string{"/auth/change_password/", "/auth/change_username/", "/auth/change_email/"} {
			res := env.get(path)
			assert.Equal(t, http.StatusFound, res.StatusCode, path)
		}
	})

	t.Run("change password", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seed()
		env.login("jdoe")

		res := env.post("/auth/change_password/", map[string]string{
			"old_password":    "Wrong123",
			"new_password":    "NewPass1",
			"retype_password": "NewPass1",
		})
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, readBody(t, res), "Old Password is incorrect")

		res = env.post("/auth/change_password/", map[string]string{
			"old_password":    testPassword,
			"new_password":    "NewPass1",
			"retype_password": "NewPass1",
		})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.True(t, testPasswords(t).VerifyPassword("NewPass1", env.store.get(t, user.ID).PasswordHash))
		assert.Contains(t, env.sender.templates(), "password_changed")
	})

	t.Run("change username", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seed()
		env.login("jdoe")

		res := env.post("/auth/change_username/", map[string]string{"new_username": "johnny", "password": "Wrong123"})
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, readBody(t, res), "Password is incorrect")

		res = env.post("/auth/change_username/", map[string]string{"new_username": "johnny", "password": testPassword})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "johnny", env.store.get(t, user.ID).Username)
	})

	t.Run("change email", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seed()
		env.login("jdoe")

		res := env.post("/auth/change_email/", map[string]string{"old_email": "nobody@example.com", "email": "john@example.com"})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "/auth/login/", res.Header.Get("Location"))

		res = env.post("/auth/change_email/", map[string]string{"old_email": "jdoe@example.com", "email": "john@example.com"})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "/auth/change_email/", res.Header.Get("Location"))
		assert.Equal(t, "john@example.com", env.store.get(t, user.ID).Email)

		msg := env.sender.last()
		require.NotNil(t, msg)
		assert.Equal(t, "jdoe@example.com", msg.ToEmail)
	})
}

func TestFeatureGates(t *testing.T) {
	tests := []struct {
		name     string
		settings func(*authui.Settings)
		path     string
	}{
		{name: "register", settings: func(s *authui.Settings) { s.EnableRegister = false }, path: "/auth/register"},
		{name: "forgot password", settings: func(s *authui.Settings) { s.EnableForgotPassword = false }, path: "/auth/forgot_password/"},
		{name: "reset password", settings: func(s *authui.Settings) { s.EnableForgotPassword = false }, path: "/auth/reset_password/token"},
		{name: "confirm account", settings: func(s *authui.Settings) { s.EnableConfirmAccount = false }, path: "/auth/register/account_verification"},
		{name: "change email", settings: func(s *authui.Settings) { s.EnableEmail = false }, path: "/auth/change_email/"},
		{name: "change username", settings: func(s *authui.Settings) { s.EnableChangeUsername = false }, path: "/auth/change_username/"},
		{name: "change password", settings: func(s *authui.Settings) { s.EnableChangePassword = false }, path: "/auth/change_password/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.settings)
			res := env.get(tt.path)
			assert.Equal(t, http.StatusNotFound, res.StatusCode)
		})
	}
}

func TestURLPrefix(t *testing.T) {
	env := newTestEnv(t, func(s *authui.Settings) { s.URLPrefix = "account/" })

	assert.Equal(t, http.StatusOK, env.get("/account/login/").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get("/auth/login/").StatusCode)
	assert.Equal(t, "/account/reset_password/abc", env.bp.URLFor("auth.reset_password", "abc"))
}

func TestFormFieldsFollowSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings func(*authui.Settings)
		path     string
		present  []string
		absent   []string
	}{
		{
			name:     "register without retype",
			settings: func(s *authui.Settings) { s.RequireRetypePassword = false },
			path:     "/auth/register",
			present:  []string{"password"},
			absent:   []string{"retype_password"},
		},
		{
			name:     "login without remember me",
			settings: func(s *authui.Settings) { s.EnableRememberMe = false },
			path:     "/auth/login/",
			present:  []string{"username", "password"},
			absent:   []string{"remember_me"},
		},
		{
			name:     "login without forgot password link",
			settings: func(s *authui.Settings) { s.EnableForgotPassword = false },
			path:     "/auth/login/",
			present:  []string{"password"},
		},
		{
			name:     "forgot password by email only",
			settings: func(s *authui.Settings) { s.EnableForgotPasswordByUsername = false },
			path:     "/auth/forgot_password/",
			present:  []string{"email"},
			absent:   []string{"username"},
		},
		{
			name:     "forgot password by username only",
			settings: func(s *authui.Settings) { s.EnableForgotPasswordByEmail = false },
			path:     "/auth/forgot_password/",
			present:  []string{"username"},
			absent:   []string{"email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.settings)

			res := env.get(tt.path)
			require.Equal(t, http.StatusOK, res.StatusCode)

			body := readBody(t, res)
			for _, field := range tt.present {
				assert.Contains(t, body, `name="`+field+`"`)
			}
			for _, field := range tt.absent {
				assert.NotContains(t, body, `name="`+field+`"`)
			}
		})
	}

	t.Run("forgot password link hidden", func(t *testing.T) {
		env := newTestEnv(t, func(s *authui.Settings) { s.EnableForgotPassword = false })
		assert.NotContains(t, readBody(t, env.get("/auth/login/")), `href="/auth/forgot_password/"`)
	})
}

func TestPasswordsOverByteLimit(t *testing.T) {
	tooLong := "Aa1" + strings.Repeat("x", authui.MaxPasswordBytes)

	t.Run("register", func(t *testing.T) {
		env := newTestEnv(t)
		values := registration()
		values["password"] = tooLong
		values["retype_password"] = tooLong

		res := env.post("/auth/register", values)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, readBody(t, res), "Password must be at most 72 bytes long")
		assert.Equal(t, 0, env.store.count())
	})

	t.Run("change password", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seed()
		env.login("jdoe")

		res := env.post("/auth/change_password/", map[string]string{
			"old_password":    testPassword,
			"new_password":    tooLong,
			"retype_password": tooLong,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, readBody(t, res), "Password must be at most 72 bytes long")
		assert.True(t, testPasswords(t).VerifyPassword(testPassword, env.store.get(t, user.ID).PasswordHash))
	})
}
