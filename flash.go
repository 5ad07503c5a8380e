package authui

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/microcosm-cc/bluemonday"
)

const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// DefaultFlashCookieName carries queued flashes between a redirect and the
// page that shows them
const DefaultFlashCookieName = "auth_flashes"

const (
	flashLocalsNow    = "auth_flashes_now"
	flashLocalsQueued = "auth_flashes_queued"
	flashLocalsPopped = "auth_flashes_popped"
)

var (
	flashPolicyOnce sync.Once
	flashPolicy     *bluemonday.Policy
)

func flashSanitizer() *bluemonday.Policy {
	flashPolicyOnce.Do(func() {
		flashPolicy = bluemonday.UGCPolicy()
		flashPolicy.RequireNoFollowOnLinks(false)
	})
	return flashPolicy
}

// Flash is a one time message shown on the next rendered page
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// FlashStore keeps flashes in a cookie between a redirect and the page that
// shows them. Messages are sanitized when queued and again when read back,
// the cookie is client controlled.
type FlashStore struct {
	cookieName string
	secure     bool
	logger     Logger
}

// NewFlashStore creates a flash store
func NewFlashStore(cookieName string, secure bool, logger Logger) *FlashStore {
	if cookieName == "" {
		cookieName = DefaultFlashCookieName
	}
	return &FlashStore{
		cookieName: cookieName,
		secure:     secure,
		logger:     normalizeLogger(logger),
	}
}

// Add queues a flash for the next request
func (f *FlashStore) Add(c router.Context, category, message string) {
	queued := f.queued(c)
	queued = append(queued, newFlash(category, message))
	c.Locals(flashLocalsQueued, queued)

	raw, err := json.Marshal(queued)
	if err != nil {
		f.logger.Error("failed to encode flashes", "error", err)
		return
	}

	c.Cookie(&router.Cookie{
		Name:     f.cookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		HTTPOnly: true,
		Secure:   f.secure,
		SameSite: "Lax",
	})
}

// Now adds a flash to the page rendered by the current request
func (f *FlashStore) Now(c router.Context, category, message string) {
	pending, _ := c.Locals(flashLocalsNow).([]Flash)
	c.Locals(flashLocalsNow, append(pending, newFlash(category, message)))
}

// Pop returns and clears the queued flashes
func (f *FlashStore) Pop(c router.Context) []Flash {
	out := append([]Flash{}, f.queued(c)...)

	if len(out) > 0 {
		c.Cookie(&router.Cookie{
			Name:     f.cookieName,
			Value:    "",
			Expires:  time.Now().Add(-time.Hour * (24 * 365)),
			HTTPOnly: true,
			Secure:   f.secure,
			SameSite: "Lax",
		})
	}
	c.Locals(flashLocalsQueued, []Flash{})
	c.Locals(flashLocalsPopped, true)

	if pending, ok := c.Locals(flashLocalsNow).([]Flash); ok {
		out = append(out, pending...)
		c.Locals(flashLocalsNow, []Flash{})
	}

	return out
}

// queued returns the flashes queued so far: the ones the request carried,
// unless they were popped, plus the ones added during the request
func (f *FlashStore) queued(c router.Context) []Flash {
	if queued, ok := c.Locals(flashLocalsQueued).([]Flash); ok {
		return queued
	}
	if popped, _ := c.Locals(flashLocalsPopped).(bool); popped {
		return nil
	}
	return decodeFlashes(c.Cookies(f.cookieName))
}

func newFlash(category, message string) Flash {
	switch category {
	case FlashSuccess, FlashError, FlashInfo:
	default:
		category = FlashInfo
	}
	return Flash{
		Category: category,
		Message:  flashSanitizer().Sanitize(message),
	}
}

func decodeFlashes(raw string) []Flash {
	if raw == "" {
		return nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(b, &flashes); err != nil {
		return nil
	}
	for i, fl := range flashes {
		flashes[i] = newFlash(fl.Category, fl.Message)
	}
	return flashes
}
