package authui

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// HeaderAcceptLanguage is read when the request has no signed in user
const HeaderAcceptLanguage = "Accept-Language"

// Translator renders a message in the given locale. Message keys are the
// English text with fmt verbs, args fill the verbs after translation.
type Translator interface {
	Translate(locale, key string, args ...any) string
}

// MissingTranslationHandler is called when a locale has no entry for key.
// The returned string is used as the translation.
type MissingTranslationHandler func(locale, key string) string

// Catalog is a Translator backed by one message table per language,
// loaded from <lang>.yml files
type Catalog struct {
	mu       sync.RWMutex
	fallback string
	messages map[string]map[string]string
	missing  MissingTranslationHandler
	matcher  language.Matcher
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithMissingTranslationHandler replaces the default handler, which
// returns the key
func WithMissingTranslationHandler(h MissingTranslationHandler) CatalogOption {
	return func(c *Catalog) {
		if h != nil {
			c.missing = h
		}
	}
}

// NewCatalog creates a catalog with an empty table for the fallback
// language. Keys are English, so "en" needs no file.
func NewCatalog(fallback string, opts ...CatalogOption) *Catalog {
	fallback = normalizeLocale(fallback)
	if fallback == "" {
		fallback = "en"
	}

	c := &Catalog{
		fallback: fallback,
		messages: map[string]map[string]string{fallback: {}},
		missing:  func(_, key string) string { return key },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.rebuildMatcher()
	return c
}

// LoadFS reads every *.yml file in dir. The file name is the language.
//
//	# es.yml
//	"You have signed in successfully.": "Has iniciado sesión correctamente."
func (c *Catalog) LoadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read translations").
			WithTextCode(TextCodeConfigError).
			WithMetadata(map[string]any{"dir": dir})
	}

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yml" {
			continue
		}

		name := path.Join(dir, entry.Name())
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read translations").
				WithTextCode(TextCodeConfigError).
				WithMetadata(map[string]any{"file": name})
		}

		messages := map[string]string{}
		if err := yaml.Unmarshal(raw, &messages); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "invalid translations file").
				WithTextCode(TextCodeConfigError).
				WithMetadata(map[string]any{"file": name})
		}

		c.Add(strings.TrimSuffix(entry.Name(), ".yml"), messages)
	}

	return nil
}

// Add merges messages into the table of locale
func (c *Catalog) Add(locale string, messages map[string]string) {
	locale = normalizeLocale(locale)
	if locale == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	table, ok := c.messages[locale]
	if !ok {
		table = make(map[string]string, len(messages))
		c.messages[locale] = table
	}
	for k, v := range messages {
		table[k] = v
	}
	c.rebuildMatcherLocked()
}

// Languages returns the locales with a table, fallback first
func (c *Catalog) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.languagesLocked()
}

// Translate implements Translator. "es-MX" falls back to "es", then the
// missing handler.
func (c *Catalog) Translate(locale, key string, args ...any) string {
	msg := c.lookup(normalizeLocale(locale), key)
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Match picks the catalog language that best serves an Accept-Language
// header. It returns "" when the header names none of them.
func (c *Catalog) Match(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return ""
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}

	c.mu.RLock()
	matcher := c.matcher
	langs := c.languagesLocked()
	c.mu.RUnlock()

	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return ""
	}
	return langs[index]
}

func (c *Catalog) lookup(locale, key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	known := ""
	for _, candidate := range []string{locale, baseLocale(locale)} {
		table, ok := c.messages[candidate]
		if candidate == "" || !ok {
			continue
		}
		if msg, ok := table[key]; ok && msg != "" {
			return msg
		}
		if known == "" {
			known = candidate
		}
	}

	if known == "" || known == c.fallback {
		return key
	}
	return c.missing(known, key)
}

func (c *Catalog) languagesLocked() []string {
	out := []string{c.fallback}
	for lang := range c.messages {
		if lang != c.fallback {
			out = append(out, lang)
		}
	}
	slices.Sort(out[1:])
	return out
}

func (c *Catalog) rebuildMatcher() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildMatcherLocked()
}

func (c *Catalog) rebuildMatcherLocked() {
	langs := c.languagesLocked()
	tags := make([]language.Tag, 0, len(langs))
	for _, l := range langs {
		tags = append(tags, language.Make(l))
	}
	c.matcher = language.NewMatcher(tags)
}

// DefaultCatalog returns a catalog with the bundled translations
func DefaultCatalog(fallback string) (*Catalog, error) {
	c := NewCatalog(fallback)
	if err := c.LoadFS(translationsFS, "translations"); err != nil {
		return nil, err
	}
	return c, nil
}

// locale resolves the language of a request: the signed in user's
// language, then Accept-Language, then the default language
func (a *AuthController) locale(c router.Context) string {
	if user := CurrentUser(c); user != nil && user.Language != "" {
		return normalizeLocale(user.Language)
	}
	if lang := a.bp.catalog.Match(c.Header(HeaderAcceptLanguage)); lang != "" {
		return lang
	}
	return a.settings.DefaultLanguage
}

// t translates a message for the request
func (a *AuthController) t(c router.Context, key string, args ...any) string {
	return a.bp.translator.Translate(a.locale(c), key, args...)
}

// translateErrors translates the field messages of a validation map
func (a *AuthController) translateErrors(c router.Context, errs map[string][]string) map[string][]string {
	if len(errs) == 0 {
		return errs
	}
	locale := a.locale(c)
	out := make(map[string][]string, len(errs))
	for field, messages := range errs {
		translated := make([]string, 0, len(messages))
		for _, msg := range messages {
			translated = append(translated, a.bp.translator.Translate(locale, msg))
		}
		out[field] = translated
	}
	return out
}

func normalizeLocale(locale string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(locale)), "_", "-")
}

func baseLocale(locale string) string {
	if i := strings.IndexByte(locale, '-'); i > 0 {
		return locale[:i]
	}
	return locale
}
