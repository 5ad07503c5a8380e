package authui

import (
	"bytes"
	"io"
	"io/fs"
	"maps"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	cfs "github.com/goliatone/go-composite-fs"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const defaultViewsExtension = ".html"

// fsLoader resolves template names against a list of file systems.
// The first file system that has the file wins, so host templates
// shadow the embedded ones.
type fsLoader struct {
	sources []fs.FS
}

func (l *fsLoader) Abs(_, name string) string {
	return path.Clean(strings.TrimPrefix(name, "/"))
}

func (l *fsLoader) Get(name string) (io.Reader, error) {
	var lastErr error
	for _, src := range l.sources {
		b, err := fs.ReadFile(src, name)
		if err == nil {
			return bytes.NewReader(b), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fs.ErrNotExist
	}
	return nil, lastErr
}

// Views renders pages with the django engine and emails with a pongo2
// set over the same sources. It implements fiber.Views so it can be handed
// to fiber.Config.
type Views struct {
	mu        sync.RWMutex
	sources   []fs.FS
	extension string
	debug     bool
	globals   map[string]any
	set       *pongo2.TemplateSet
	engine    *django.Engine
	logger    Logger
}

var _ fiber.Views = (*Views)(nil)

// ViewsOption configures Views
type ViewsOption func(*Views)

// WithTemplatesFS adds a file system that takes precedence over the
// embedded templates. Hosts use it to override single pages.
func WithTemplatesFS(fsys fs.FS) ViewsOption {
	return func(v *Views) {
		if fsys != nil {
			v.sources = append([]fs.FS{fsys}, v.sources...)
		}
	}
}

// WithViewsDebug disables the template cache
func WithViewsDebug(debug bool) ViewsOption {
	return func(v *Views) {
		v.debug = debug
	}
}

// WithViewsGlobals adds values available to every template
func WithViewsGlobals(globals map[string]any) ViewsOption {
	return func(v *Views) {
		maps.Copy(v.globals, globals)
	}
}

// WithViewsLogger sets the logger
func WithViewsLogger(logger Logger) ViewsOption {
	return func(v *Views) {
		v.logger = logger
	}
}

// NewViews creates the template renderer backed by the embedded views
func NewViews(opts ...ViewsOption) *Views {
	v := &Views{
		sources:   []fs.FS{GetViewsFS()},
		extension: defaultViewsExtension,
		globals:   map[string]any{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	v.logger = normalizeLogger(v.logger)
	return v
}

// Load builds the template set. Render calls it lazily.
func (v *Views) Load() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.load()
}

func (v *Views) load() error {
	set := pongo2.NewSet("authui", &fsLoader{sources: v.sources})
	set.Debug = v.debug
	maps.Copy(set.Globals, v.globals)

	engine := django.NewFileSystem(http.FS(cfs.NewCompositeFS(v.sources...)), v.extension)
	engine.Reload(v.debug)
	for name, value := range v.globals {
		engine.AddFunc(name, value)
	}

	if err := engine.Load(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load page templates").
			WithTextCode(TextCodeConfigError)
	}

	v.set = set
	v.engine = engine
	return nil
}

func (v *Views) loaded() (*pongo2.TemplateSet, *django.Engine, error) {
	v.mu.RLock()
	set, engine := v.set, v.engine
	v.mu.RUnlock()
	if set != nil {
		return set, engine, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.set == nil {
		if err := v.load(); err != nil {
			return nil, nil, err
		}
	}
	return v.set, v.engine, nil
}

func (v *Views) templateSet() (*pongo2.TemplateSet, error) {
	set, _, err := v.loaded()
	return set, err
}

// pageName is the engine key of a page: the path without extension
func (v *Views) pageName(name string) string {
	name = strings.TrimPrefix(name, "/")
	return strings.TrimSuffix(name, v.extension)
}

func (v *Views) templateName(name string) string {
	name = strings.TrimPrefix(name, "/")
	if path.Ext(name) == "" {
		name += v.extension
	}
	return name
}

func (v *Views) template(name string) (*pongo2.Template, error) {
	set, err := v.templateSet()
	if err != nil {
		return nil, err
	}

	filename := v.templateName(name)

	var tpl *pongo2.Template
	if v.debug {
		tpl, err = set.FromFile(filename)
	} else {
		tpl, err = set.FromCache(filename)
	}

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load template").
			WithMetadata(map[string]any{"template": filename})
	}
	return tpl, nil
}

// Render executes a page. Pages the engine listed go through django,
// anything else, like a .txt email, is read through the pongo2 set.
func (v *Views) Render(w io.Writer, name string, binding interface{}, layout ...string) error {
	_, engine, err := v.loaded()
	if err != nil {
		return err
	}

	page := v.pageName(name)
	if !v.hasPage(engine, name, page) {
		return v.execute(w, name, binding)
	}

	if err := engine.Render(w, page, toPongoContext(binding), layout...); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render template").
			WithMetadata(map[string]any{"template": page})
	}
	return nil
}

func (v *Views) hasPage(engine *django.Engine, name, page string) bool {
	if ext := path.Ext(name); ext != "" && ext != v.extension {
		return false
	}
	if v.debug {
		// the engine reloads on every render
		return true
	}
	_, ok := engine.Templates[page]
	return ok
}

func (v *Views) execute(w io.Writer, name string, binding any) error {
	tpl, err := v.template(name)
	if err != nil {
		return err
	}

	if err := tpl.ExecuteWriter(toPongoContext(binding), w); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render template").
			WithMetadata(map[string]any{"template": name})
	}
	return nil
}

// RenderString executes the named template with the pongo2 set and
// returns the output. Emails are rendered this way.
func (v *Views) RenderString(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := v.execute(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Exists reports if a template with the given name can be loaded
func (v *Views) Exists(name string) bool {
	filename := v.templateName(name)
	for _, src := range v.sources {
		if _, err := fs.Stat(src, filename); err == nil {
			return true
		}
	}
	return false
}

func toPongoContext(binding any) pongo2.Context {
	ctx := pongo2.Context{}
	switch b := binding.(type) {
	case nil:
	case pongo2.Context:
		maps.Copy(ctx, b)
	case fiber.Map:
		maps.Copy(ctx, b)
	case router.ViewContext:
		maps.Copy(ctx, b)
	case map[string]any:
		maps.Copy(ctx, b)
	default:
		ctx["data"] = b
	}
	return ctx
}
