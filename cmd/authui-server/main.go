package main

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/session"
	authui "github.com/goliatone/go-auth-ui"
	"github.com/goliatone/go-auth-ui/activitymap"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

//go:embed views
var viewsFS embed.FS

const (
	defaultAddr   = ":8572"
	defaultDSN    = "file:authui.db?cache=shared"
	defaultConfig = "config.yaml"
)

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("authui"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	settings, err := authui.LoadSettings(
		authui.WithConfigFile(getenv("AUTHUI_CONFIG", defaultConfig)),
		authui.WithLoadLogger(lgr.GetLogger("config")),
	)
	if err != nil {
		panic(err)
	}

	if settings.Debug {
		lgr.Debug("settings loaded", "settings", print.MaybePrettyJSON(settings))
	}

	ctx := context.Background()

	db, err := openDB(getenv("AUTHUI_DSN", defaultDSN))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	if err := authui.Migrate(ctx, db); err != nil {
		panic(err)
	}

	sessions := session.New(session.Config{
		KeyLookup:      "cookie:authui_csrf_session",
		CookieHTTPOnly: true,
		CookieSecure:   settings.SecureCookies,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	})

	hostViews, err := fs.Sub(viewsFS, "views")
	if err != nil {
		panic(err)
	}

	authLogger := lgr.GetLogger("auth")
	bp, err := authui.NewBlueprint(*settings, authui.NewUsersRepository(db),
		authui.WithLogger(authLogger),
		authui.WithViews(authui.NewViews(
			authui.WithTemplatesFS(hostViews),
			authui.WithViewsDebug(settings.Debug),
			authui.WithViewsLogger(lgr.GetLogger("views")),
		)),
		authui.WithActivitySink(activitymap.Sink(func(_ context.Context, record activitymap.Record) error {
			authLogger.Info("activity", "record", print.MaybePrettyJSON(record))
			return nil
		})),
	)
	if err != nil {
		panic(err)
	}

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:               settings.AppName,
			DisableStartupMessage: !settings.Debug,
			Views:                 bp.Views(),
		})
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:" + settings.CSRFFieldName,
			CookieName:     "authui_csrf",
			CookieSameSite: fiber.CookieSameSiteLaxMode,
			CookieSecure:   settings.SecureCookies,
			CookieHTTPOnly: true,
			ContextKey:     settings.CSRFContextKey,
			Session:        sessions,
		}))
		return app
	})

	r := srv.Router()
	r.Use(bp.LoadCurrentUser())

	authui.RegisterRoutes(bp, r)

	r.Get("/", func(c router.Context) error {
		return bp.Render(c, "demo/home", nil)
	})

	r.Get("/members", func(c router.Context) error {
		return bp.Render(c, "demo/members", router.ViewContext{"section": "Members"})
	}, bp.LoginRequired())

	r.Get("/admin", func(c router.Context) error {
		return bp.Render(c, "demo/members", router.ViewContext{"section": "Admin"})
	}, bp.RolesRequired("admin"))

	addr := getenv("AUTHUI_ADDR", defaultAddr)
	go func() {
		lgr.Info("listening", "addr", addr)
		if err := srv.Serve(addr); err != nil {
			lgr.Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	lgr.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("shutdown failed", "error", err)
	}
}

func openDB(dsn string) (*bun.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
