package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Server hosts the clinic page on a fiber app.
type Server struct {
	srv        router.Server[*fiber.App]
	app        *fiber.App
	controller *Controller
}

// ServerOption configures the fiber app before routes are mounted.
type ServerOption func(*fiber.Config)

// WithTemplates replaces the embedded templates, e.g. with a directory on
// disk while editing markup.
func WithTemplates(fsys fs.FS) ServerOption {
	return func(cfg *fiber.Config) {
		cfg.Views = newEngine(fsys)
	}
}

// NewServer builds the fiber app, installs the flash middleware and mounts
// the controller routes.
func NewServer(controller *Controller, opts ...ServerOption) (*Server, error) {
	if controller == nil {
		return nil, errors.New("web server requires a controller", errors.CategoryBadInput).
			WithTextCode("WEB_CONTROLLER_MISSING")
	}

	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to scope embedded templates")
	}

	cfg := fiber.Config{
		UnescapePath:          true,
		StrictRouting:         false,
		PassLocalsToViews:     true,
		DisableStartupMessage: true,
		Views:                 newEngine(sub),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{controller: controller}
	s.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		s.app = router.DefaultFiberOptions(fiber.New(cfg))
		return s.app
	})

	s.srv.Router().Use(mflash.New(mflash.ConfigDefault))
	RegisterRoutes(s.srv.Router(), controller)

	return s, nil
}

func newEngine(fsys fs.FS) *django.Engine {
	return django.NewFileSystem(http.FS(fsys), ".html")
}

// Router exposes the router so callers can mount extra routes.
func (s *Server) Router() router.Router[*fiber.App] {
	return s.srv.Router()
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve blocks listening on addr.
func (s *Server) Serve(addr string) error {
	s.controller.Logger.Info("web server listening", "addr", addr)
	return s.srv.Serve(addr)
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
