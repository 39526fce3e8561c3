package server

import (
	"context"
	"errors"
	"time"

	xhttp "Overlord/pkg/http"
	applogger "Overlord/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Component is a long-running part of the application. Run blocks until ctx
// is done or the component fails.
type Component interface {
	Name() string
	Run(ctx context.Context) error
}

// ComponentFunc adapts a function to Component.
type ComponentFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c ComponentFunc) Name() string                  { return c.ComponentName }
func (c ComponentFunc) Run(ctx context.Context) error { return c.Fn(ctx) }

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	components      []Component
	closers         []closer
	shutdownTimeout time.Duration
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// AppOption configures App.
type AppOption func(*App)

// WithHTTPServer serves HTTP for the app's lifetime.
func WithHTTPServer(s *xhttp.Server) AppOption {
	return func(a *App) { a.httpServer = s }
}

// WithShutdownTimeout bounds how long closers get after the app stops.
func WithShutdownTimeout(d time.Duration) AppOption {
	return func(a *App) { a.shutdownTimeout = d }
}

// New creates a new App.
func New(l *applogger.Logger, opts ...AppOption) *App {
	a := &App{log: l.With("app"), shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add registers components to run alongside the HTTP server.
func (a *App) Add(cs ...Component) {
	for _, c := range cs {
		if c != nil {
			a.components = append(a.components, c)
		}
	}
}

// OnShutdown registers fn to run after every component has returned, in
// reverse registration order.
func (a *App) OnShutdown(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run starts the application and blocks until ctx is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	for _, c := range a.components {
		c := c
		g.Go(func() error {
			a.log.Info("component started", applogger.String("component", c.Name()))
			err := c.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("component failed", applogger.String("component", c.Name()), applogger.Error(err))
				return err
			}
			a.log.Info("component stopped", applogger.String("component", c.Name()))
			return nil
		})
	}

	// keeps the group alive for apps with HTTP and no components
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	a.log.Info("shutting down...")
	a.shutdown()
	return err
}

// shutdown gracefully stops all services.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
