package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "EnergyDash/internal/middleware"
	"EnergyDash/internal/service/ratelimit"
	"EnergyDash/internal/usecase"
	"EnergyDash/pkg/config"
	xhttp "EnergyDash/pkg/http"
	applogger "EnergyDash/pkg/logger"
)

const limiterIdle = 10 * time.Minute

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	session    *usecase.Session
	clock      *usecase.Clock
	fanout     *mid.SampleFanout
	limiter    *ratelimit.Limiter
	httpServer *xhttp.Server
	batchers   []*usecase.SampleBatcher
	closers    []namedCloser
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	session *usecase.Session,
	clock *usecase.Clock,
	fanout *mid.SampleFanout,
	limiter *ratelimit.Limiter,
	httpServer *xhttp.Server,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        l.Component("app"),
		session:    session,
		clock:      clock,
		fanout:     fanout,
		limiter:    limiter,
		httpServer: httpServer,
	}
}

// AddCloser registers a resource released after everything else has stopped.
// Closers run in reverse registration order.
func (a *App) AddCloser(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// AddBatcher registers a batching sink to start with the app and flush
// after the fan-out has drained.
func (a *App) AddBatcher(b *usecase.SampleBatcher) {
	a.batchers = append(a.batchers, b)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done or the HTTP
// server fails.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, b := range a.batchers {
		b.Start(runCtx)
	}
	a.fanout.Start(runCtx)
	a.log.Info("sample fanout started", applogger.Strings("sinks", a.fanout.Sinks()))

	if err := a.session.Start(runCtx); err != nil {
		a.log.Error("session start error", applogger.Error(err))
		a.shutdown()
		return err
	}
	a.log.Info("feed session started",
		applogger.String("session_id", a.session.ID()),
		applogger.String("feed_url", a.cfg.Feed.URL),
	)

	a.clock.Start(runCtx)
	go a.sweepLimiter(runCtx)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.shutdown()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
		a.log.Error("http server failed", applogger.Error(runErr))
	}

	a.shutdown()
	return runErr
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Forget(limiterIdle); n > 0 {
				a.log.Debug("rate limiter swept", applogger.Int("keys", n))
			}
		}
	}
}

// shutdown stops the session before the fan-out, and the fan-out before the
// sinks it drains into are closed.
func (a *App) shutdown() {
	a.log.Info("shutting down...")

	a.session.Teardown()
	a.clock.Stop()
	a.fanout.Stop()
	for _, b := range a.batchers {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := b.Stop(ctx); err != nil {
			a.log.Warn("batch flush error", applogger.String("sink", b.Name()), applogger.Error(err))
		}
		cancel()
	}

	if err := a.httpServer.Stop(context.Background()); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
