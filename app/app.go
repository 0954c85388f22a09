package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/searchktools/poolserver/config"
	"github.com/searchktools/poolserver/core"
	"github.com/searchktools/poolserver/core/router"
)

// App is the application instance: a server plus its process lifecycle
type App struct {
	cfg    config.Config
	server *core.Server
	out    io.Writer
}

// New creates an application instance
func New(cfg config.Config, opts ...core.Option) *App {
	return &App{
		cfg:    cfg,
		server: core.NewServer(cfg, opts...),
		out:    color.Output,
	}
}

// Server returns the underlying server for route registration
func (a *App) Server() *core.Server {
	return a.server
}

// SetOutput redirects the startup banner
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// Run starts the server and blocks until SIGINT or SIGTERM, then drains
func (a *App) Run(routes ...router.Route) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.RunContext(ctx, routes...)
}

// RunContext starts the server and drains it once ctx is done
func (a *App) RunContext(ctx context.Context, routes ...router.Route) error {
	restore := tuneRuntime(a.cfg)
	defer restore()

	if err := a.server.Start(routes...); err != nil {
		return errors.Wrap(err, "server startup failed")
	}
	a.banner()

	<-ctx.Done()
	log.Printf("poolserver: %v, draining...", context.Cause(ctx))

	if err := a.server.Stop(); err != nil {
		return errors.Wrap(err, "server stop failed")
	}
	return nil
}

func (a *App) banner() {
	bold := color.New(color.Bold, color.FgHiCyan)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintf(a.out, "%s %s\n",
		bold.Sprint("poolserver"),
		dim.Sprintf("[%s]", a.cfg.Env))
	fmt.Fprintf(a.out, "  listening on %s\n", color.New(color.FgHiGreen).Sprint(a.server.Addr()))
	fmt.Fprintf(a.out, "  %d workers, keep-alive %v\n", a.cfg.PoolSize, a.cfg.KeepAlive)

	for _, r := range a.server.Router().Routes() {
		fmt.Fprintf(a.out, "  %s %s\n", dim.Sprintf("%-7s", r.Method), r.Pattern)
	}
}
