package cli

// This file contains the serve command exposing runs over HTTP.

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perfgo/pwbox/server"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func (a *App) serve(ctx *cli.Context) error {
	if ctx.IsSet("addr") {
		a.cfg.Server.Addr = ctx.String("addr")
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(a.logger, a.cfg, a.newOrchestrator())

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
