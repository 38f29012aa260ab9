package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/dlx/internal/server"
)

const shutdownGrace = 10 * time.Second

// Serve runs the scheduler and the HTTP control API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = port
	}

	if err := r.openEngine(); err != nil {
		return err
	}
	sched, err := r.newScheduler()
	if err != nil {
		return err
	}

	api, err := server.NewAPI(server.APIConfig{
		Syncs:     r.engine,
		Tasks:     r.orchestrator,
		Store:     r.store,
		Schedules: sched,
		Logger:    r.logger,
	})
	if err != nil {
		return err
	}

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger), server.Recoverer(r.logger))
	api.Register(router)
	router.Handler(server.NewEventStream(r.broadcaster, cmd.Duration("heartbeat"), r.logger))

	srv := server.NewHTTPServer(r.config.Server, router)

	var g run.Group

	// Scheduler.
	{
		stopped := make(chan struct{})
		g.Add(
			func() error {
				if err := sched.Init(ctx); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}
				<-stopped
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
				defer cancel()
				if err := sched.Shutdown(shutdownCtx); err != nil {
					r.logger.Warn("scheduler shutdown incomplete", "error", err)
				}
				close(stopped)
			},
		)
	}

	// HTTP control API.
	{
		g.Add(
			func() error {
				r.logger.Info("control API listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					r.logger.Warn("server shutdown incomplete", "error", err)
				}
			},
		)
	}

	// Active work. Syncs started over the API outlive their requests.
	{
		done := make(chan struct{})
		g.Add(
			func() error {
				<-done
				return nil
			},
			func(_ error) {
				defer close(done)
				ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := r.drain(ctx); err != nil {
					r.logger.Warn("active work did not finish before shutdown", "error", err)
				}
			},
		)
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		r.logger.Info("shutting down", "signal", sigErr.Signal)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
