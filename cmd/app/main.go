package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment/cmd"

	"github.com/alecthomas/kong"
)

const shutdownTimeout = 10 * time.Second

type CLI struct {
	cmd.Config `embed:""`

	Serve  ServeCmd  `cmd:"" default:"1" help:"Serve the HTTP API and run the maintenance jobs."`
	Worker WorkerCmd `cmd:"" help:"Run a Temporal worker for the fulfillment workflow."`
	Sweep  SweepCmd  `cmd:"" help:"Run every maintenance job once and exit."`
}

func main() {
	if err := cmd.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("fulfillment"),
		kong.Description("Food order stage orchestrator."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.FatalIfErrorf(kctx.Run(&cli.Config))
}

type ServeCmd struct{}

func (ServeCmd) Run(ctx context.Context, cfg *cmd.Config) error {
	logger := cmd.NewLogger(cfg.LogLevel)
	root, err := cmd.NewCompositionRoot(*cfg, logger)
	if err != nil {
		return err
	}
	defer root.Close()

	if root.UsesTemporal() {
		w, err := root.CreateWorker()
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	jobManager := root.CreateJobManager()
	if err := jobManager.StartAll(); err != nil {
		return err
	}
	defer jobManager.StopAll()

	e, err := root.CreateHTTPServer().Echo(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http server listening", "port", cfg.HTTPPort)
		errCh <- e.Start(fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort))
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.InfoContext(shutdownCtx, "shutting down")
	return e.Shutdown(shutdownCtx)
}

type WorkerCmd struct{}

func (WorkerCmd) Run(ctx context.Context, cfg *cmd.Config) error {
	cfg.Engine = cmd.EngineTemporal
	logger := cmd.NewLogger(cfg.LogLevel)
	root, err := cmd.NewCompositionRoot(*cfg, logger)
	if err != nil {
		return err
	}
	defer root.Close()

	w, err := root.CreateWorker()
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	logger.InfoContext(ctx, "temporal worker started", "taskQueue", cfg.TemporalTaskQueue)
	<-ctx.Done()
	return nil
}

type SweepCmd struct{}

func (SweepCmd) Run(ctx context.Context, cfg *cmd.Config) error {
	root, err := cmd.NewCompositionRoot(*cfg, cmd.NewLogger(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer root.Close()

	return root.Sweep(ctx)
}
