package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"callscope/internal/api"
	"callscope/internal/config"
	"callscope/internal/ingest"
	"callscope/internal/logging"
	"callscope/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind, watchDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and optionally a watch folder) until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(bind) != "" {
				cfg.Paths.APIBind = strings.TrimSpace(bind)
			}
			return runService(cmd, ctx, cfg, serviceOptions{api: true, watchDir: watchDir})
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Also ingest recordings dropped into this directory")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process recordings dropped into a directory until interrupted",
		Long: "Watch ingests audio files placed in <dir> (owner = ingest.default_owner) or in\n" +
			"<dir>/<owner>/. Files are submitted once their size stops changing for\n" +
			"ingest.settle_seconds and then moved to processed/ or failed/.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runService(cmd, ctx, cfg, serviceOptions{watchDir: args[0]})
		},
	}
}

type serviceOptions struct {
	api      bool
	watchDir string
}

// runService holds the single-instance lock, serves until a signal arrives,
// then lets running jobs finish within the shutdown grace period.
func runService(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, opts serviceOptions) error {
	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := ctx.logger(cmd)
	if err != nil {
		return err
	}

	if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg, preflight.Options{})); len(failed) > 0 {
		for _, r := range failed {
			logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "run 'callscope preflight' for the full report"),
			)
		}
		return fmt.Errorf("%d preflight check(s) failed", len(failed))
	}

	lock, err := acquireLock(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	a, err := newApp(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.failStale(signalCtx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	if opts.watchDir != "" {
		dir, err := config.ExpandPath(opts.watchDir)
		if err != nil {
			return err
		}
		settle := time.Duration(cfg.Ingest.SettleSeconds) * time.Second
		watcher := ingest.NewWatcher(dir, a.ingest, settle, logger)
		go func() {
			if err := watcher.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("watch %s: %w", dir, err)
			}
		}()
	}

	if opts.api {
		server := api.New(api.Deps{
			Calls:   a.store,
			Jobs:    a.scheduler,
			Uploads: a.ingest,
			Storage: a.segments.Describe(),
		}, api.Options{Bind: cfg.Paths.APIBind, Token: cfg.Paths.APIToken}, logger)
		if err := server.Start(signalCtx); err != nil {
			return err
		}
		defer server.Stop()
		fmt.Fprintf(cmd.OutOrStdout(), "callscope API listening on http://%s\n", server.Addr())
	}

	select {
	case <-signalCtx.Done():
		logger.Info("callscope shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
