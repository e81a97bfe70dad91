package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"callscope/internal/config"
	"callscope/internal/jobs"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var owner, name string
	var jsonOutput, quiet bool

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Transcribe and analyse one recording, waiting for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(signalCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var progress *progressPrinter
			if !quiet && !jsonOutput {
				progress = newProgressPrinter(cmd.ErrOrStderr())
			}
			updates, unsubscribe := a.scheduler.Subscribe()
			defer unsubscribe()

			var segmenting func(int)
			if progress != nil {
				segmenting = progress.segmenting
			}
			sub, err := a.ingest.SubmitFile(signalCtx, path, owner, name, segmenting)
			if err != nil {
				return err
			}

			job, err := waitForJob(signalCtx, a.scheduler, sub.JobID, updates, progress)
			if progress != nil {
				progress.finish()
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					// Interrupted: stop the job instead of waiting out the grace period.
					a.cancel()
				}
				return err
			}
			if job.Status == jobs.StatusError {
				return fmt.Errorf("processing %s failed: %s", sub.Call.FileName, job.Error)
			}

			call, err := a.store.Get(signalCtx, sub.Call.ID)
			if err != nil {
				return err
			}
			record, err := a.store.GetAnalysis(signalCtx, sub.Call.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, callDetail{Call: call, Analysis: record})
			}
			renderCallDetail(cmd.OutOrStdout(), call, record)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id for the call (default ingest.default_owner)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (default derived from the file name)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the call and analysis as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

// waitForJob follows updates for id until the job finishes.
func waitForJob(ctx context.Context, scheduler *jobs.Scheduler, id string, updates <-chan jobs.Job, progress *progressPrinter) (jobs.Job, error) {
	done := make(chan struct{})
	var (
		final   jobs.Job
		waitErr error
	)
	go func() {
		defer close(done)
		final, waitErr = scheduler.Wait(ctx, id)
	}()
	for {
		select {
		case <-done:
			return final, waitErr
		case job, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if progress != nil && job.ID == id {
				progress.job(job)
			}
		}
	}
}
