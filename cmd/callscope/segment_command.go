package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"callscope/internal/config"
	"callscope/internal/segstore"
)

type segmentRow struct {
	Index           int     `json:"index"`
	DurationSeconds float64 `json:"duration_seconds"`
	Bytes           int     `json:"bytes"`
}

type segmentReport struct {
	File         string           `json:"file"`
	Kind         string           `json:"kind"`
	SampleRate   int              `json:"sample_rate"`
	ChunkSeconds int              `json:"chunk_seconds"`
	TotalSeconds float64          `json:"total_seconds"`
	TotalBytes   int              `json:"total_bytes"`
	Segments     []segmentRow     `json:"segments"`
	Stored       *segstore.Source `json:"stored,omitempty"`
	StoredIn     string           `json:"stored_in,omitempty"`
}

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	var outDir string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "segment <file>",
		Short: "Split a recording into provider-sized WAV segments without transcribing",
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
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer file.Close()

			name := filepath.Base(path)
			result, err := newSegmenter(cfg, logger).Prepare(cmd.Context(), file, name, nil)
			if err != nil {
				return err
			}

			report := segmentReport{
				File:         name,
				Kind:         string(result.Kind),
				SampleRate:   result.SampleRate,
				ChunkSeconds: result.ChunkSeconds,
				TotalSeconds: result.TotalSeconds,
				TotalBytes:   result.TotalBytes(),
			}
			for _, seg := range result.Segments {
				report.Segments = append(report.Segments, segmentRow{Index: seg.Index, DurationSeconds: seg.DurationSeconds, Bytes: seg.Size})
			}

			if outDir != "" {
				target, err := config.ExpandPath(outDir)
				if err != nil {
					return err
				}
				local, err := segstore.NewLocal(target)
				if err != nil {
					return err
				}
				source, err := segstore.SaveResult(cmd.Context(), local, cfg.Ingest.DefaultOwner, uuid.NewString(), name, result)
				if err != nil {
					return err
				}
				report.Stored = &source
				report.StoredIn = local.Describe()
			}

			if jsonOutput {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s, %s at %d Hz, %s total\n",
				report.File, report.Kind, formatSeconds(report.TotalSeconds), report.SampleRate,
				humanize.IBytes(uint64(report.TotalBytes)))
			rows := make([][]string, 0, len(report.Segments))
			for _, seg := range report.Segments {
				rows = append(rows, []string{
					strconv.Itoa(seg.Index),
					formatSeconds(seg.DurationSeconds),
					humanize.IBytes(uint64(seg.Bytes)),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Duration", "Size"}, rows, []columnAlignment{alignRight, alignRight, alignRight}))
			if report.Stored != nil {
				fmt.Fprintf(out, "Stored %s in %s\n", report.Stored.Path, report.StoredIn)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write segments (and the manifest when chunked) under this directory")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the segmentation report as JSON")
	return cmd
}
