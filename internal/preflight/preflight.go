package preflight

import (
	"context"

	"callscope/internal/config"
	"callscope/internal/segstore"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	// Optional results never block startup.
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// Options select which checks run.
type Options struct {
	// Online enables the segment store round trip and provider health
	// checks, which call the remote APIs.
	Online bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckStorage(cfg.Storage),
		CheckFFmpeg(cfg.Audio.FFmpegBinary),
		CheckProviderConfig("Transcription provider", cfg.TranscriptionProvider()),
	}
	analysisCfg := cfg.AnalysisProvider()
	distinct := analysisUsesDistinctProvider(cfg)
	if distinct {
		results = append(results, CheckProviderConfig("Analysis provider", analysisCfg))
	}

	if opts.Online {
		if store, err := segstore.New(ctx, cfg.Storage); err != nil {
			results = append(results, Result{Name: "Segment store access", Detail: err.Error()})
		} else {
			results = append(results, CheckStorageRoundTrip(ctx, store))
		}
		results = append(results, CheckProvider(ctx, "Transcription API", cfg.TranscriptionProvider()))
		if distinct {
			results = append(results, CheckProvider(ctx, "Analysis API", analysisCfg))
		}
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

// analysisUsesDistinctProvider reports whether the analysis connection differs
// from the transcription one. When identical, one check covers both.
func analysisUsesDistinctProvider(cfg *config.Config) bool {
	t := cfg.TranscriptionProvider()
	a := cfg.AnalysisProvider()
	return t.Provider != a.Provider || t.APIKey != a.APIKey || t.BaseURL != a.BaseURL || t.Model != a.Model
}
