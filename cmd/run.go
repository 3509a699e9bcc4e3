package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petvoyage/regsync/internal/extract"
	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/internal/pipeline"
	"github.com/petvoyage/regsync/internal/policy"
	"github.com/petvoyage/regsync/internal/preflight"
	"github.com/petvoyage/regsync/internal/research"
	"github.com/petvoyage/regsync/internal/validate"
	anthropicpkg "github.com/petvoyage/regsync/pkg/anthropic"
	"github.com/petvoyage/regsync/pkg/firecrawl"
	"github.com/petvoyage/regsync/pkg/jina"
	"github.com/petvoyage/regsync/pkg/perplexity"
)

var (
	runKey    string
	runDomain string
	runMode   string
	runURLs   []string
	runNotes  string
	runDry    bool
	runForce  bool
	runRefine bool
	runReuse  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingestion for a single natural key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		pol, err := policy.Load(cfg.Policy.Path)
		if err != nil {
			return eris.Wrap(err, "load policy")
		}

		anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
		jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key, perplexity.WithBaseURL(cfg.Perplexity.BaseURL), perplexity.WithModel(cfg.Perplexity.Model))

		readers := []research.Reader{research.NewJinaReader(jinaClient)}
		if cfg.Firecrawl.Key != "" {
			fcClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
			readers = append(readers, research.NewFirecrawlReader(fcClient))
		}

		researcher := research.New(perplexityClient, research.NewReaderChain(readers...), research.Config{
			Model:            cfg.Perplexity.Model,
			MinContentLength: cfg.Research.MinContentLength,
			MaxChildLinks:    cfg.Research.MaxChildLinks,
			FetchesPerSecond: cfg.Research.FetchesPerSec,
			FetchTimeout:     time.Duration(cfg.Research.FetchTimeoutSecs) * time.Second,
		})
		extractor := extract.New(anthropicClient, extract.Config{
			Model:       cfg.Anthropic.ExtractModel,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
		})

		runner := pipeline.NewRunner(st, preflight.NewChecker(nil), researcher, extractor, pol, pipeline.Config{
			ResearchTimeout:  time.Duration(cfg.Pipeline.ResearchTimeoutSecs) * time.Second,
			ExtractTimeout:   time.Duration(cfg.Pipeline.ExtractTimeoutSecs) * time.Second,
			PublishTimeout:   time.Duration(cfg.Pipeline.PublishTimeoutSecs) * time.Second,
			AuditReuseWindow: time.Duration(cfg.Pipeline.AuditReuseWindowHrs) * time.Hour,
			RecentRunWindow:  time.Duration(cfg.Pipeline.RecentRunWindowMins) * time.Minute,
			SkipReachability: !cfg.Preflight.RequireReachable,
		})
		if cfg.Anthropic.ExplainErrors {
			runner = runner.WithExplainer(validate.NewExplainer(anthropicClient, cfg.Anthropic.ExplainModel))
		}
		runner = runner.WithProgress(pipeline.ProgressFunc(func(e pipeline.Event) {
			fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", e.Stage, e.NaturalKey, e.Message)
		}))

		result, err := runner.Run(ctx, pipeline.RunRequest{
			NaturalKey:        runKey,
			Domain:            model.Domain(runDomain),
			Mode:              model.ParseResearchMode(runMode),
			ManualURLs:        runURLs,
			OperatorNotes:     runNotes,
			DryRun:            runDry,
			Force:             runForce,
			RefineFromCurrent: runRefine,
			ReuseAudit:        runReuse,
		})
		if err != nil {
			if se, ok := pipeline.AsStageError(err); ok {
				zap.L().Error("run failed",
					zap.String("stage", string(se.Stage)),
					zap.String("code", string(se.Code)),
					zap.String("field", se.Field),
					zap.Strings("urls", se.URLs),
				)
			}
			if result != nil && result.AuditID != "" {
				fmt.Fprintf(os.Stderr, "audit record: %s\n", result.AuditID)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("natural_key", result.NaturalKey),
			zap.String("stage", string(result.Stage)),
			zap.Bool("dry_run", result.DryRun),
			zap.String("audit_id", result.AuditID),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runKey, "key", "", "natural key: country name or airline code (required)")
	runCmd.Flags().StringVar(&runDomain, "domain", "country", "regulation domain: country or airline")
	runCmd.Flags().StringVar(&runMode, "mode", "seed_first", "research mode: provided_only, seed_first, deep, deep_relaxed")
	runCmd.Flags().StringSliceVar(&runURLs, "url", nil, "manually supplied source URL (repeatable)")
	runCmd.Flags().StringVar(&runNotes, "notes", "", "operator notes passed to research and extraction")
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "run the pipeline but skip publishing")
	runCmd.Flags().BoolVar(&runForce, "force", false, "override the no-sources and empty-draft gates")
	runCmd.Flags().BoolVar(&runRefine, "refine", false, "re-extract from the published document instead of researching")
	runCmd.Flags().BoolVar(&runReuse, "reuse-audit", false, "serve a dry run from the latest audit record when fresh enough")
	_ = runCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(runCmd)
}
