package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/evaluation"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/pipeline"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

type runOptions struct {
	pipeline    string
	groundTruth string
	output      string
	reverse     bool
	workers     int
	sourcePath  string
	targetPath  string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Recover trace links for a pipeline configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.pipeline, "config", "c", "", "pipeline configuration file (.json, .yaml)")
	f.StringVar(&opts.groundTruth, "ground-truth", "", "CSV file of expected trace links to score the result against")
	f.StringVarP(&opts.output, "output", "o", "", "write trace links to this CSV file instead of stdout")
	f.BoolVar(&opts.reverse, "reverse", false, "trace from target artifacts to source artifacts")
	f.IntVar(&opts.workers, "workers", 0, "source elements classified concurrently (default RATLR_WORKERS)")
	f.StringVar(&opts.sourcePath, "source-path", "", "override the path of the source artifact provider")
	f.StringVar(&opts.targetPath, "target-path", "", "override the path of the target artifact provider")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func (a *app) run(cmd *cobra.Command, opts runOptions) error {
	cfg, err := config.LoadPipeline(opts.pipeline)
	if err != nil {
		return err
	}
	override(cfg.SourceArtifactProvider, "path", opts.sourcePath)
	override(cfg.TargetArtifactProvider, "path", opts.targetPath)
	if opts.reverse {
		cfg = cfg.Reversed()
	}

	workers := a.cfg.Run.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}

	c, err := cache.Open(cache.Options{
		Driver: a.cfg.Storage.CacheDriver,
		Dir:    pipeline.CacheDir(cfg, a.cfg.Storage.DataPath),
		DSN:    a.cfg.Storage.CacheDSN,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctrl, err := pipeline.New(cfg, pipeline.Deps{
		Cache:    c,
		LLM:      a.cfg.LLM,
		StoreDSN: a.cfg.Storage.StoreDSN,
		Workers:  workers,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()

	links, err := ctrl.Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := writeLinks(cmd.OutOrStdout(), opts.output, links); err != nil {
		return err
	}
	if opts.groundTruth == "" {
		return nil
	}

	truth, err := evaluation.LoadGroundTruth(opts.groundTruth, opts.reverse)
	if err != nil {
		return err
	}
	res := evaluation.Score(links, truth)
	a.logger.Info("evaluation",
		zap.Float64("precision", res.Precision),
		zap.Float64("recall", res.Recall),
		zap.Float64("f1", res.F1))
	fmt.Fprintf(cmd.ErrOrStderr(), "precision=%.3f recall=%.3f f1=%.3f (tp=%d fp=%d fn=%d)\n",
		res.Precision, res.Recall, res.F1, res.TruePositives, res.FalsePositives, res.FalseNegatives)
	return nil
}

// override sets key in the arguments of m when value is not empty.
func override(m types.ModuleConfiguration, key, value string) {
	if value != "" && m.Args != nil {
		m.Args[key] = value
	}
}

func writeLinks(stdout io.Writer, path string, links []types.TraceLink) error {
	if path == "" {
		return evaluation.WriteLinks(stdout, links)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := evaluation.WriteLinks(f, links); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
