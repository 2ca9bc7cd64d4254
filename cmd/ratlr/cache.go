package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/pipeline"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the fingerprint cache",
	}

	var pipelineFile, dir string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cached entries per module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Storage.DataPath
				if pipelineFile != "" {
					cfg, err := config.LoadPipeline(pipelineFile)
					if err != nil {
						return err
					}
					dir = pipeline.CacheDir(cfg, dir)
				}
			}

			c, err := cache.Open(cache.Options{
				Driver: a.cfg.Storage.CacheDriver,
				Dir:    dir,
				DSN:    a.cfg.Storage.CacheDSN,
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			rows, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODULE\tNAME\tENTRIES\tCONFIGURATIONS")
			for _, s := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Module, s.Name, s.Entries, s.Configurations)
			}
			return w.Flush()
		},
	}
	stats.Flags().StringVarP(&pipelineFile, "config", "c", "", "pipeline configuration whose cache is inspected")
	stats.Flags().StringVar(&dir, "dir", "", "cache directory (overrides --config)")

	cmd.AddCommand(stats)
	return cmd
}
