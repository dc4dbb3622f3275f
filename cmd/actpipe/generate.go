package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"actpipe/internal/generate"
)

func (a *app) generateCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic user activity batch as CSV and JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := generate.New(generate.Options{
				Size:  a.cfg.Batch.Size,
				Start: a.cfg.Batch.StartTime(),
				End:   a.cfg.Batch.EndTime(),
				Seed:  a.cfg.Batch.Seed,
			})
			if err != nil {
				return err
			}
			paths, err := generate.WriteFiles(out, g.Records(a.log))
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "data", "output directory")
	f.Int("size", 0, "records to generate")
	f.Int64("seed", 0, "random seed")
	bind(a.v, f.Lookup("size"), "batch.size")
	bind(a.v, f.Lookup("seed"), "batch.seed")
	return cmd
}
