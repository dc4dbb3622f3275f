package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"actpipe/internal/lineage"
)

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the outputs listed in the latest manifest against their checksums",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := lineage.Verify(cmd.Context(), manifestReader(a.cfg))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "run %s: %d files checked\n", res.Manifest.RunID, res.Checked)
			for _, m := range res.Mismatches {
				fmt.Fprintf(w, "  %s: %s\n", m.Path, m.Reason)
			}
			if !res.OK() {
				return fmt.Errorf("verify: %d of %d files do not match", len(res.Mismatches), res.Checked)
			}
			return nil
		},
	}
}
