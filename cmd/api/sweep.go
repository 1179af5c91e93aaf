package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired objects once and exit",
		Long: `Delete every stored object older than the retention window and exit.

Intended for an external scheduler such as cron. Exits non-zero when the object
store cannot be listed; individual delete failures are reported but do not fail
the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := loadConfig()
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "err", err)
				return err
			}
			defer a.close()

			report, err := a.sweeper().Sweep(ctx, time.Now(), cfg.Retention)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			for _, f := range report.Failures {
				cmd.PrintErrln("failed:", f.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the sweep report as JSON")
	return cmd
}
