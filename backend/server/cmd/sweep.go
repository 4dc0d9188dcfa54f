package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Restore the daily credits of every user whose reset is due",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.db.Close()

		policy, err := e.cfg.QuotaPolicy()
		if err != nil {
			return err
		}
		now := time.Now()
		n, err := e.db.ResetDueQuotas(cmd.Context(), policy, now)
		if err != nil {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "Sweep failed: %v\n", err)
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Reset %d user(s)", n)
		fmt.Fprintf(cmd.OutOrStdout(), " at boundary %s (next: %s)\n",
			policy.Boundary.MostRecent(now).Format(time.RFC3339),
			policy.Boundary.NextAfter(now).Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
