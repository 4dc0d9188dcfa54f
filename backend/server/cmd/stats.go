package cmd

import (
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-user credit and unlock usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.db.Close()

		usage, err := e.db.UsageReport(cmd.Context())
		if err != nil {
			return err
		}
		headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
		tbl := table.New("User", "Remaining", "Last Reset", "Total Unlocks")
		tbl.WithHeaderFormatter(headerFmt)
		tbl.WithWriter(cmd.OutOrStdout())
		for _, u := range usage {
			tbl.AddRow(u.UserId, u.Remaining, u.LastResetAt.UTC().Format("2006-01-02 15:04"), u.TotalUnlocks)
		}
		tbl.Print()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
