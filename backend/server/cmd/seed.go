package cmd

import (
	"time"

	"github.com/fatih/color"
	"github.com/govdir/govdir/backend/server/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load agencies and contacts from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.db.Close()

		dir, err := seed.LoadFile(cmd.Context(), e.db, args[0], time.Now())
		if err != nil {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "Seeding failed: %v\n", err)
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Loaded %d agencies and %d contacts from %s\n", len(dir.Agencies), len(dir.Contacts), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
