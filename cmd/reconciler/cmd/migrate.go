package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the company database schema",
	Long: `Migrate applies any pending schema migrations to the company database and
prints the resulting schema version. Every other command migrates on open as
well; this one only does that.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.store.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		c := a.store.Company()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d (%s)\n", c.Name, v, c.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
