package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"nexledger-reconciler/internal/reporter"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse the most recent recorded action",
	Long: `Undo pops the newest entry from the command log and reverses it: confirmed
or manual matches, an import batch, or cash book inserts and edits. An import
cannot be undone while any of its lines is matched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		action, err := a.service.UndoLast(cmd.Context())
		if err != nil {
			return err
		}
		if action == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to undo")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Undid %s (log entry %d)\n", action.Kind, action.ID)
		return nil
	},
}

var undoListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the command log, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		actions, err := a.service.ListUndo(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return a.report(cmd, "undo", func(rg *reporter.ReportGenerator, w io.Writer) error {
			return rg.UndoReport(actions, w)
		})
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
	undoCmd.AddCommand(undoListCmd)

	undoListCmd.Flags().Int("limit", 20, "show at most this many entries (0 for all)")
}
