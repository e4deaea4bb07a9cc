package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"nexledger-reconciler/internal/reporter"
	"nexledger-reconciler/internal/store"
)

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Inspect imported bank statement lines",
}

var linesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List statement lines",
	Example: `  reconciler lines list --unmatched
  reconciler lines list --batch 3f0c2a8e-... -f csv -o lines.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var filter store.LineFilter
		filter.UnmatchedOnly, _ = cmd.Flags().GetBool("unmatched")
		filter.ReconciliationID, _ = cmd.Flags().GetString("batch")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		lines, err := a.service.ListStatementLines(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return a.report(cmd, "lines", func(rg *reporter.ReportGenerator, w io.Writer) error {
			return rg.LinesReport(lines, w)
		})
	},
}

func init() {
	rootCmd.AddCommand(linesCmd)
	linesCmd.AddCommand(linesListCmd)

	linesListCmd.Flags().Bool("unmatched", false, "only lines without a match")
	linesListCmd.Flags().String("batch", "", "only lines from this import batch")
	linesListCmd.Flags().Int("limit", 0, "show at most this many lines (0 for all)")
}
