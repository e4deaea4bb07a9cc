package cmd

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/normalizer"
	"nexledger-reconciler/internal/reporter"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/pkg/errors"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Maintain the cash book",
}

var ledgerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a cash book entry",
	Example: `  reconciler ledger add --date 2025-01-12 --account Bank --narration "ABC Supplies" --debit 150.00
  reconciler ledger add --date 31/01/2025 --account Bank --narration "Bank charges" --credit 45`,
	Args: cobra.NoArgs,
	RunE: runLedgerAdd,
}

var ledgerEditCmd = &cobra.Command{
	Use:   "edit ENTRY_ID",
	Short: "Change an unreconciled cash book entry",
	Long: `Edit overwrites the fields given on the command line and keeps the rest.
Reconciled entries cannot be edited; undo their match first.`,
	Args: cobra.ExactArgs(1),
	RunE: runLedgerEdit,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cash book entries",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerPostCmd = &cobra.Command{
	Use:   "post --account ACCOUNT [LINE_ID...]",
	Short: "Post statement lines to the cash book",
	Long: `Post creates one cash book entry per statement line: positive amounts become
debits and negative amounts credits. With --unmatched every unmatched line is
posted. The new entries are not matched automatically; run 'reconciler match'.`,
	RunE: runLedgerPost,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerAddCmd, ledgerEditCmd, ledgerListCmd, ledgerPostCmd)

	for _, c := range []*cobra.Command{ledgerAddCmd, ledgerEditCmd} {
		c.Flags().String("date", "", "entry date, e.g. 2025-01-31 or 31/01/2025")
		c.Flags().String("account", "", "cash book account")
		c.Flags().String("narration", "", "narration")
		c.Flags().String("reference", "", "reference")
		c.Flags().String("debit", "", "debit amount")
		c.Flags().String("credit", "", "credit amount")
	}
	ledgerAddCmd.MarkFlagRequired("date")
	ledgerAddCmd.MarkFlagRequired("account")

	ledgerListCmd.Flags().Bool("unreconciled", false, "only entries not yet reconciled")
	ledgerListCmd.Flags().String("account", "", "only entries in this account")
	ledgerListCmd.Flags().Int("limit", 0, "show at most this many entries (0 for all)")

	ledgerPostCmd.Flags().String("account", "", "cash book account to post to")
	ledgerPostCmd.Flags().Bool("unmatched", false, "post every unmatched statement line")
	ledgerPostCmd.MarkFlagRequired("account")
}

// applyEntryFlags copies the changed entry flags onto e.
func applyEntryFlags(cmd *cobra.Command, e *models.LedgerEntry, order normalizer.DateOrder) error {
	flags := cmd.Flags()
	if flags.Changed("date") {
		s, _ := flags.GetString("date")
		d, err := normalizer.ParseDate(s, order)
		if err != nil {
			return errors.ValidationError(errors.CodeInvalidDate, "date", s, err)
		}
		e.Date = d
	}
	for name, dst := range map[string]*string{"account": &e.Account, "narration": &e.Narration, "reference": &e.Reference} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	for name, dst := range map[string]*decimal.Decimal{"debit": &e.Debit, "credit": &e.Credit} {
		if !flags.Changed(name) {
			continue
		}
		s, _ := flags.GetString(name)
		amount, err := normalizer.ParseAmount(s)
		if err != nil {
			return errors.ValidationError(errors.CodeInvalidAmount, name, s, err)
		}
		*dst = amount
	}
	return nil
}

func runLedgerAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entry := models.LedgerEntry{EntryType: "manual"}
	if err := applyEntryFlags(cmd, &entry, normalizer.DateOrder(a.cfg.Parse.DateOrder)); err != nil {
		return err
	}

	entry, warnings, err := a.service.AddLedgerEntry(cmd.Context(), entry)
	if err != nil {
		return err
	}
	printWarnings(cmd, warnings)
	return a.report(cmd, "ledger", func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.LedgerReport([]models.LedgerEntry{entry}, w)
	})
}

func runLedgerEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "entry_id")
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	entry, err := a.service.GetLedgerEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := applyEntryFlags(cmd, &entry, normalizer.DateOrder(a.cfg.Parse.DateOrder)); err != nil {
		return err
	}

	warnings, err := a.service.EditLedgerEntry(ctx, entry)
	if err != nil {
		return err
	}
	printWarnings(cmd, warnings)
	return a.report(cmd, "ledger", func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.LedgerReport([]models.LedgerEntry{entry}, w)
	})
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var filter store.LedgerFilter
	filter.UnreconciledOnly, _ = cmd.Flags().GetBool("unreconciled")
	filter.Account, _ = cmd.Flags().GetString("account")
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	entries, err := a.service.ListLedger(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return a.report(cmd, "ledger", func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.LedgerReport(entries, w)
	})
}

func runLedgerPost(cmd *cobra.Command, args []string) error {
	account, _ := cmd.Flags().GetString("account")
	unmatched, _ := cmd.Flags().GetBool("unmatched")
	if len(args) == 0 && !unmatched {
		return errors.ValidationError(errors.CodeMissingField, "line_id", nil,
			fmt.Errorf("no statement lines given")).
			WithSuggestion("Pass one or more LINE_IDs or use --unmatched")
	}

	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, "line_id")
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if unmatched {
		lines, err := a.service.ListStatementLines(ctx, store.LineFilter{UnmatchedOnly: true})
		if err != nil {
			return err
		}
		for _, l := range lines {
			ids = append(ids, l.ID)
		}
	}

	posted, err := a.service.PostStatementLines(ctx, account, ids)
	if err != nil {
		return err
	}
	return a.report(cmd, "ledger", func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.LedgerReport(posted, w)
	})
}

func printWarnings(cmd *cobra.Command, warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
	}
}
