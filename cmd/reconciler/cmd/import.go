package cmd

import (
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"nexledger-reconciler/cmd/reconciler/config"
	"nexledger-reconciler/internal/importer"
	"nexledger-reconciler/internal/reconciler"
	"nexledger-reconciler/internal/reporter"
	"nexledger-reconciler/pkg/logger"
)

var (
	stageOnly     bool
	importPolicy  string
	dateOrder     string
	dedupKey      string
	importTimeout time.Duration
)

var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import bank statements into the cash book database",
	Long: `Import parses each statement file (CSV, OFX/QFX or PDF), drops rows that are
already in the books and stores the rest as statement lines. Files are
detected by extension and content. Re-importing a file adds nothing.

Use --stage-only to load rows into the raw feed table for review without
creating statement lines.`,
	Example: `  reconciler import january.csv
  reconciler import --policy strict --date-order mdy export.csv
  reconciler import --stage-only statement.ofx
  reconciler import -f json a.csv b.qfx`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := validateFileExists(path, "statement file"); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&stageOnly, "stage-only", false, "stage rows in the raw feed table without importing them")
	importCmd.Flags().StringVar(&importPolicy, "policy", "", "row policy: lenient (default values, warn) or strict (reject file)")
	importCmd.Flags().StringVar(&dateOrder, "date-order", "", "ambiguous date order: auto, dmy or mdy")
	importCmd.Flags().StringVar(&dedupKey, "dedup-key", "", "duplicate key: date_description or date_description_amount")
	importCmd.Flags().DurationVar(&importTimeout, "timeout", 0, "abort the import after this long (0 uses the configured timeout)")
}

func importOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("policy") {
			cfg.Parse.Policy = importPolicy
		}
		if flags.Changed("date-order") {
			cfg.Parse.DateOrder = dateOrder
		}
		if flags.Changed("dedup-key") {
			cfg.Dedup.Key = dedupKey
		}
		if flags.Changed("timeout") {
			cfg.Importer.Timeout = importTimeout
		}
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, importOverrides(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a.log.WithFields(logger.Fields{
		"files":      len(args),
		"stage_only": stageOnly,
	}).Info("Starting import")

	worker := importer.NewWorker(a.service, a.cfg.Importer.Timeout, a.log)
	outcome := worker.Run(ctx, importer.Job{Paths: args, StageOnly: stageOnly})

	// Files finished before a failure are committed, so report them too.
	if len(outcome.Results) > 0 || outcome.Err == nil {
		results := outcome.Results
		if err := a.report(cmd, "import", func(rg *reporter.ReportGenerator, w io.Writer) error {
			return rg.ImportReport(results, w)
		}); err != nil {
			return err
		}
	}
	if outcome.Err != nil {
		return outcome.Err
	}

	a.log.WithFields(logger.Fields{
		"files":    len(outcome.Results),
		"imported": totalImported(outcome.Results),
		"duration": outcome.Duration.String(),
	}).Info("Import completed")
	return nil
}

func totalImported(results []*reconciler.ImportResult) int {
	n := 0
	for _, r := range results {
		n += r.Imported
	}
	return n
}
