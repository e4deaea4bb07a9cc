package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nexledger-reconciler/internal/importer"
	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/watcher"
	"nexledger-reconciler/pkg/errors"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import statements dropped into an inbox and propose matches on a schedule",
	Long: `Watch imports every CSV, OFX/QFX or PDF statement written to the inbox
directory, one at a time, and runs auto-match on a cron schedule. Scheduled
runs only log their proposals; confirm them with 'reconciler match'.

Stop with Ctrl-C.`,
	Example: `  reconciler --company "Acme Trading" watch --inbox ~/Downloads/statements
  reconciler watch --inbox ./inbox --match-schedule "*/15 * * * *"
  reconciler watch --inbox ./inbox --match-schedule off`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("inbox", "", "directory to watch for statement files")
	watchCmd.Flags().String("match-schedule", "", `cron schedule for auto-match, or "off"`)
	watchCmd.Flags().Bool("skip-existing", false, "ignore files already in the inbox at startup")

	viper.BindPFlag("watch.inbox", watchCmd.Flags().Lookup("inbox"))
	viper.BindPFlag("watch.match_schedule", watchCmd.Flags().Lookup("match-schedule"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	inbox := a.cfg.Watch.Inbox
	if inbox == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "watch.inbox", inbox,
			fmt.Errorf("no inbox directory configured")).
			WithSuggestion("Pass --inbox DIR or set NEXLEDGER_WATCH_INBOX")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := importer.NewWorker(a.service, a.cfg.Importer.Timeout, a.log)
	defer worker.Wait()

	spec := a.cfg.Watch.MatchSchedule
	if !strings.EqualFold(spec, "off") {
		scheduler := watcher.NewScheduler(a.service, spec, a.log)
		scheduler.OnProposals = func(p []models.ProposedMatch) {
			fmt.Fprintf(cmd.OutOrStdout(), "%d match(es) proposed; run 'reconciler match' to review\n", len(p))
		}
		if err := scheduler.Start(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "watch.match_schedule", spec, err).
				WithSuggestion(`Use a 5-field cron expression such as "0 * * * *", or "off"`)
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	opts := watcher.DefaultInboxOptions()
	if a.cfg.Watch.Debounce > 0 {
		opts.Debounce = a.cfg.Watch.Debounce
	}
	skip, _ := cmd.Flags().GetBool("skip-existing")
	opts.ScanExisting = !skip
	opts.OnOutcome = func(o importer.Outcome) {
		reportOutcome(cmd, o)
	}

	return watcher.NewInboxWatcher(inbox, worker, opts, a.log).Run(ctx)
}

// reportOutcome prints a one-line summary per imported file.
func reportOutcome(cmd *cobra.Command, o importer.Outcome) {
	out := cmd.OutOrStdout()
	for _, r := range o.Results {
		fmt.Fprintf(out, "%s: %d imported, %d duplicate(s)\n", r.File, r.Imported, r.Duplicates)
	}
	if o.Err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: import failed: %v\n", strings.Join(o.Job.Paths, ", "), o.Err)
	}
}

var _ watcher.Submitter = (*importer.Worker)(nil)
