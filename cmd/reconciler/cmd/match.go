package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nexledger-reconciler/cmd/reconciler/config"
	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/reporter"
	"nexledger-reconciler/pkg/errors"
)

var (
	assumeYes       bool
	amountTolerance string
	dateWindow      int
	minScore        float64
	matchPreset     string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Propose and confirm matches between statement lines and the cash book",
	Long: `Match pairs every unmatched statement line with the best unreconciled cash
book entry whose amount is within the tolerance and whose date is within the
window. The proposals are shown as one batch and confirmed or rejected as a
whole; use --yes to confirm without asking.

Presets:
  default   tolerance 0.01, window 3 days, score above 0.4
  strict    tolerance 0.00, window 1 day,  score above 0.6
  relaxed   tolerance 0.05, window 5 days, score above 0.3`,
	Example: `  reconciler match
  reconciler match --yes --preset strict
  reconciler match --amount-tolerance 1.00 --date-window 7`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

var matchManualCmd = &cobra.Command{
	Use:   "manual LINE_ID ENTRY_ID",
	Short: "Match one statement line to one cash book entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runMatchManual,
}

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Inspect recorded matches",
}

var matchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List confirmed matches, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		matches, err := a.service.ListMatches(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return a.report(cmd, "matches", func(rg *reporter.ReportGenerator, w io.Writer) error {
			return rg.MatchesReport(matches, w)
		})
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.AddCommand(matchManualCmd)
	rootCmd.AddCommand(matchesCmd)
	matchesCmd.AddCommand(matchesListCmd)

	matchCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "confirm the proposals without asking")
	matchCmd.Flags().StringVar(&amountTolerance, "amount-tolerance", "", "largest amount difference that still matches, e.g. 0.01")
	matchCmd.Flags().IntVar(&dateWindow, "date-window", 0, "largest day difference that still matches")
	matchCmd.Flags().Float64Var(&minScore, "min-score", 0, "description similarity a match must exceed (0.0-1.0)")
	matchCmd.Flags().StringVar(&matchPreset, "preset", "", "matching preset: default, strict or relaxed")

	matchesListCmd.Flags().Int("limit", 0, "show at most this many matches (0 for all)")
}

// matchOverrides applies only the flags given on the command line, on top
// of the configured preset.
func matchOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("preset") {
			cfg.Matching = config.MatchingSettings{Preset: matchPreset}
		}
		if flags.Changed("amount-tolerance") {
			cfg.Matching.AmountTolerance = amountTolerance
		}
		if flags.Changed("date-window") {
			days := dateWindow
			cfg.Matching.DateWindowDays = &days
		}
		if flags.Changed("min-score") {
			score := minScore
			cfg.Matching.MinScore = &score
		}
	}
}

func runMatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, matchOverrides(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	proposals, err := a.service.AutoMatch(ctx)
	if err != nil {
		return err
	}

	if err := a.report(cmd, "proposals", func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.ProposalReport(proposals, w)
	}); err != nil {
		return err
	}
	if len(proposals) == 0 {
		return nil
	}

	if !assumeYes {
		ok, err := confirm(cmd, fmt.Sprintf("Confirm all %d proposed match(es)?", len(proposals)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.ErrOrStderr(), "No matches confirmed")
			return nil
		}
	}

	n, err := a.service.ConfirmMatches(ctx, proposals)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Confirmed %d match(es). Run 'reconciler undo' to reverse.\n", n)
	return nil
}

func runMatchManual(cmd *cobra.Command, args []string) error {
	lineID, err := parseID(args[0], "line_id")
	if err != nil {
		return err
	}
	entryID, err := parseID(args[1], "entry_id")
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.service.MatchManual(cmd.Context(), lineID, entryID)
	if err != nil {
		return err
	}
	return a.report(cmd, "matches", func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.MatchesReport([]models.MatchRecord{*rec}, w)
	})
}

// confirm asks a y/N question on the command's input. Anything other than
// y or yes, including end of input, is a no.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.InternalError(errors.CodeUnexpectedError, "read_confirmation", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func parseID(s, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.ValidationError(errors.CodeOutOfRange, field, s,
			fmt.Errorf("%s must be a positive integer", field))
	}
	return id, nil
}
