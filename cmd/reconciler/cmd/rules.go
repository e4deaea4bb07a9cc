package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/reporter"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage bank rules that tag imported lines by description",
}

var rulesAddCmd = &cobra.Command{
	Use:     "add PATTERN ACTION",
	Short:   "Add a bank rule",
	Long:    `Add a rule: imported lines whose description contains PATTERN (case-insensitive) are tagged with ACTION.`,
	Example: `  reconciler rules add "SERVICE FEE" bank_charges`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rule, err := a.service.AddRule(cmd.Context(), models.BankRule{Pattern: args[0], Action: args[1], Enabled: true})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added rule %d: %q -> %s\n", rule.ID, rule.Pattern, rule.Action)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bank rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rules, err := a.service.ListRules(cmd.Context())
		if err != nil {
			return err
		}
		return a.report(cmd, "rules", func(rg *reporter.ReportGenerator, w io.Writer) error {
			return rg.RulesReport(rules, w)
		})
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable RULE_ID",
	Short: "Enable a bank rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleEnabled(cmd, args[0], true) },
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable RULE_ID",
	Short: "Disable a bank rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleEnabled(cmd, args[0], false) },
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd, rulesEnableCmd, rulesDisableCmd)
}

func setRuleEnabled(cmd *cobra.Command, arg string, enabled bool) error {
	id, err := parseID(arg, "rule_id")
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.SetRuleEnabled(cmd.Context(), id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rule %d %s\n", id, state)
	return nil
}
