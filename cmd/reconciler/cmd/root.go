package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nexledger-reconciler/cmd/reconciler/config"
)

var (
	cfgFile string
	envFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Bank statement import and reconciliation",
	Long: `Reconciler imports bank statements (CSV, OFX/QFX and text PDFs) into a
per-company cash book database, proposes matches between statement lines and
cash book entries, and records every change so it can be undone.

Examples:
  reconciler --company "Acme Trading" import statement.csv
  reconciler --company "Acme Trading" match --yes
  reconciler --company "Acme Trading" undo
  reconciler --company "Acme Trading" watch --inbox ~/Downloads/statements`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	return NewCLIErrorHandler(rootCmd.ErrOrStderr()).HandleError(err)
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (optional)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.String("company", "", "company whose books to open")
	pf.String("db", "", "explicit database path (overrides --company directory)")
	pf.String("data-dir", "", "directory holding one folder per company")
	pf.String("log-format", "", "log format: text or json")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.StringP("output-format", "f", "", "report format: console, json, csv or xlsx")
	pf.StringP("output-file", "o", "", "write the report to a file instead of stdout")
	pf.Bool("no-color", false, "disable colored console output")

	// Bind flags to viper
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
	viper.BindPFlag("company", pf.Lookup("company"))
	viper.BindPFlag("db", pf.Lookup("db"))
	viper.BindPFlag("data_dir", pf.Lookup("data-dir"))
	viper.BindPFlag("logging.format", pf.Lookup("log-format"))
	viper.BindPFlag("logging.level", pf.Lookup("log-level"))
	viper.BindPFlag("report.format", pf.Lookup("output-format"))
}

// initConfig reads in the dotenv file, config file and ENV variables.
func initConfig() {
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading env file: %s\n", err)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// A broken config file is reported when the command loads its settings.
		if err := viper.ReadInConfig(); err != nil {
			configErr = err
		} else if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	config.BindEnv(viper.GetViper())
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
