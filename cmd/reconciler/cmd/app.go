package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nexledger-reconciler/cmd/reconciler/config"
	"nexledger-reconciler/internal/company"
	"nexledger-reconciler/internal/parsers"
	"nexledger-reconciler/internal/reconciler"
	"nexledger-reconciler/internal/reporter"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// configErr holds a config file read failure from initConfig.
var configErr error

// app is everything one command invocation needs, opened for one company.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   *store.Store
	service *reconciler.Service
	reports *reporter.SafeReportGenerator
}

// loadConfig decodes viper settings, applies command-specific overrides and
// validates the result.
func loadConfig(adjust ...func(*config.Config)) (*config.Config, error) {
	if configErr != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, configErr).
			WithSuggestion("Check the config file syntax or drop --config")
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if len(adjust) == 0 {
		return cfg, nil
	}
	for _, fn := range adjust {
		fn(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	lc := cfg.LoggerConfig()
	if verbose {
		lc.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(lc)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "logging", cfg.Logging, err)
	}
	logger.SetGlobalLogger(log)
	return log, nil
}

// openApp loads configuration, resolves the company and opens its books.
func openApp(cmd *cobra.Command, adjust ...func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(adjust...)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	cc, err := company.Resolve(cfg.CompanyOptions())
	if err != nil {
		return nil, err
	}
	log = log.WithCompany(cc.ID)

	st, err := store.Open(cmd.Context(), cc, cfg.StoreOptions(log))
	if err != nil {
		return nil, err
	}

	pc, err := cfg.ParseConfig()
	if err != nil {
		st.Close()
		return nil, err
	}
	sc, err := cfg.ServiceConfig()
	if err != nil {
		st.Close()
		return nil, err
	}
	fs := afero.NewOsFs()
	svc, err := reconciler.NewService(st, parsers.NewRegistry(fs, pc, log), sc, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	rc, err := cfg.ReportConfig()
	if err != nil {
		st.Close()
		return nil, err
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		rc.UseColors = false
	}
	reports, err := reporter.NewSafeReportGenerator(rc, fs, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: st, service: svc, reports: reports}, nil
}

// Close releases the company database.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Closing company database failed")
	}
}

// report writes a report to --output-file, or to the command's stdout.
func (a *app) report(cmd *cobra.Command, name string, render reporter.RenderFunc) error {
	path, _ := cmd.Flags().GetString("output-file")
	if path == "" {
		return a.reports.Render(name, cmd.OutOrStdout(), render)
	}

	written, err := a.reports.WriteFile(name, path, render)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Report written to: %s\n", written)
	return nil
}

// validateFileExists checks that path names a readable regular file.
func validateFileExists(path, description string) error {
	if path == "" {
		return errors.ValidationError(errors.CodeMissingField, description, path,
			fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, path,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	// Check if file is readable
	file, err := os.Open(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	file.Close()

	return nil
}
