package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"nexledger-reconciler/internal/company"
	"nexledger-reconciler/internal/dedup"
	"nexledger-reconciler/internal/matcher"
	"nexledger-reconciler/internal/normalizer"
	"nexledger-reconciler/internal/parsers"
	"nexledger-reconciler/internal/reconciler"
	"nexledger-reconciler/internal/reporter"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/internal/watcher"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// EnvPrefix is prepended to every environment variable, e.g. NEXLEDGER_COMPANY.
const EnvPrefix = "NEXLEDGER"

// Config is the full application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	Company  string `mapstructure:"company"`
	DB       string `mapstructure:"db"`
	Currency string `mapstructure:"currency"`
	User     string `mapstructure:"user"`

	Parse    ParseSettings    `mapstructure:"parse"`
	Matching MatchingSettings `mapstructure:"matching"`
	Dedup    DedupSettings    `mapstructure:"dedup"`
	Undo     UndoSettings     `mapstructure:"undo"`
	Importer ImporterSettings `mapstructure:"importer"`
	Store    StoreSettings    `mapstructure:"store"`
	Logging  LoggingSettings  `mapstructure:"logging"`
	Report   ReportSettings   `mapstructure:"report"`
	Watch    WatchSettings    `mapstructure:"watch"`
}

type ParseSettings struct {
	Policy          string      `mapstructure:"policy"`
	DateOrder       string      `mapstructure:"date_order"`
	Delimiter       string      `mapstructure:"delimiter"`
	SniffContent    bool        `mapstructure:"sniff_content"`
	HeaderScanLines int         `mapstructure:"header_scan_lines"`
	MaxWarnings     int         `mapstructure:"max_warnings"`
	OCR             OCRSettings `mapstructure:"ocr"`
}

type OCRSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MatchingSettings starts from Preset; any field that is set overrides it.
type MatchingSettings struct {
	Preset          string   `mapstructure:"preset"`
	AmountTolerance string   `mapstructure:"amount_tolerance"`
	DateWindowDays  *int     `mapstructure:"date_window_days"`
	MinScore        *float64 `mapstructure:"min_score"`
}

type DedupSettings struct {
	Key string `mapstructure:"key"`
}

type UndoSettings struct {
	MaxDepth int `mapstructure:"max_depth"`
}

type ImporterSettings struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	PreviewRows int           `mapstructure:"preview_rows"`
}

type StoreSettings struct {
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type LoggingSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	File   string `mapstructure:"file"`
}

type ReportSettings struct {
	Format    string `mapstructure:"format"`
	UseColors bool   `mapstructure:"use_colors"`
	MaxItems  int    `mapstructure:"max_items"`
	Delimiter string `mapstructure:"delimiter"`
}

type WatchSettings struct {
	Inbox         string        `mapstructure:"inbox"`
	Debounce      time.Duration `mapstructure:"debounce"`
	MatchSchedule string        `mapstructure:"match_schedule"`
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	parse := parsers.DefaultParseConfig()
	svc := reconciler.DefaultConfig()
	report := reporter.DefaultReportConfig()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("company", "")
	v.SetDefault("db", "")
	v.SetDefault("currency", parse.DefaultCurrency)
	v.SetDefault("user", svc.User)

	v.SetDefault("parse.policy", string(parse.Policy))
	v.SetDefault("parse.date_order", string(parse.DateOrder))
	v.SetDefault("parse.delimiter", "")
	v.SetDefault("parse.sniff_content", true)
	v.SetDefault("parse.header_scan_lines", parse.HeaderScanLines)
	v.SetDefault("parse.max_warnings", parse.MaxWarnings)
	v.SetDefault("parse.ocr.enabled", false)
	v.SetDefault("parse.ocr.command", parse.OCR.Command)
	v.SetDefault("parse.ocr.args", parse.OCR.Args)
	v.SetDefault("parse.ocr.timeout", parse.OCR.Timeout)

	v.SetDefault("matching.preset", "default")
	v.SetDefault("matching.amount_tolerance", "")

	v.SetDefault("dedup.key", string(svc.DedupKey))
	v.SetDefault("undo.max_depth", 100)
	v.SetDefault("importer.timeout", 10*time.Minute)
	v.SetDefault("importer.preview_rows", svc.PreviewRows)
	v.SetDefault("store.busy_timeout", 5*time.Second)

	v.SetDefault("logging.level", string(logger.InfoLevel))
	v.SetDefault("logging.format", string(logger.TextFormat))
	v.SetDefault("logging.output", string(logger.StderrOutput))
	v.SetDefault("logging.file", "")

	v.SetDefault("report.format", string(report.Format))
	v.SetDefault("report.use_colors", report.UseColors)
	v.SetDefault("report.max_items", report.MaxItems)
	v.SetDefault("report.delimiter", string(report.CSVDelimiter))

	v.SetDefault("watch.inbox", "")
	v.SetDefault("watch.debounce", watcher.DefaultInboxOptions().Debounce)
	v.SetDefault("watch.match_schedule", watcher.DefaultMatchSchedule)
}

// BindEnv maps NEXLEDGER_* variables onto config keys, with "." in a key
// becoming "_" in the variable name.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No defaults for these, so Unmarshal only sees them when bound.
	_ = v.BindEnv("matching.date_window_days")
	_ = v.BindEnv("matching.min_score")
}

// DefaultDataDir is where company databases live unless configured.
func DefaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + string(os.PathSeparator) + ".nexledger"
	}
	return ".nexledger"
}

// LoadDotEnv loads .env style files into the environment. Missing files are
// skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "env_file", p, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and reports the first problem.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" && strings.TrimSpace(c.DB) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "data_dir", c.DataDir, nil)
	}
	if _, err := c.ParseConfig(); err != nil {
		return err
	}
	if _, err := c.MatchingConfig(); err != nil {
		return err
	}
	if _, err := c.ServiceConfig(); err != nil {
		return err
	}
	if _, err := c.ReportConfig(); err != nil {
		return err
	}
	if err := c.LoggerConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", c.Logging, err)
	}
	if c.Importer.Timeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "importer.timeout", c.Importer.Timeout, nil)
	}
	return nil
}

// CompanyOptions selects the company database.
func (c *Config) CompanyOptions() company.Options {
	return company.Options{
		DataDir:  c.DataDir,
		Name:     c.Company,
		DBPath:   c.DB,
		Currency: c.Currency,
	}
}

// StoreOptions configures the SQLite store.
func (c *Config) StoreOptions(log logger.Logger) store.Options {
	return store.Options{BusyTimeout: c.Store.BusyTimeout, Logger: log}
}

// ParseConfig builds the parser configuration.
func (c *Config) ParseConfig() (*parsers.ParseConfig, error) {
	pc := parsers.DefaultParseConfig()

	policy, err := normalizer.ParsePolicy(c.Parse.Policy)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parse.policy", c.Parse.Policy, err)
	}
	order, err := normalizer.ParseDateOrder(c.Parse.DateOrder)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parse.date_order", c.Parse.DateOrder, err)
	}
	delim, err := parseDelimiter(c.Parse.Delimiter, 0)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parse.delimiter", c.Parse.Delimiter, err)
	}

	pc.Policy = policy
	pc.DateOrder = order
	pc.Delimiter = delim
	pc.SniffContent = c.Parse.SniffContent
	if c.Currency != "" {
		pc.DefaultCurrency = strings.ToUpper(c.Currency)
	}
	if c.Parse.HeaderScanLines != 0 {
		pc.HeaderScanLines = c.Parse.HeaderScanLines
	}
	if c.Parse.MaxWarnings != 0 {
		pc.MaxWarnings = c.Parse.MaxWarnings
	}
	pc.OCR.Enabled = c.Parse.OCR.Enabled
	if c.Parse.OCR.Command != "" {
		pc.OCR.Command = c.Parse.OCR.Command
	}
	if len(c.Parse.OCR.Args) > 0 {
		pc.OCR.Args = c.Parse.OCR.Args
	}
	pc.OCR.Timeout = c.Parse.OCR.Timeout

	if err := pc.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parse", c.Parse, err)
	}
	return pc, nil
}

// MatchingConfig resolves the preset and applies any explicit thresholds.
func (c *Config) MatchingConfig() (*matcher.MatchingConfig, error) {
	mc, err := matcher.Preset(c.Matching.Preset)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching.preset", c.Matching.Preset, err)
	}
	if s := strings.TrimSpace(c.Matching.AmountTolerance); s != "" {
		tol, err := decimal.NewFromString(s)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching.amount_tolerance", s, err)
		}
		mc.AmountTolerance = tol
	}
	if c.Matching.DateWindowDays != nil {
		mc.DateWindowDays = *c.Matching.DateWindowDays
	}
	if c.Matching.MinScore != nil {
		mc.MinScore = *c.Matching.MinScore
	}
	if err := mc.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", c.Matching, err)
	}
	return mc, nil
}

// ServiceConfig builds the reconciliation service configuration.
func (c *Config) ServiceConfig() (*reconciler.Config, error) {
	mc, err := c.MatchingConfig()
	if err != nil {
		return nil, err
	}
	key, err := dedup.ParseKeyMode(c.Dedup.Key)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "dedup.key", c.Dedup.Key, err)
	}

	sc := reconciler.DefaultConfig()
	if c.User != "" {
		sc.User = c.User
	}
	sc.DedupKey = key
	sc.MaxUndoDepth = c.Undo.MaxDepth
	if c.Importer.PreviewRows > 0 {
		sc.PreviewRows = c.Importer.PreviewRows
	}
	sc.Matching = mc

	if err := sc.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "service", sc, err)
	}
	return sc, nil
}

// ReportConfig builds the report configuration.
func (c *Config) ReportConfig() (*reporter.ReportConfig, error) {
	rc := reporter.DefaultReportConfig()
	if c.Report.Format != "" {
		rc.Format = reporter.OutputFormat(strings.ToLower(c.Report.Format))
	}
	rc.UseColors = c.Report.UseColors
	rc.MaxItems = c.Report.MaxItems
	if c.Currency != "" {
		rc.Currency = strings.ToUpper(c.Currency)
	}
	delim, err := parseDelimiter(c.Report.Delimiter, ',')
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report.delimiter", c.Report.Delimiter, err)
	}
	rc.CSVDelimiter = delim

	if err := rc.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report", c.Report, err).
			WithSuggestion("use --output-format console, json, csv or xlsx")
	}
	return rc, nil
}

// LoggerConfig builds the logger configuration.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	if c.Logging.Level != "" {
		lc.Level = logger.Level(strings.ToLower(c.Logging.Level))
	}
	if c.Logging.Format != "" {
		lc.Format = logger.Format(strings.ToLower(c.Logging.Format))
	}
	if c.Logging.Output != "" {
		lc.Output = logger.Output(strings.ToLower(c.Logging.Output))
	}
	lc.File = c.Logging.File
	if lc.File != "" {
		lc.Output = logger.FileOutput
	}
	return lc
}

func parseDelimiter(s string, def rune) (rune, error) {
	switch s {
	case "":
		return def, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}
