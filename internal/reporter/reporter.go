// Package reporter renders import, matching and ledger results.
//
// Every report can be written in four formats:
//   - Console: aligned, optionally coloured text for the terminal
//   - JSON: the underlying records, indented
//   - CSV: one row per record, written with gocsv
//   - XLSX: the CSV rows on a single worksheet
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = gen.ProposalReport(proposals, os.Stdout)
package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// Binary reports whether the format should not be written to a terminal.
func (f OutputFormat) Binary() bool {
	return f == FormatXLSX
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Console formatting options
	UseColors     bool   `json:"use_colors" mapstructure:"use_colors"`
	MaxItems      int    `json:"max_items" mapstructure:"max_items"`
	TableMaxWidth int    `json:"table_max_width" mapstructure:"table_max_width"`
	Currency      string `json:"currency" mapstructure:"currency"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:        FormatConsole,
		UseColors:     true,
		MaxItems:      50,
		TableMaxWidth: 120,
		Currency:      "ZAR",
		CSVDelimiter:  ',',
		CSVHeaders:    true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator writes reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.Currency == "" {
		config.Currency = "ZAR"
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// report is one renderable result set.
type report struct {
	title   string
	payload interface{}
	rows    interface{}
	console func(io.Writer, *palette)
}

func (rg *ReportGenerator) write(r report, w io.Writer) error {
	switch rg.config.Format {
	case FormatConsole:
		r.console(w, rg.palette())
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.payload)
	case FormatCSV:
		return rg.writeCSV(r.rows, w)
	case FormatXLSX:
		return rg.writeXLSX(r.title, r.rows, w)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) writeCSV(rows interface{}, w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = rg.config.CSVDelimiter
	safe := gocsv.NewSafeCSVWriter(cw)

	var err error
	if rg.config.CSVHeaders {
		err = gocsv.MarshalCSV(rows, safe)
	} else {
		err = gocsv.MarshalCSVWithoutHeaders(rows, safe)
	}
	if err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func (rg *ReportGenerator) writeXLSX(title string, rows interface{}, w io.Writer) error {
	raw, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return fmt.Errorf("failed to build worksheet rows: %w", err)
	}
	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to build worksheet rows: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(record))
		for j, v := range record {
			values[j] = cellValue(v, i == 0)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	if len(records) > 0 && len(records[0]) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(records[0]), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// cellValue keeps numbers numeric so spreadsheet sums work.
func cellValue(v string, header bool) interface{} {
	if header || v == "" {
		return v
	}
	// Leading zeros mark an identifier, not a number.
	digits := strings.TrimPrefix(v, "-")
	if digits == "" || digits[0] < '0' || digits[0] > '9' {
		return v
	}
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return v
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}

func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, title)
	if name == "" {
		name = "Report"
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

// ImportReport writes the outcome of one or more imports.
func (rg *ReportGenerator) ImportReport(results []*reconciler.ImportResult, w io.Writer) error {
	rows := make([]importRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, newImportRow(r))
	}
	return rg.write(report{
		title:   "Imports",
		payload: results,
		rows:    rows,
		console: func(w io.Writer, p *palette) { rg.consoleImports(results, w, p) },
	}, w)
}

// ProposalReport writes a batch of proposed matches.
func (rg *ReportGenerator) ProposalReport(proposals []models.ProposedMatch, w io.Writer) error {
	rows := make([]proposalRow, 0, len(proposals))
	for _, p := range proposals {
		rows = append(rows, newProposalRow(p))
	}
	return rg.write(report{
		title:   "Proposed matches",
		payload: proposals,
		rows:    rows,
		console: func(w io.Writer, p *palette) { rg.consoleProposals(proposals, w, p) },
	}, w)
}

// LedgerReport writes cash book entries.
func (rg *ReportGenerator) LedgerReport(entries []models.LedgerEntry, w io.Writer) error {
	rows := make([]ledgerRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, newLedgerRow(e))
	}
	return rg.write(report{
		title:   "Cash book",
		payload: entries,
		rows:    rows,
		console: func(w io.Writer, p *palette) { rg.consoleLedger(entries, w, p) },
	}, w)
}

// LinesReport writes bank statement lines.
func (rg *ReportGenerator) LinesReport(lines []models.StatementLine, w io.Writer) error {
	rows := make([]lineRow, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, newLineRow(l))
	}
	return rg.write(report{
		title:   "Statement lines",
		payload: lines,
		rows:    rows,
		console: func(w io.Writer, p *palette) { rg.consoleLines(lines, w, p) },
	}, w)
}

// MatchesReport writes confirmed match records.
func (rg *ReportGenerator) MatchesReport(matches []models.MatchRecord, w io.Writer) error {
	rows := make([]matchRow, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, newMatchRow(m))
	}
	return rg.write(report{
		title:   "Matches",
		payload: matches,
		rows:    rows,
		console: func(w io.Writer, p *palette) { rg.consoleMatches(matches, w, p) },
	}, w)
}

// UndoReport writes the undo log, newest first.
func (rg *ReportGenerator) UndoReport(actions []models.UndoAction, w io.Writer) error {
	rows := make([]undoRow, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, newUndoRow(a))
	}
	return rg.write(report{
		title:   "Undo log",
		payload: actions,
		rows:    rows,
		console: func(w io.Writer, p *palette) { rg.consoleUndo(actions, w, p) },
	}, w)
}

// RulesReport writes the bank rules.
func (rg *ReportGenerator) RulesReport(rules []models.BankRule, w io.Writer) error {
	rows := make([]ruleRow, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, ruleRow(r))
	}
	return rg.write(report{
		title:   "Bank rules",
		payload: rules,
		rows:    rows,
		console: func(w io.Writer, p *palette) { rg.consoleRules(rules, w, p) },
	}, w)
}

// palette holds the console colours; all of them are no-ops when colours are off.
type palette struct {
	header *color.Color
	good   *color.Color
	warn   *color.Color
	bad    *color.Color
	muted  *color.Color
}

func (rg *ReportGenerator) palette() *palette {
	p := &palette{
		header: color.New(color.Bold, color.FgCyan),
		good:   color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed),
		muted:  color.New(color.Faint),
	}
	if !rg.config.UseColors {
		for _, c := range []*color.Color{p.header, p.good, p.warn, p.bad, p.muted} {
			c.DisableColor()
		}
	}
	return p
}
