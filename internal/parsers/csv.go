package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/normalizer"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

const csvDefaultDescription = "CSV Import"

// CSVParser reads delimited bank exports
type CSVParser struct {
	*BaseParser
}

// NewCSVParser creates a CSV parser
func NewCSVParser(fs afero.Fs, config *ParseConfig, log logger.Logger) *CSVParser {
	return &CSVParser{BaseParser: NewBaseParser(fs, config, log)}
}

// Format implements Parser
func (p *CSVParser) Format() models.SourceFormat {
	return models.FormatCSV
}

type csvRecord struct {
	line   int
	fields []string
}

// Parse implements Parser
func (p *CSVParser) Parse(ctx context.Context, path string) (*Result, error) {
	data, err := p.ReadFile(path)
	if err != nil {
		return nil, err
	}
	run := p.newRun(path)
	text, err := p.DecodeText(path, data, run.stats)
	if err != nil {
		return nil, err
	}

	lines := splitLines(text)
	run.stats.TotalLines = len(lines)

	delim := p.config.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(headLines(lines, p.config.headerScanLines()))
	}

	records, err := readRecords(text, delim)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "", "", err)
	}
	if len(records) == 0 {
		return nil, errors.ParseError(errors.CodeMissingColumn, path, 1, "Date", "", fmt.Errorf("file is empty"))
	}

	headerAt, cols := findHeader(records, p.config.headerScanLines())
	if !cols.usable() {
		missing := "Amount"
		if cols.date < 0 {
			missing = "Date"
		}
		return nil, errors.ParseError(errors.CodeMissingColumn, path, records[headerAt].line, missing, "", nil).
			WithContext("headers", strings.Join(records[headerAt].fields, ", "))
	}
	run.stats.SkippedLines += headerAt

	p.logger.WithFields(logger.Fields{
		"file":        path,
		"delimiter":   string(delim),
		"header_line": records[headerAt].line,
	}).Debug("Resolved CSV dialect")

	var txs []models.RawTransaction
	for _, rec := range records[headerAt+1:] {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		if blank(rec.fields) {
			run.stats.SkippedLines++
			continue
		}
		tx, ok := p.convert(run, cols, rec, len(txs))
		if ok {
			txs = append(txs, tx)
		}
	}

	if err := run.finish(); err != nil {
		return nil, err
	}
	return p.result(path, models.FormatCSV, txs, run), nil
}

func (p *CSVParser) convert(run *rowRun, cols columnMap, rec csvRecord, index int) (models.RawTransaction, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(rec.fields) {
			return ""
		}
		return strings.TrimSpace(rec.fields[i])
	}

	rawDate := field(cols.date)
	date, okDate := p.date(run, rec.line, cols.name(cols.date), rawDate)

	var amount decimal.Decimal
	okAmount := true
	if cols.split() {
		credit, okC := p.optionalAmount(run, rec.line, cols.name(cols.credit), field(cols.credit))
		debit, okD := p.optionalAmount(run, rec.line, cols.name(cols.debit), field(cols.debit))
		amount, okAmount = credit.Sub(debit), okC && okD
	} else {
		amount, okAmount = p.amount(run, rec.line, cols.name(cols.amount), field(cols.amount))
	}
	if !okDate || !okAmount {
		return models.RawTransaction{}, false
	}

	desc := normalizer.CleanDescription(field(cols.description))
	if desc == "" {
		desc = csvDefaultDescription
	}
	currency := strings.ToUpper(field(cols.currency))
	if currency == "" {
		currency = p.config.currency()
	}
	ref := field(cols.reference)
	fitid := ref
	if fitid == "" {
		fitid = GenerateFITID(rawDate, index, desc)
	}

	return models.RawTransaction{
		Date:         date,
		Description:  desc,
		Amount:       amount,
		Currency:     currency,
		SourceFormat: models.FormatCSV,
		FITID:        fitid,
		Reference:    ref,
		SourceFile:   run.file,
		Line:         rec.line,
	}, true
}

// optionalAmount treats an empty credit or debit cell as zero
func (p *CSVParser) optionalAmount(run *rowRun, line int, column, value string) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, true
	}
	return p.amount(run, line, column, value)
}

func readRecords(text string, delim rune) ([]csvRecord, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records []csvRecord
	for {
		fields, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		records = append(records, csvRecord{line: line, fields: fields})
	}
}

// findHeader returns the first record within limit that resolves a date and
// an amount column, or the first record when none does.
func findHeader(records []csvRecord, limit int) (int, columnMap) {
	for i := 0; i < len(records) && i < limit; i++ {
		if cols := resolveColumns(records[i].fields); cols.usable() {
			return i, cols
		}
	}
	return 0, resolveColumns(records[0].fields)
}

func headLines(lines []string, n int) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
