// Package parsers turns bank statement files into normalized raw transactions.
//
// Three formats are supported:
//   - CSV with a sniffed dialect and header aliases
//   - OFX/QFX, both headered SGML/XML and bare SGML fragments
//   - PDF with a text layer, or image-only PDFs through an OCR command
//
// Every parser reads through an afero.Fs and shares the BaseParser helpers
// for decoding, policy handling and statistics. Use a Registry to pick the
// parser for a path:
//
//	reg := parsers.NewRegistry(afero.NewOsFs(), parsers.DefaultParseConfig(), log)
//	result, err := reg.Parse(ctx, "statement.ofx")
package parsers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/charmap"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/normalizer"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser converts one statement file into raw transactions
type Parser interface {
	Format() models.SourceFormat
	Parse(ctx context.Context, path string) (*Result, error)
}

// Result is the output of a single parse
type Result struct {
	File         string
	Format       models.SourceFormat
	Transactions []models.RawTransaction
	Stats        *ParseStats
}

// BaseParser provides file access, decoding and policy handling
type BaseParser struct {
	fs     afero.Fs
	config *ParseConfig
	norm   *normalizer.Normalizer
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(fs afero.Fs, config *ParseConfig, log logger.Logger) *BaseParser {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &BaseParser{
		fs:     fs,
		config: config,
		norm:   config.Normalizer(),
		logger: log.WithComponent("parser"),
	}
}

// ReadFile reads a statement file, mapping OS failures to file errors
func (bp *BaseParser) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(bp.fs, path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to read statement file")
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, path, err)
	}
	return data, nil
}

// DecodeText strips a UTF-8 BOM and returns the content as UTF-8. Invalid
// UTF-8 is read as Windows-1252 unless the policy is strict.
func (bp *BaseParser) DecodeText(path string, data []byte, stats *ParseStats) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	if bp.norm.Strict() {
		return "", errors.ParseError(errors.CodeEncodingError, path, firstInvalidLine(data), "", "",
			fmt.Errorf("invalid UTF-8 encoding detected"))
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.ParseError(errors.CodeEncodingError, path, firstInvalidLine(data), "", "", err)
	}
	stats.AddWarning("file is not UTF-8; decoded as Windows-1252")
	return string(decoded), nil
}

func firstInvalidLine(data []byte) int {
	for i, line := range bytes.Split(data, []byte("\n")) {
		if !utf8.Valid(line) {
			return i + 1
		}
	}
	return 0
}

// rowRun carries per-file state while rows are normalized
type rowRun struct {
	file   string
	stats  *ParseStats
	errors errors.RowErrors
}

func (bp *BaseParser) newRun(path string) *rowRun {
	return &rowRun{file: path, stats: NewParseStats(bp.config.MaxWarnings)}
}

// date normalizes value; failures become a warning or a row error
func (bp *BaseParser) date(run *rowRun, line int, column, value string) (time.Time, bool) {
	t, defaulted, err := bp.norm.Date(value)
	if err != nil {
		run.errors.Add(errors.InvalidDateRow(run.file, line, column, value))
		return time.Time{}, false
	}
	if defaulted {
		run.stats.DefaultedDates++
		run.stats.AddWarning(fmt.Sprintf("%s:%d: date '%s' not recognized, using today", filepath.Base(run.file), line, value))
	}
	return t, true
}

// amount normalizes value; failures become a warning or a row error
func (bp *BaseParser) amount(run *rowRun, line int, column, value string) (decimal.Decimal, bool) {
	d, defaulted, err := bp.norm.Amount(value)
	if err != nil {
		run.errors.Add(errors.InvalidAmountRow(run.file, line, column, value))
		return decimal.Zero, false
	}
	if defaulted {
		run.stats.DefaultedAmounts++
		run.stats.AddWarning(fmt.Sprintf("%s:%d: amount '%s' not recognized, using 0", filepath.Base(run.file), line, value))
	}
	return d, true
}

// finish converts collected row errors into the batch error
func (run *rowRun) finish() error {
	run.stats.ErrorCount = run.errors.Len()
	return run.errors.Err(run.file)
}

func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CategoryInternal, errors.CodeCancelled, "parsing cancelled")
	default:
		return nil
	}
}

func (bp *BaseParser) result(path string, format models.SourceFormat, txs []models.RawTransaction, run *rowRun) *Result {
	run.stats.RecordsParsed = len(txs)
	bp.logger.WithFields(logger.Fields{
		"file":     filepath.Base(path),
		"format":   format,
		"records":  len(txs),
		"warnings": len(run.stats.Warnings),
	}).Debug("Parsed statement")
	return &Result{File: path, Format: format, Transactions: txs, Stats: run.stats}
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines       int
	RecordsParsed    int
	SkippedLines     int
	DefaultedDates   int
	DefaultedAmounts int
	ErrorCount       int
	Warnings         []string
	maxWarnings      int
	droppedWarnings  int
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(maxWarnings int) *ParseStats {
	return &ParseStats{maxWarnings: maxWarnings}
}

// AddWarning records a warning, dropping it once the cap is reached
func (ps *ParseStats) AddWarning(msg string) {
	if ps.maxWarnings > 0 && len(ps.Warnings) >= ps.maxWarnings {
		ps.droppedWarnings++
		return
	}
	ps.Warnings = append(ps.Warnings, msg)
}

// HasWarnings returns true if any value was defaulted or skipped
func (ps *ParseStats) HasWarnings() bool {
	return len(ps.Warnings) > 0 || ps.droppedWarnings > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records, %d skipped, %d warnings, %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.SkippedLines, len(ps.Warnings)+ps.droppedWarnings, ps.ErrorCount)
}

// GetSampleWarnings returns at most maxSamples warnings
func (ps *ParseStats) GetSampleWarnings(maxSamples int) []string {
	if maxSamples <= 0 || maxSamples >= len(ps.Warnings) {
		return ps.Warnings
	}
	samples := append([]string(nil), ps.Warnings[:maxSamples]...)
	return append(samples, fmt.Sprintf("... and %d more", len(ps.Warnings)-maxSamples+ps.droppedWarnings))
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")
}
