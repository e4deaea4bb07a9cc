package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// RenderFunc writes one report with the given generator.
type RenderFunc func(rg *ReportGenerator, w io.Writer) error

// SafeReportGenerator wraps ReportGenerator with format and output fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	fs     afero.Fs
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, fs afero.Fs, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		fs:              fs,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// Render produces a report into w. The report is built in memory first so a
// failing format never leaves half a document behind; if a non-console
// format fails the console rendering is written instead.
func (srg *SafeReportGenerator) Render(name string, w io.Writer, render RenderFunc) error {
	if w == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	log := srg.logger.WithFields(logger.Fields{
		"report": name,
		"format": srg.config.Format,
		"output": getWriterDescription(w),
	})
	log.Debug("Generating report")

	var buf bytes.Buffer
	err := render(srg.ReportGenerator, &buf)
	if err != nil {
		if srg.config.Format == FormatConsole {
			return srg.wrapGenerationError(err)
		}
		log.WithError(err).Warn("Report format failed, falling back to console")

		buf.Reset()
		fallback := *srg.config
		fallback.Format = FormatConsole
		fallback.UseColors = false
		fbGen := &ReportGenerator{config: &fallback}

		fmt.Fprintf(&buf, "NOTE: %s format failed (%v); showing console output\n\n", srg.config.Format, err)
		if fbErr := render(fbGen, &buf); fbErr != nil {
			return errors.InternalError(
				errors.CodeUnexpectedError,
				"report_format_fallback",
				fmt.Errorf("both %s and console output failed: primary=%v, fallback=%v", srg.config.Format, err, fbErr),
			)
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return srg.wrapGenerationError(err)
	}
	return nil
}

// WriteFile renders a report to path. When path cannot be created the
// report goes to a "_backup" sibling instead and the returned path says where.
func (srg *SafeReportGenerator) WriteFile(name, path string, render RenderFunc) (string, error) {
	f, err := srg.fs.Create(path)
	if err != nil {
		if !isFileError(err) {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}
		backup := srg.generateBackupPath(path)
		srg.logger.WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backup,
		}).Warn("Could not create report file, using backup location")

		f, err = srg.fs.Create(backup)
		if err != nil {
			return "", errors.FileError(errors.CodeFilePermission, path, err).
				WithContext("backup_path", backup)
		}
		path = backup
	}
	defer f.Close()

	if err := srg.Render(name, f, render); err != nil {
		return path, err
	}
	return path, nil
}

// isFileError checks if the error is one a different path could avoid
func isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		os.IsExist(err) ||
		isSpaceError(err)
}

// generateBackupPath creates a backup file path
func (srg *SafeReportGenerator) generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	if ok, _ := afero.DirExists(srg.fs, dir); !ok {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	case afero.File:
		return fmt.Sprintf("file:%s", w.Name())
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
