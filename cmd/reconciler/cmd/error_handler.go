package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer) *CLIErrorHandler {
	if out == nil {
		out = os.Stderr
	}
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	// Multi-file imports combine one error per failed file.
	if errs := multierr.Errors(err); len(errs) > 1 {
		return h.handleMultiple(errs)
	}

	// Handle ReconcilerError with detailed information
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	// Handle other error types
	return h.handleGenericError(err)
}

// handleMultiple reports each error briefly; the exit code is the highest.
func (h *CLIErrorHandler) handleMultiple(errs []error) int {
	fmt.Fprintf(h.out, "%d operations failed:\n", len(errs))
	var known []*errors.ReconcilerError
	for i, err := range errs {
		fmt.Fprintf(h.out, "  %d. %v\n", i+1, err)
		if rerr, ok := errors.AsReconcilerError(err); ok {
			known = append(known, rerr)
			if rerr.Suggestion != "" {
				fmt.Fprintf(h.out, "     Suggestion: %s\n", rerr.Suggestion)
			}
		}
	}

	summary := errors.NewErrorSummary(known)
	if summary.Total == 0 {
		return 1
	}
	h.logger.WithField("by_category", summary.ByCategory).Debug(summary.Error())
	return summary.GetExitCode()
}

// handleReconcilerError handles ReconcilerError with detailed context
func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	// Print the main error message
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	// Context keys sorted so output is stable; stacks only in verbose mode.
	keys := make([]string, 0, len(err.Context))
	for key := range err.Context {
		if key == "stack" && !h.verbose {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	// Add suggestion if available
	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	// Add category-specific help
	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	// Show underlying error in verbose mode
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-ReconcilerError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	// Check for common system errors and provide better messages
	if isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// Cobra usage errors: unknown flags, wrong argument counts.
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")
	return 1
}

// getCategoryHelp returns category-specific help text
func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure you have proper permissions to access the file`

	case errors.CategoryUnsupported:
		return `Unsupported format help:
• Statements can be imported from CSV, OFX, QFX or PDF files
• Export the statement from online banking in one of those formats
• Scanned PDFs need parse.ocr.enabled and an OCR command`

	case errors.CategoryParse:
		return `Parse error help:
• Check the statement has a header row with date, description and amount columns
• Use --policy lenient to import what can be read and see warnings for the rest
• Pass --date-order dmy or mdy when dates are ambiguous
• Re-download the statement if the file looks truncated`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Dates may be YYYY-MM-DD, DD/MM/YYYY or YYYYMMDD
• Amounts may use either '.' or ',' as the decimal separator`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Check NEXLEDGER_* environment variables and the .env file
• Select a company with --company or --db`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Run 'reconciler lines list' and 'reconciler ledger list' to check current state
• Matched lines and reconciled entries must be undone before they can change
• Run 'reconciler undo list' to see what can be reversed`

	case errors.CategoryDatabase:
		return `Database error help:
• Another reconciler process may be using this company; try again shortly
• Run 'reconciler migrate' to check the schema version
• Check the database file is on a writable disk`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler <command> --help' for command-specific help
• Re-run with --verbose for the underlying error`
	}
}

// Error detection helpers

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
