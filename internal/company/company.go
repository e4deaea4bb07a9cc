// Package company resolves the company a command operates on.
package company

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"nexledger-reconciler/internal/models"
	pkgerrors "nexledger-reconciler/pkg/errors"
)

// DatabaseFile is the name of the per-company database inside its directory
const DatabaseFile = "nexledger.db"

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Context identifies one company and where its books live.
// It is passed explicitly; there is no process-wide current company.
type Context struct {
	ID       string
	Name     string
	DBPath   string
	Currency string
}

// Options controls how a Context is resolved
type Options struct {
	// DataDir holds one directory per company
	DataDir string
	// Name is the company name as typed by the user
	Name string
	// DBPath overrides the derived database path
	DBPath string
	// Currency defaults to ZAR
	Currency string
}

// SanitizeName makes a company name safe to use as a directory name
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = spaces.ReplaceAllString(name, " ")
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

// Resolve builds the Context for opts
func Resolve(opts Options) (Context, error) {
	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if len(currency) != 3 {
		return Context{}, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "company.currency", opts.Currency,
			fmt.Errorf("currency must be a 3-letter ISO code"))
	}

	id := SanitizeName(opts.Name)
	if opts.DBPath != "" {
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(opts.DBPath), filepath.Ext(opts.DBPath))
		}
		return Context{ID: id, Name: displayName(opts.Name, id), DBPath: opts.DBPath, Currency: currency}, nil
	}

	if id == "" {
		return Context{}, pkgerrors.ConfigurationError(pkgerrors.CodeMissingConfig, "company", "",
			fmt.Errorf("no company selected")).
			WithSuggestion("Pass --company NAME or set NEXLEDGER_COMPANY")
	}
	if opts.DataDir == "" {
		return Context{}, pkgerrors.ConfigurationError(pkgerrors.CodeMissingConfig, "data_dir", "",
			fmt.Errorf("data directory is not configured"))
	}

	return Context{
		ID:       id,
		Name:     displayName(opts.Name, id),
		DBPath:   filepath.Join(opts.DataDir, id, DatabaseFile),
		Currency: currency,
	}, nil
}

func displayName(name, id string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return id
}

// List returns the companies with a directory under dataDir, sorted by name
func List(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, pkgerrors.FileError(pkgerrors.CodeDirectoryError, dataDir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// String returns a string representation of the Context
func (c Context) String() string {
	return fmt.Sprintf("Company{ID: %s, DB: %s, Currency: %s}", c.ID, c.DBPath, c.Currency)
}
