package parsers

import (
	"fmt"
	"strings"
	"time"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/normalizer"
)

// ParseConfig holds configuration shared by the statement parsers
type ParseConfig struct {
	Policy          normalizer.Policy    `json:"policy" mapstructure:"policy"`
	DateOrder       normalizer.DateOrder `json:"date_order" mapstructure:"date_order"`
	DefaultCurrency string               `json:"default_currency" mapstructure:"default_currency"`
	// Delimiter overrides CSV dialect sniffing when non-zero.
	Delimiter rune `json:"delimiter" mapstructure:"delimiter"`
	// SniffContent lets magic bytes override the file extension.
	SniffContent bool `json:"sniff_content" mapstructure:"sniff_content"`
	// HeaderScanLines bounds the search for the CSV header row.
	HeaderScanLines int       `json:"header_scan_lines" mapstructure:"header_scan_lines"`
	MaxWarnings     int       `json:"max_warnings" mapstructure:"max_warnings"`
	OCR             OCRConfig `json:"ocr" mapstructure:"ocr"`
}

// OCRConfig gates the external OCR fallback for image-only PDFs.
type OCRConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args" mapstructure:"args"`
	// Timeout bounds one OCR run; zero leaves only the caller's deadline.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Policy:          normalizer.PolicyLenient,
		DateOrder:       normalizer.DateOrderAuto,
		DefaultCurrency: models.DefaultCurrency,
		HeaderScanLines: 20,
		MaxWarnings:     100,
		OCR: OCRConfig{
			Command: "ocrmypdf",
			Args:    []string{"--force-ocr", "--sidecar", "-", FilePlaceholder, "/dev/null"},
			Timeout: 2 * time.Minute,
		},
	}
}

// Validate checks if the parse configuration is valid
func (c *ParseConfig) Validate() error {
	if _, err := normalizer.ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	if _, err := normalizer.ParseDateOrder(string(c.DateOrder)); err != nil {
		return err
	}
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return fmt.Errorf("default currency must be a 3-letter code, got %q", c.DefaultCurrency)
	}
	switch c.Delimiter {
	case 0, ',', ';', '\t', '|':
	default:
		return fmt.Errorf("unsupported delimiter %q", c.Delimiter)
	}
	if c.HeaderScanLines < 0 {
		return fmt.Errorf("header scan lines cannot be negative")
	}
	if c.OCR.Enabled && strings.TrimSpace(c.OCR.Command) == "" {
		return fmt.Errorf("ocr command is required when OCR is enabled")
	}
	if c.OCR.Timeout < 0 {
		return fmt.Errorf("ocr timeout cannot be negative")
	}
	return nil
}

// Normalizer builds the normalizer for this configuration
func (c *ParseConfig) Normalizer() *normalizer.Normalizer {
	return normalizer.New(c.Policy, c.DateOrder)
}

func (c *ParseConfig) currency() string {
	if cur := strings.ToUpper(strings.TrimSpace(c.DefaultCurrency)); cur != "" {
		return cur
	}
	return models.DefaultCurrency
}

func (c *ParseConfig) headerScanLines() int {
	if c.HeaderScanLines <= 0 {
		return 20
	}
	return c.HeaderScanLines
}
