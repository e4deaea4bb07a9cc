package parsers

import (
	"bytes"
	"path/filepath"
	"strings"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/pkg/errors"
)

var extensionFormats = map[string]models.SourceFormat{
	".csv": models.FormatCSV,
	".txt": models.FormatCSV,
	".ofx": models.FormatOFX,
	".qfx": models.FormatOFX,
	".pdf": models.FormatPDF,
}

// Detect selects a format from the file extension.
func Detect(path string) (models.SourceFormat, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if format, ok := extensionFormats[ext]; ok {
		return format, nil
	}
	return "", errors.UnsupportedFormatError(path, ext)
}

// DetectContent prefers magic bytes in head and falls back to Detect.
func DetectContent(path string, head []byte) (models.SourceFormat, error) {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("%PDF-")) {
		return models.FormatPDF, nil
	}
	upper := bytes.ToUpper(trimmed)
	if bytes.HasPrefix(upper, []byte("OFXHEADER")) || bytes.Contains(upper, []byte("<OFX")) {
		return models.FormatOFX, nil
	}
	return Detect(path)
}

// Supported reports whether path has an importable extension
func Supported(path string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}
