package parsers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"github.com/spf13/afero"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/normalizer"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

const pdfDefaultDescription = "PDF Import"

// FilePlaceholder in OCR arguments is replaced by the PDF path.
const FilePlaceholder = "{file}"

var (
	pdfDateAnchor = regexp.MustCompile(`\d{2}[/-]\d{2}[/-]\d{2,4}|\d{4}[/-]\d{2}[/-]\d{2}|\d{8}`)
	pdfAmount     = regexp.MustCompile(`[+-]?\d{1,3}(?:[.,\s]\d{3})*(?:[.,]\d{2})-?`)
)

// TextExtractor pulls the text layer out of a PDF
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// OCR recognizes text in image-only PDFs
type OCR interface {
	Recognize(ctx context.Context, data []byte) (string, error)
}

// PlainTextExtractor reads the text layer with dslipak/pdf.
type PlainTextExtractor struct{}

// ExtractText implements TextExtractor
func (PlainTextExtractor) ExtractText(_ context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExecOCR runs an external OCR command that prints recognized text on stdout.
type ExecOCR struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Recognize implements OCR
func (o ExecOCR) Recognize(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "nexledger-ocr-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	args := make([]string, len(o.Args))
	for i, a := range o.Args {
		args[i] = strings.ReplaceAll(a, FilePlaceholder, tmp.Name())
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", o.Command, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// PDFParser groups PDF text lines into transactions. The layout heuristic
// is order-sensitive and best-effort.
type PDFParser struct {
	*BaseParser
	extractor TextExtractor
	ocr       OCR
}

// NewPDFParser creates a PDF parser. The OCR fallback is only wired when
// enabled in the configuration.
func NewPDFParser(fs afero.Fs, config *ParseConfig, log logger.Logger) *PDFParser {
	p := &PDFParser{
		BaseParser: NewBaseParser(fs, config, log),
		extractor:  PlainTextExtractor{},
	}
	if p.config.OCR.Enabled {
		p.ocr = ExecOCR{Command: p.config.OCR.Command, Args: p.config.OCR.Args, Timeout: p.config.OCR.Timeout}
	}
	return p
}

// WithExtractor replaces the text extractor
func (p *PDFParser) WithExtractor(e TextExtractor) *PDFParser {
	p.extractor = e
	return p
}

// WithOCR replaces the OCR fallback; nil disables it
func (p *PDFParser) WithOCR(o OCR) *PDFParser {
	p.ocr = o
	return p
}

// Format implements Parser
func (p *PDFParser) Format() models.SourceFormat {
	return models.FormatPDF
}

// Parse implements Parser
func (p *PDFParser) Parse(ctx context.Context, path string) (*Result, error) {
	data, err := p.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text, err := p.extractor.ExtractText(ctx, data)
	if err != nil {
		p.logger.WithError(err).WithField("file", path).Warn("PDF text extraction failed")
	}
	if strings.TrimSpace(text) == "" && p.ocr != nil {
		p.logger.WithField("file", path).Info("No text layer found, running OCR")
		text, err = p.ocr.Recognize(ctx, data)
		if err != nil {
			p.logger.WithError(err).WithField("file", path).Warn("OCR failed")
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.ParseError(errors.CodeNoTextExtracted, path, 0, "", "", err)
	}

	run := p.newRun(path)
	txs, err := p.parseText(ctx, run, text)
	if err != nil {
		return nil, err
	}
	if err := run.finish(); err != nil {
		return nil, err
	}
	return p.result(path, models.FormatPDF, txs, run), nil
}

type pdfBlock struct {
	line    int
	rawDate string
	desc    []string
	amount  string
}

// parseText scans for a date anchor and closes each block at the first
// amount, either on the date line itself or on a following line.
func (p *PDFParser) parseText(ctx context.Context, run *rowRun, text string) ([]models.RawTransaction, error) {
	type numbered struct {
		n    int
		text string
	}
	var lines []numbered
	for i, l := range splitLines(text) {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, numbered{i + 1, t})
		}
	}
	run.stats.TotalLines = len(lines)

	var blocks []pdfBlock
	for i := 0; i < len(lines); i++ {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		line := lines[i].text
		loc := pdfDateAnchor.FindStringIndex(line)
		if loc == nil {
			run.stats.SkippedLines++
			continue
		}

		block := pdfBlock{line: lines[i].n, rawDate: line[loc[0]:loc[1]]}
		block.desc = append(block.desc, line[:loc[0]])
		rest := line[loc[1]:]
		if m := pdfAmount.FindStringIndex(rest); m != nil {
			block.desc = append(block.desc, rest[:m[0]])
			block.amount = rest[m[0]:m[1]]
			blocks = append(blocks, block)
			continue
		}
		block.desc = append(block.desc, rest)

		j := i + 1
		for ; j < len(lines); j++ {
			next := lines[j].text
			if pdfDateAnchor.MatchString(next) {
				break
			}
			if m := pdfAmount.FindStringIndex(next); m != nil {
				block.desc = append(block.desc, next[:m[0]])
				block.amount = next[m[0]:m[1]]
				j++
				break
			}
			block.desc = append(block.desc, next)
		}
		i = j - 1
		blocks = append(blocks, block)
	}

	txs := make([]models.RawTransaction, 0, len(blocks))
	for idx, b := range blocks {
		if tx, ok := p.convert(run, b, idx); ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (p *PDFParser) convert(run *rowRun, b pdfBlock, index int) (models.RawTransaction, bool) {
	date, okDate := p.date(run, b.line, "date", b.rawDate)
	amount, okAmount := p.amount(run, b.line, "amount", strings.TrimSpace(b.amount))
	if !okDate || !okAmount {
		return models.RawTransaction{}, false
	}

	desc := normalizer.CleanDescription(strings.Join(b.desc, " "))
	if desc == "" {
		desc = pdfDefaultDescription
	}
	return models.RawTransaction{
		Date:         date,
		Description:  desc,
		Amount:       amount,
		Currency:     p.config.currency(),
		SourceFormat: models.FormatPDF,
		FITID:        GenerateFITID(b.rawDate, index, desc),
		SourceFile:   run.file,
		Line:         b.line,
	}, true
}
