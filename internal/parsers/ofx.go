package parsers

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/spf13/afero"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/normalizer"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

const (
	ofxDefaultDescription = "OFX Import"
	ofxMaxDescription     = 200
)

var (
	ofxStart    = regexp.MustCompile(`(?i)<OFX`)
	ofxBlock    = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	ofxOpenOnly = regexp.MustCompile(`(?i)<STMTTRN>`)
	ofxDate     = regexp.MustCompile(`(?i)<DTPOSTED>\s*([0-9]{8,14})`)
	ofxAmount   = regexp.MustCompile(`(?i)<TRNAMT>\s*([+-]?\d+[.,]?\d*)`)
	ofxName     = regexp.MustCompile(`(?i)<NAME>\s*([^<\r\n]+)`)
	ofxMemo     = regexp.MustCompile(`(?i)<MEMO>\s*([^<\r\n]+)`)
	ofxFITID    = regexp.MustCompile(`(?i)<FITID>\s*([^<\r\n]+)`)
	ofxCurDef   = regexp.MustCompile(`(?i)<CURDEF>\s*([A-Z]{3})`)
)

// OFXParser reads OFX 1.x SGML, OFX 2.x XML and bare SGML fragments
type OFXParser struct {
	*BaseParser
}

// NewOFXParser creates an OFX parser
func NewOFXParser(fs afero.Fs, config *ParseConfig, log logger.Logger) *OFXParser {
	return &OFXParser{BaseParser: NewBaseParser(fs, config, log)}
}

// Format implements Parser
func (p *OFXParser) Format() models.SourceFormat {
	return models.FormatOFX
}

// ofxRow is one transaction before normalization
type ofxRow struct {
	date     time.Time
	rawDate  string
	amount   string
	name     string
	memo     string
	fitid    string
	currency string
}

// Parse implements Parser
func (p *OFXParser) Parse(ctx context.Context, path string) (*Result, error) {
	data, err := p.ReadFile(path)
	if err != nil {
		return nil, err
	}
	run := p.newRun(path)
	text, err := p.DecodeText(path, data, run.stats)
	if err != nil {
		return nil, err
	}
	run.stats.TotalLines = len(splitLines(text))

	rows, err := p.parseStructured(text)
	if err != nil || len(rows) == 0 {
		p.logger.WithFields(logger.Fields{"file": path}).WithError(err).Debug("Structured OFX parse failed, using tag extraction")
		rows = p.parseTags(text)
	}
	if len(rows) == 0 && !ofxOpenOnly.MatchString(text) {
		return nil, errors.ParseError(errors.CodeMalformedOFX, path, 0, "", "", err)
	}

	txs := make([]models.RawTransaction, 0, len(rows))
	for i, row := range rows {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		if tx, ok := p.convert(run, row, i); ok {
			txs = append(txs, tx)
		}
	}

	if err := run.finish(); err != nil {
		return nil, err
	}
	return p.result(path, models.FormatOFX, txs, run), nil
}

// parseStructured reads the payload with ofxgo; it needs the OFX header.
func (p *OFXParser) parseStructured(text string) (rows []ofxRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("ofx parser panic: %v", r)
		}
	}()

	resp, err := ofxgo.ParseResponse(bytes.NewReader([]byte(text)))
	if err != nil {
		return nil, err
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			rows = append(rows, ofxgoRows(stmt.BankTranList, stmt.CurDef.String())...)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			rows = append(rows, ofxgoRows(stmt.BankTranList, stmt.CurDef.String())...)
		}
	}
	return rows, nil
}

func ofxgoRows(list *ofxgo.TransactionList, currency string) []ofxRow {
	rows := make([]ofxRow, 0, len(list.Transactions))
	for _, txn := range list.Transactions {
		rows = append(rows, ofxRow{
			date:     txn.DtPosted.Time,
			amount:   txn.TrnAmt.FloatString(4),
			name:     txn.Name.String(),
			memo:     txn.Memo.String(),
			fitid:    txn.FiTID.String(),
			currency: currency,
		})
	}
	return rows
}

// parseTags extracts STMTTRN blocks with regular expressions. SGML leaves
// element tags unclosed so every field pattern stops at the next tag.
func (p *OFXParser) parseTags(text string) []ofxRow {
	if loc := ofxStart.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}
	currency := firstGroup(ofxCurDef, text)

	var rows []ofxRow
	for _, block := range ofxBlock.FindAllStringSubmatch(text, -1) {
		body := block[1]
		amount := firstGroup(ofxAmount, body)
		if amount == "" {
			continue
		}
		rows = append(rows, ofxRow{
			rawDate:  firstGroup(ofxDate, body),
			amount:   amount,
			name:     firstGroup(ofxName, body),
			memo:     firstGroup(ofxMemo, body),
			fitid:    firstGroup(ofxFITID, body),
			currency: currency,
		})
	}
	return rows
}

func (p *OFXParser) convert(run *rowRun, row ofxRow, index int) (models.RawTransaction, bool) {
	date := row.date
	if date.IsZero() {
		var ok bool
		if date, ok = parseOFXDate(row.rawDate); !ok {
			if date, ok = p.date(run, index+1, "DTPOSTED", row.rawDate); !ok {
				return models.RawTransaction{}, false
			}
		}
	}

	amount, ok := p.amount(run, index+1, "TRNAMT", row.amount)
	if !ok {
		return models.RawTransaction{}, false
	}

	desc := normalizer.CleanDescription(row.name)
	if desc == "" {
		desc = normalizer.CleanDescription(row.memo)
	}
	desc = normalizer.Truncate(desc, ofxMaxDescription)
	if desc == "" {
		desc = ofxDefaultDescription
	}

	currency := strings.ToUpper(strings.TrimSpace(row.currency))
	if len(currency) != 3 || currency == "XXX" {
		currency = p.config.currency()
	}

	fitid := strings.TrimSpace(row.fitid)
	if fitid == "" {
		fitid = GenerateFITID(date.Format("20060102"), index, desc)
	}

	return models.RawTransaction{
		Date:         models.DateOnly(date),
		Description:  desc,
		Amount:       amount.Round(2),
		Currency:     currency,
		SourceFormat: models.FormatOFX,
		FITID:        fitid,
		Reference:    fitid,
		SourceFile:   run.file,
		Line:         index + 1,
	}, true
}

// parseOFXDate reads YYYYMMDD[HHMMSS[.fff]][tz] using the date part only.
func parseOFXDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", s[:8])
	return t, err == nil
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
