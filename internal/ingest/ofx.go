package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"

	"github.com/finmatch/finmatch/internal/common"
	"github.com/finmatch/finmatch/internal/model"
)

// OFXReader reads a bank ledger from an OFX/QFX statement file. It implements
// service.LedgerReader for the bank side; book ledgers are never distributed
// as OFX.
type OFXReader struct{}

// NewOFXReader creates a new OFX ledger reader.
func NewOFXReader() *OFXReader {
	return &OFXReader{}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes common formatting issues in OFX files: leading blank
// lines, mixed-case SEVERITY values, and SGML-style tags missing their
// closing bracket.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

// Read parses the OFX statement at path into normalized bank records. The
// FITID becomes the external ID, the posted date the record date, and the
// transaction name (falling back to the memo) the concept. Amounts keep the
// sign the bank reported.
func (r *OFXReader) Read(ctx context.Context, path string, side model.LedgerSide) ([]model.Record, error) {
	if side != model.LedgerBank {
		return nil, fmt.Errorf("%w: OFX statements are bank ledgers only", common.ErrUnknownFormat)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrUnreadableFile, path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close statement file", "path", path, "error", closeErr)
		}
	}()

	return r.parse(ctx, file, path)
}

func (r *OFXReader) parse(ctx context.Context, reader io.Reader, path string) ([]model.Record, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file %s: %w", path, err)
	}

	var records []model.Record
	var statements int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		for _, ofxTx := range stmt.BankTranList.Transactions {
			records = append(records, convertOFXTransaction(ofxTx, len(records)))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		for _, ofxTx := range stmt.BankTranList.Transactions {
			records = append(records, convertOFXTransaction(ofxTx, len(records)))
		}
	}

	if statements == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrNoStatementsFound, path)
	}

	common.LogInfo("Parsed OFX statement", common.Fields{
		"path":       path,
		"statements": statements,
		"records":    len(records),
	})

	return records, nil
}

// convertOFXTransaction maps one OFX transaction onto a bank record.
func convertOFXTransaction(ofxTx ofxgo.Transaction, originIndex int) model.Record {
	amount, _ := ofxTx.TrnAmt.Float64()

	concept := strings.TrimSpace(string(ofxTx.Name))
	if concept == "" {
		concept = strings.TrimSpace(string(ofxTx.Memo))
	}

	date := ofxTx.DtPosted.Time
	return model.Record{
		OriginIndex: originIndex,
		ExternalID:  strings.TrimSpace(string(ofxTx.FiTID)),
		Date:        time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Amount:      amount,
		AbsCents:    model.AmountToCents(amount),
		Concept:     concept,
	}
}
