// Package ofx provides OFX/QFX statement parsing for finreport
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
)

// Parser implements OFX/QFX parsing with a stateless design.
// Safe for concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared OFX parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Format returns the format this parser handles
func (p *Parser) Format() domain.Format {
	return domain.FormatOFX
}

// CanParse checks if this parser can handle the file based on extension and header
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	// Both v1 SGML and v2 XML headers
	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts transactions from every bank and credit card statement in
// the file, plus cash movements of investment statements.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content%s: %w", parser.FileInfo(meta), err)
	}

	// ofxgo.ParseResponse does not take a context
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file%s (%d bytes): %w", parser.FileInfo(meta), len(content), err)
	}

	lists := collectTransactions(response)
	if len(lists) == 0 {
		return nil, fmt.Errorf("%w%s: no bank or credit card statement found (creditcard: %d, bank: %d, investment: %d)",
			domain.ErrEmptyStatement, parser.FileInfo(meta), len(response.CreditCard), len(response.Bank), len(response.InvStmt))
	}

	log := logger.FromContext(ctx)
	result := parser.NewResult(domain.FormatOFX)
	row := 0
	for _, txns := range lists {
		for _, txn := range txns {
			row++
			parsed, err := extractTransaction(txn)
			if err != nil {
				log.Debug().Err(err).Int("row", row).Str("fitid", txn.FiTID.String()).Msg("skipping OFX transaction")
				result.Skip(row, err)
				continue
			}
			result.Add(parsed)
		}
	}

	return result.Finish(meta)
}

// collectTransactions gathers transaction lists in file order: credit card,
// bank, then investment cash movements.
func collectTransactions(resp *ofxgo.Response) [][]ofxgo.Transaction {
	var lists [][]ofxgo.Transaction

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList.Transactions)
		}
	}
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList.Transactions)
		}
	}
	for _, msg := range resp.InvStmt {
		stmt, ok := msg.(*ofxgo.InvStatementResponse)
		if !ok || stmt.InvTranList == nil {
			continue
		}
		// Security trades (BuyStock, SellStock, ...) are not cash movements
		for _, bank := range stmt.InvTranList.BankTransactions {
			lists = append(lists, bank.Transactions)
		}
	}
	return lists
}

// isOutflow reports transaction types that always take money out, even when
// the institution sends a positive TRNAMT.
// ofxgo does not export its trnType, so t is taken as any; the switch still
// compares by dynamic type and value.
func isOutflow(t any) bool {
	switch t {
	case ofxgo.TrnTypeDebit, ofxgo.TrnTypePayment, ofxgo.TrnTypeFee,
		ofxgo.TrnTypeSrvChg, ofxgo.TrnTypeATM, ofxgo.TrnTypePOS,
		ofxgo.TrnTypeCheck, ofxgo.TrnTypeDirectDebit, ofxgo.TrnTypeRepeatPmt:
		return true
	}
	return false
}

// extractTransaction converts one STMTTRN into the canonical record
func extractTransaction(txn ofxgo.Transaction) (domain.ParsedTransaction, error) {
	date := txn.DtPosted.Time
	if date.IsZero() && txn.DtUser != nil {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return domain.ParsedTransaction{}, fmt.Errorf("transaction %s missing both posted date and user date", txn.FiTID)
	}

	description := parser.NormalizeDescription(txn.Name.String())
	if description == "" && txn.Payee != nil {
		description = parser.NormalizeDescription(txn.Payee.Name.String())
	}
	if description == "" {
		description = parser.NormalizeDescription(txn.Memo.String())
	}
	if description == "" {
		return domain.ParsedTransaction{}, fmt.Errorf("transaction %s missing both name and memo fields", txn.FiTID)
	}

	amount, err := decimal.NewFromString(txn.TrnAmt.FloatString(2))
	if err != nil {
		return domain.ParsedTransaction{}, fmt.Errorf("transaction %s: invalid amount %s: %w", txn.FiTID, txn.TrnAmt.String(), err)
	}
	if isOutflow(txn.TrnType) {
		amount = amount.Abs().Neg()
	}

	parsed, err := domain.NewParsedTransaction(date, description, amount, parser.KindFor(amount), documentNumber(txn), rawLine(txn))
	if err != nil {
		return domain.ParsedTransaction{}, fmt.Errorf("transaction %s: %w", txn.FiTID, err)
	}
	return *parsed, nil
}

// documentNumber prefers CHECKNUM, then REFNUM, then the institution's FITID.
func documentNumber(txn ofxgo.Transaction) string {
	for _, s := range []ofxgo.String{txn.CheckNum, txn.RefNum, txn.FiTID} {
		if v := strings.TrimSpace(s.String()); v != "" {
			return v
		}
	}
	return ""
}

// rawLine renders the fields a reviewer needs to locate the source record
func rawLine(txn ofxgo.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<TRNTYPE>%s<DTPOSTED>%s<TRNAMT>%s", txn.TrnType, txn.DtPosted.Format("20060102"), txn.TrnAmt.String())
	if id := txn.FiTID.String(); id != "" {
		fmt.Fprintf(&b, "<FITID>%s", id)
	}
	if name := txn.Name.String(); name != "" {
		fmt.Fprintf(&b, "<NAME>%s", name)
	}
	if memo := txn.Memo.String(); memo != "" {
		fmt.Fprintf(&b, "<MEMO>%s", memo)
	}
	return b.String()
}
