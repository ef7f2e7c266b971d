package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/transform"
)

// ErrNotTransaction marks rows that are well formed but carry no movement,
// such as opening/closing balance lines. Parsers record them as skipped rows
// like any other row they drop.
var ErrNotTransaction = errors.New("not a transaction row")

const absent = -1

// Columns maps tabular cells to transaction fields. Unused fields are -1.
type Columns struct {
	Date        int
	Description int
	Amount      int
	Debit       int
	Credit      int
	Document    int
	Marker      int // D/C or "tipo" column
}

// DefaultColumns is the headerless layout: date, description, value[, document].
func DefaultColumns(width int) Columns {
	c := Columns{Date: 0, Description: 1, Amount: 2, Debit: absent, Credit: absent, Document: absent, Marker: absent}
	if width > 3 {
		c.Document = 3
	}
	return c
}

// headerRule assigns a header cell to a field when the folded cell contains
// one of the hints. Rules are checked in order, so "valor debito" is a debit
// column and "data lancamento" is a date column.
type headerRule struct {
	field string
	hints []string
}

var headerRules = []headerRule{
	{"skip", []string{"saldo", "balance"}},
	{"debit", []string{"debito", "debit", "saida", "withdrawal"}},
	{"credit", []string{"credito", "credit", "entrada", "deposit"}},
	{"date", []string{"data", "date", "dt"}},
	{"marker", []string{"d/c", "c/d", "tipo", "type"}},
	{"description", []string{"descricao", "historico", "description", "lancamento", "memo", "detalhe", "payee"}},
	{"amount", []string{"valor", "amount", "montante", "value", "quantia"}},
	{"document", []string{"documento", "doc", "numero", "number", "ref", "cheque", "check"}},
}

// DetectColumns recognizes a header row. It returns false when the cells do
// not name at least a date, a description and an amount (or debit/credit
// pair) column.
func DetectColumns(cells []string) (Columns, bool) {
	c := Columns{Date: absent, Description: absent, Amount: absent, Debit: absent, Credit: absent, Document: absent, Marker: absent}

	for i, cell := range cells {
		folded := transform.Fold(cell)
		if folded == "" {
			continue
		}
		if _, err := ParseDate(folded); err == nil {
			return c, false
		}
		if _, err := ParseAmount(folded); err == nil {
			return c, false
		}
		for _, rule := range headerRules {
			if !containsAny(folded, rule.hints) {
				continue
			}
			slot := c.slot(rule.field)
			if slot != nil && *slot == absent {
				*slot = i
			}
			break
		}
	}

	hasValue := c.Amount != absent || c.Debit != absent || c.Credit != absent
	if c.Date == absent || c.Description == absent || !hasValue {
		return c, false
	}
	return c, true
}

func (c *Columns) slot(field string) *int {
	switch field {
	case "date":
		return &c.Date
	case "description":
		return &c.Description
	case "amount":
		return &c.Amount
	case "debit":
		return &c.Debit
	case "credit":
		return &c.Credit
	case "document":
		return &c.Document
	case "marker":
		return &c.Marker
	}
	return nil
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// DateFunc parses one date cell.
type DateFunc func(string) (time.Time, error)

// Transaction converts one row of cells. Rows whose description marks a
// balance line return ErrNotTransaction.
func (c Columns) Transaction(cells []string, parseDate DateFunc, raw string) (domain.ParsedTransaction, error) {
	if parseDate == nil {
		parseDate = ParseDate
	}

	description := NormalizeDescription(cell(cells, c.Description))
	if isBalanceLine(description) {
		return domain.ParsedTransaction{}, fmt.Errorf("%w: balance line %q", ErrNotTransaction, description)
	}

	dateCell := cell(cells, c.Date)
	date, err := parseDate(dateCell)
	if err != nil {
		return domain.ParsedTransaction{}, err
	}
	if description == "" {
		return domain.ParsedTransaction{}, fmt.Errorf("description cannot be empty")
	}

	value, err := c.amount(cells)
	if err != nil {
		return domain.ParsedTransaction{}, err
	}

	txn, err := domain.NewParsedTransaction(date, description, value, KindFor(value), cell(cells, c.Document), raw)
	if err != nil {
		return domain.ParsedTransaction{}, err
	}
	return *txn, nil
}

// amount reads the signed value from either the amount column or the
// debit/credit pair, then applies a D/C marker column when present.
func (c Columns) amount(cells []string) (decimal.Decimal, error) {
	var value decimal.Decimal

	debit, credit := cell(cells, c.Debit), cell(cells, c.Credit)

	switch {
	case cell(cells, c.Amount) != "":
		v, err := ParseAmount(cell(cells, c.Amount))
		if err != nil {
			return decimal.Zero, err
		}
		value = v
	case debit != "" || credit != "":
		// Some banks fill both columns with 0,00 on the unused side.
		for _, side := range []struct {
			text string
			sign int32
		}{{debit, -1}, {credit, 1}} {
			if side.text == "" {
				continue
			}
			v, err := ParseAmount(side.text)
			if err != nil {
				return decimal.Zero, err
			}
			value = value.Add(v.Abs().Mul(decimal.NewFromInt32(side.sign)))
		}
	default:
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	switch marker := strings.ToUpper(cell(cells, c.Marker)); {
	case marker == "D" || strings.HasPrefix(marker, "DEB"):
		value = value.Abs().Neg()
	case marker == "C" || strings.HasPrefix(marker, "CRED"):
		value = value.Abs()
	}
	return value, nil
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// balanceLabels are whole descriptions banks use for balance rows. A payee
// that merely starts with one of these words ("Total Distribuidora") is a
// transaction.
var balanceLabels = map[string]bool{
	"saldo":             true,
	"saldo anterior":    true,
	"saldo do dia":      true,
	"saldo inicial":     true,
	"saldo final":       true,
	"saldo atual":       true,
	"saldo disponivel":  true,
	"saldo em conta":    true,
	"saldo total":       true,
	"total":             true,
	"total geral":       true,
	"balance":           true,
	"opening balance":   true,
	"closing balance":   true,
	"available balance": true,
	"ledger balance":    true,
}

// isBalanceLine matches a balance label, optionally followed by numeric
// tokens such as a date ("Saldo anterior 28/02").
func isBalanceLine(description string) bool {
	tokens := transform.Tokens(description)
	for len(tokens) > 0 && isNumeric(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return balanceLabels[strings.Join(tokens, " ")]
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
