// Package ui prints CLI progress and results in color.
package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/pipeline"
)

const lineWidth = 60

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
)

// Printer writes console output to w
type Printer struct {
	w io.Writer
}

// New creates a printer on w
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Header prints a formatted header
func (p *Printer) Header(text string) {
	line := strings.Repeat("=", lineWidth)
	green.Fprintf(p.w, "\n%s\n", line)
	green.Fprintf(p.w, "%s\n", center(text, lineWidth))
	green.Fprintf(p.w, "%s\n\n", line)
}

// Step prints a step indicator
func (p *Printer) Step(stepNum, totalSteps int, text string) {
	yellow.Fprintf(p.w, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success message
func (p *Printer) Success(text string) {
	green.Fprintf(p.w, "  → %s\n", text)
}

// Info prints an info message
func (p *Printer) Info(text string) {
	fmt.Fprintf(p.w, "  → %s\n", text)
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	yellow.Fprintf(p.w, "  ⚠ %s\n", text)
}

// Error prints an error message
func (p *Printer) Error(text string) {
	red.Fprintf(p.w, "Error: %s\n", text)
}

// Preview prints the classified transactions of one file
func (p *Printer) Preview(pv *pipeline.Preview, names map[string]string) {
	p.Header(fmt.Sprintf("%s (%s)", pv.FileName, pv.Format))

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Data\tDescrição\tValor\tCategoria\tConfiança\t")
	for _, r := range pv.Results {
		t := r.Transaction
		value := Money(t.Value)
		if t.Kind == domain.KindExpense {
			value = "-" + value
		}
		category, confidence := "—", ""
		if r.IsClassified() {
			category = r.SuggestedCategoryID
			if name, ok := names[category]; ok {
				category = name
			}
			confidence = fmt.Sprintf("%.0f%%", r.Confidence*100)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			t.Date.Format("02/01/2006"), truncate(t.Description, 40), value, category, confidence)
	}
	tw.Flush()

	fmt.Fprintln(p.w)
	p.Info(fmt.Sprintf("%d transações, %d classificadas", len(pv.Results), pv.Classified()))
	for _, s := range pv.Skipped {
		p.Warning(fmt.Sprintf("linha %d ignorada: %s", s.Row, s.Reason))
	}
	for _, w := range pv.Warnings {
		p.Warning(w.Message)
	}
}

type reportLine struct {
	sign   string
	label  string
	value  decimal.Decimal
	margin *float64
}

// Report prints the DRE waterfall of one period
func (p *Printer) Report(period domain.Period, r domain.Report) {
	p.Header(fmt.Sprintf("DRE %s (%s a %s)", period.Name,
		period.Start.Format("02/01/2006"), period.End.Format("02/01/2006")))

	lines := []reportLine{
		{"(+)", "Receita Bruta", r.ReceitaBruta, nil},
		{"(-)", "Deduções da Receita", r.DeducoesReceita, nil},
		{"(=)", "Receita Líquida", r.ReceitaLiquida, nil},
		{"(-)", "Custo dos Produtos", r.CustoProdutos, nil},
		{"(=)", "Lucro Bruto", r.LucroBruto, &r.MargemBruta},
		{"(-)", "Despesas Administrativas", r.DespesasAdministrativas, nil},
		{"(-)", "Despesas Comerciais", r.DespesasComerciais, nil},
		{"(-)", "Despesas Gerais", r.DespesasGerais, nil},
		{"(=)", "EBITDA", r.EBITDA, &r.MargemEBITDA},
		{"(-)", "Depreciação e Amortização", r.DepreciacaoAmortizacao, nil},
		{"(=)", "EBIT", r.EBIT, &r.MargemOperacional},
		{"(+)", "Receitas Financeiras", r.ReceitasFinanceiras, nil},
		{"(-)", "Despesas Financeiras", r.DespesasFinanceiras, nil},
		{"(=)", "Resultado Financeiro", r.ResultadoFinanceiro, nil},
		{"(=)", "LAIR", r.LAIR, nil},
		{"(-)", "IRPJ", r.ImpostoRenda, nil},
		{"(-)", "CSLL", r.CSLL, nil},
		{"(=)", "Lucro Líquido", r.LucroLiquido, &r.MargemLiquida},
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, l := range lines {
		margin := ""
		if l.margin != nil {
			margin = fmt.Sprintf("%.2f%%", *l.margin)
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t\n", l.sign, l.label, Money(l.value), margin)
	}
	tw.Flush()

	if r.Ignored > 0 {
		fmt.Fprintln(p.w)
		p.Warning(fmt.Sprintf("%d lançamentos com categoria desconhecida fora do relatório", r.Ignored))
	}
}

// Money formats an amount the Brazilian way: "R$ 1.234,56"
func Money(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "R$ " + b.String() + "," + frac
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// center centers text within a given width
func center(text string, width int) string {
	n := utf8.RuneCountInString(text)
	if n >= width {
		return text
	}
	padding := (width - n) / 2
	return strings.Repeat(" ", padding) + text
}
