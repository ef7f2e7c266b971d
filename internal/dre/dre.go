// Package dre computes the income statement waterfall (Demonstração do
// Resultado do Exercício) for a period.
package dre

import (
	"context"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Calculate builds the report for a period from its manual entries and the
// persisted transactions. Only settled, classified transactions dated within
// the period count (cash regime). Entries of other periods are skipped;
// entries and transactions pointing at unknown categories are counted in
// Report.Ignored. Inputs are never modified.
func Calculate(period domain.Period, entries []domain.ManualEntry, categories []domain.Category, txns []domain.PersistedTransaction) domain.Report {
	index := make(map[string]int, len(categories))
	for i, cat := range categories {
		if _, dup := index[cat.ID]; !dup {
			index[cat.ID] = i
		}
	}

	perCategory := make([]decimal.Decimal, len(categories))
	report := domain.Report{PeriodID: period.ID}

	add := func(categoryID string, value decimal.Decimal) {
		i, ok := index[categoryID]
		if !ok {
			report.Ignored++
			return
		}
		perCategory[i] = perCategory[i].Add(value.Abs())
	}

	for _, e := range entries {
		if e.PeriodID != period.ID {
			continue
		}
		add(e.CategoryID, e.Value)
	}

	for i := range txns {
		t := &txns[i]
		if !t.IsSettled() || !t.IsClassified || !period.Contains(t.Date) {
			continue
		}
		add(t.CategoryID, t.Value)
	}

	buckets := make(map[domain.Bucket]decimal.Decimal, len(domain.Buckets))
	report.Lines = make([]domain.ReportLine, len(categories))
	for i, cat := range categories {
		report.Lines[i] = domain.ReportLine{
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Bucket:       cat.Bucket,
			Total:        perCategory[i],
		}
		buckets[cat.Bucket] = buckets[cat.Bucket].Add(perCategory[i])
	}

	cascade(&report, buckets)
	return report
}

// cascade fills the waterfall from bucket totals. A missing bucket is zero.
func cascade(r *domain.Report, b map[domain.Bucket]decimal.Decimal) {
	r.ReceitaBruta = b[domain.BucketReceitaBruta]
	r.DeducoesReceita = b[domain.BucketDeducoesReceita]
	r.CustoProdutos = b[domain.BucketCustoProdutos]
	r.DespesasAdministrativas = b[domain.BucketDespesasAdministrativas]
	r.DespesasComerciais = b[domain.BucketDespesasComerciais]
	r.DespesasGerais = b[domain.BucketDespesasGerais]
	r.DepreciacaoAmortizacao = b[domain.BucketDepreciacaoAmortizacao]
	r.ReceitasFinanceiras = b[domain.BucketReceitasFinanceiras]
	r.DespesasFinanceiras = b[domain.BucketDespesasFinanceiras]
	r.ImpostoRenda = b[domain.BucketImpostoRenda]
	r.CSLL = b[domain.BucketCSLL]

	r.ReceitaLiquida = r.ReceitaBruta.Sub(r.DeducoesReceita)
	r.LucroBruto = r.ReceitaLiquida.Sub(r.CustoProdutos)
	r.EBITDA = r.LucroBruto.Sub(r.DespesasAdministrativas.Add(r.DespesasComerciais).Add(r.DespesasGerais))
	r.EBIT = r.EBITDA.Sub(r.DepreciacaoAmortizacao)
	r.ResultadoFinanceiro = r.ReceitasFinanceiras.Sub(r.DespesasFinanceiras)
	r.LAIR = r.EBIT.Add(r.ResultadoFinanceiro)
	r.LucroLiquido = r.LAIR.Sub(r.ImpostoRenda.Add(r.CSLL))

	r.MargemBruta = Margin(r.LucroBruto, r.ReceitaLiquida)
	r.MargemEBITDA = Margin(r.EBITDA, r.ReceitaLiquida)
	r.MargemOperacional = Margin(r.EBIT, r.ReceitaLiquida)
	r.MargemLiquida = Margin(r.LucroLiquido, r.ReceitaLiquida)
}

// Margin returns value as a percentage of base rounded to two decimals, or
// exactly 0 when base is zero.
func Margin(value, base decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	pct, _ := value.Div(base).Mul(hundred).Round(2).Float64()
	return pct
}

// Trend calculates one report per period concurrently, in period order.
// entriesByPeriod is keyed by period id.
func Trend(ctx context.Context, periods []domain.Period, entriesByPeriod map[string][]domain.ManualEntry, categories []domain.Category, txns []domain.PersistedTransaction) ([]domain.Report, error) {
	reports := make([]domain.Report, len(periods))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range periods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = Calculate(periods[i], entriesByPeriod[periods[i].ID], categories, txns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
