package domain

import "github.com/shopspring/decimal"

// Report is the computed DRE waterfall for a period. It is always derived from
// the period, its entries, the categories and the persisted transactions.
type Report struct {
	PeriodID string `json:"periodId"`

	ReceitaBruta            decimal.Decimal `json:"receitaBruta"`
	DeducoesReceita         decimal.Decimal `json:"deducoesReceita"`
	ReceitaLiquida          decimal.Decimal `json:"receitaLiquida"`
	CustoProdutos           decimal.Decimal `json:"custoProdutos"`
	LucroBruto              decimal.Decimal `json:"lucroBruto"`
	DespesasAdministrativas decimal.Decimal `json:"despesasAdministrativas"`
	DespesasComerciais      decimal.Decimal `json:"despesasComerciais"`
	DespesasGerais          decimal.Decimal `json:"despesasGerais"`
	EBITDA                  decimal.Decimal `json:"ebitda"`
	DepreciacaoAmortizacao  decimal.Decimal `json:"depreciacaoAmortizacao"`
	EBIT                    decimal.Decimal `json:"ebit"`
	ReceitasFinanceiras     decimal.Decimal `json:"receitasFinanceiras"`
	DespesasFinanceiras     decimal.Decimal `json:"despesasFinanceiras"`
	ResultadoFinanceiro     decimal.Decimal `json:"resultadoFinanceiro"`
	LAIR                    decimal.Decimal `json:"lair"`
	ImpostoRenda            decimal.Decimal `json:"impostoRenda"`
	CSLL                    decimal.Decimal `json:"csll"`
	LucroLiquido            decimal.Decimal `json:"lucroLiquido"`

	MargemBruta       float64 `json:"margemBruta"`
	MargemEBITDA      float64 `json:"margemEbitda"`
	MargemOperacional float64 `json:"margemOperacional"`
	MargemLiquida     float64 `json:"margemLiquida"`

	// Lines is the per-category breakdown in category list order.
	Lines []ReportLine `json:"lines"`

	// Ignored counts entries and transactions that referenced unknown categories.
	Ignored int `json:"ignored"`
}

// ReportLine is the total contributed by one category.
type ReportLine struct {
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	Bucket       Bucket          `json:"bucket"`
	Total        decimal.Decimal `json:"total"`
}

// BucketTotal returns the summed magnitude of a bucket.
func (r *Report) BucketTotal(b Bucket) decimal.Decimal {
	switch b {
	case BucketReceitaBruta:
		return r.ReceitaBruta
	case BucketDeducoesReceita:
		return r.DeducoesReceita
	case BucketCustoProdutos:
		return r.CustoProdutos
	case BucketDespesasAdministrativas:
		return r.DespesasAdministrativas
	case BucketDespesasComerciais:
		return r.DespesasComerciais
	case BucketDespesasGerais:
		return r.DespesasGerais
	case BucketDepreciacaoAmortizacao:
		return r.DepreciacaoAmortizacao
	case BucketReceitasFinanceiras:
		return r.ReceitasFinanceiras
	case BucketDespesasFinanceiras:
		return r.DespesasFinanceiras
	case BucketImpostoRenda:
		return r.ImpostoRenda
	case BucketCSLL:
		return r.CSLL
	}
	return decimal.Zero
}
