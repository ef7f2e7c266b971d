package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Kind is the direction of a transaction. Sign is carried only here, never in a value.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Status is the settlement status of a persisted transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusReceived  Status = "received"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Format is one of the supported statement file encodings.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatOFX  Format = "ofx"
	FormatQIF  Format = "qif"
	FormatXLSX Format = "xlsx"
)

// Source tags where a persisted transaction came from.
type Source string

const (
	SourceManual     Source = "manual"
	SourceImportCSV  Source = "import_csv"
	SourceImportOFX  Source = "import_ofx"
	SourceImportQIF  Source = "import_qif"
	SourceImportXLSX Source = "import_xlsx"
)

// Bucket is a fixed line of the DRE waterfall that categories roll up into.
type Bucket string

const (
	BucketReceitaBruta            Bucket = "receita_bruta"
	BucketDeducoesReceita         Bucket = "deducoes_receita"
	BucketCustoProdutos           Bucket = "custo_produtos"
	BucketDespesasAdministrativas Bucket = "despesas_administrativas"
	BucketDespesasComerciais      Bucket = "despesas_comerciais"
	BucketDespesasGerais          Bucket = "despesas_gerais"
	BucketDepreciacaoAmortizacao  Bucket = "depreciacao_amortizacao"
	BucketReceitasFinanceiras     Bucket = "receitas_financeiras"
	BucketDespesasFinanceiras     Bucket = "despesas_financeiras"
	BucketImpostoRenda            Bucket = "imposto_renda"
	BucketCSLL                    Bucket = "csll"
)

// Buckets lists every bucket in waterfall order.
var Buckets = []Bucket{
	BucketReceitaBruta,
	BucketDeducoesReceita,
	BucketCustoProdutos,
	BucketDespesasAdministrativas,
	BucketDespesasComerciais,
	BucketDespesasGerais,
	BucketDepreciacaoAmortizacao,
	BucketReceitasFinanceiras,
	BucketDespesasFinanceiras,
	BucketImpostoRenda,
	BucketCSLL,
}

var (
	validKinds = map[Kind]struct{}{
		KindIncome: {}, KindExpense: {},
	}

	validStatuses = map[Status]struct{}{
		StatusPending: {}, StatusPaid: {}, StatusReceived: {},
		StatusOverdue: {}, StatusCancelled: {},
	}

	validFormats = map[Format]struct{}{
		FormatCSV: {}, FormatOFX: {}, FormatQIF: {}, FormatXLSX: {},
	}

	validSources = map[Source]struct{}{
		SourceManual: {}, SourceImportCSV: {}, SourceImportOFX: {},
		SourceImportQIF: {}, SourceImportXLSX: {},
	}

	validBuckets = func() map[Bucket]struct{} {
		m := make(map[Bucket]struct{}, len(Buckets))
		for _, b := range Buckets {
			m[b] = struct{}{}
		}
		return m
	}()
)

// ValidateKind checks if kind is valid
func ValidateKind(k Kind) bool {
	_, ok := validKinds[k]
	return ok
}

// ValidateStatus checks if status is valid
func ValidateStatus(s Status) bool {
	_, ok := validStatuses[s]
	return ok
}

// ValidateFormat checks if format is valid
func ValidateFormat(f Format) bool {
	_, ok := validFormats[f]
	return ok
}

// ValidateSource checks if source is valid
func ValidateSource(s Source) bool {
	_, ok := validSources[s]
	return ok
}

// ValidateBucket checks if bucket is valid
func ValidateBucket(b Bucket) bool {
	_, ok := validBuckets[b]
	return ok
}

// IsIncomeSide reports whether the bucket is fed by money coming in.
func (b Bucket) IsIncomeSide() bool {
	return b == BucketReceitaBruta || b == BucketReceitasFinanceiras
}

// ImportSource maps a file format to its import source tag.
func ImportSource(f Format) (Source, error) {
	switch f {
	case FormatCSV:
		return SourceImportCSV, nil
	case FormatOFX:
		return SourceImportOFX, nil
	case FormatQIF:
		return SourceImportQIF, nil
	case FormatXLSX:
		return SourceImportXLSX, nil
	default:
		return "", fmt.Errorf("%w: no import source for format %q", ErrInvalidInput, f)
	}
}

// ParsedTransaction is the canonical record every parser produces.
// Value is always a non-negative magnitude; direction lives in Kind.
type ParsedTransaction struct {
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	Value          decimal.Decimal `json:"value"`
	Kind           Kind            `json:"kind"`
	DocumentNumber string          `json:"documentNumber,omitempty"`
	RawLine        string          `json:"rawLine"`
}

// NewParsedTransaction creates a validated parsed transaction. A negative value
// is folded into the kind, so callers may pass signed amounts.
func NewParsedTransaction(date time.Time, description string, value decimal.Decimal, kind Kind, documentNumber, rawLine string) (*ParsedTransaction, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("transaction date cannot be zero")
	}
	if description == "" {
		return nil, fmt.Errorf("description cannot be empty")
	}
	if !ValidateKind(kind) {
		return nil, fmt.Errorf("invalid kind: %s", kind)
	}
	if value.IsNegative() {
		value = value.Neg()
		kind = KindExpense
	}

	return &ParsedTransaction{
		Date:           CivilDate(date),
		Description:    description,
		Value:          value,
		Kind:           kind,
		DocumentNumber: strings.TrimSpace(documentNumber),
		RawLine:        rawLine,
	}, nil
}

// Category is reference data: a chart-of-accounts line mapped to a bucket.
type Category struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Bucket   Bucket   `json:"bucket" yaml:"bucket"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`
}

// Validate checks category invariants
func (c *Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("category ID cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("category %s: name cannot be empty", c.ID)
	}
	if !ValidateBucket(c.Bucket) {
		return fmt.Errorf("category %s: invalid bucket %q", c.ID, c.Bucket)
	}
	return nil
}

// ClassificationResult pairs a parsed transaction with the classifier's suggestion.
// Confidence is 0 exactly when SuggestedCategoryID is empty.
type ClassificationResult struct {
	Transaction         ParsedTransaction `json:"transaction"`
	SuggestedCategoryID string            `json:"suggestedCategoryId,omitempty"`
	Confidence          float64           `json:"confidence"`
}

// IsClassified reports whether a category has been assigned.
func (r *ClassificationResult) IsClassified() bool {
	return r.SuggestedCategoryID != ""
}

// Override replaces the suggestion with a reviewer's choice. An empty id clears it.
func (r *ClassificationResult) Override(categoryID string) {
	r.SuggestedCategoryID = categoryID
	if categoryID == "" {
		r.Confidence = 0
		return
	}
	r.Confidence = 1
}

// BatchStatus records whether every transaction of a batch was persisted.
type BatchStatus string

const (
	BatchStatusCommitted BatchStatus = "committed"
	BatchStatusPartial   BatchStatus = "partial"
)

// ImportBatch summarizes one import pass over one file. Derived, never hand-edited.
type ImportBatch struct {
	ID                string          `json:"id"`
	FileName          string          `json:"fileName"`
	Format            Format          `json:"format"`
	TotalCount        int             `json:"totalCount"`
	ClassifiedCount   int             `json:"classifiedCount"`
	UnclassifiedCount int             `json:"unclassifiedCount"`
	TotalIncome       decimal.Decimal `json:"totalIncome"`
	TotalExpense      decimal.Decimal `json:"totalExpense"`
	Status            BatchStatus     `json:"status"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// PersistedTransaction is the durable shape written through the storage collaborator.
// IsClassified holds exactly when CategoryID is set.
type PersistedTransaction struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	Source         Source          `json:"source"`
	Description    string          `json:"description"`
	Value          decimal.Decimal `json:"value"`
	Date           time.Time       `json:"date"`
	DueDate        time.Time       `json:"dueDate"`
	PaidDate       *time.Time      `json:"paidDate,omitempty"`
	CategoryID     string          `json:"categoryId,omitempty"`
	DocumentNumber string          `json:"documentNumber,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	IsClassified   bool            `json:"isClassified"`
	BatchID        string          `json:"batchId,omitempty"`
}

// Validate checks persisted transaction invariants
func (t *PersistedTransaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if !ValidateKind(t.Kind) {
		return fmt.Errorf("transaction %s: invalid kind %q", t.ID, t.Kind)
	}
	if !ValidateStatus(t.Status) {
		return fmt.Errorf("transaction %s: invalid status %q", t.ID, t.Status)
	}
	if !ValidateSource(t.Source) {
		return fmt.Errorf("transaction %s: invalid source %q", t.ID, t.Source)
	}
	if t.Value.IsNegative() {
		return fmt.Errorf("transaction %s: value must be non-negative, got %s", t.ID, t.Value)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %s: date is required", t.ID)
	}
	if t.IsClassified != (t.CategoryID != "") {
		return fmt.Errorf("transaction %s: isClassified=%t inconsistent with category %q", t.ID, t.IsClassified, t.CategoryID)
	}
	return nil
}

// IsSettled reports whether the transaction counts under the cash regime.
func (t *PersistedTransaction) IsSettled() bool {
	return t.Status == StatusPaid || t.Status == StatusReceived
}

// CivilDate drops the time component, keeping the calendar day as written.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
