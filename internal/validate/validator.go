// Package validate checks import batches and classification results before
// they are committed.
package validate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/dedup"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a batch
type ValidationResult struct {
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Entity  string `json:"entity"` // "batch", "transaction", "result"
	ID      string `json:"id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string `json:"entity"`
	ID      string `json:"id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func newResult() *ValidationResult {
	return &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}
}

func (r *ValidationResult) addError(entity, id, field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Entity: entity, ID: id, Field: field, Value: value, Message: message})
}

func (r *ValidationResult) addWarning(entity, id, field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Entity: entity, ID: id, Field: field, Value: value, Message: message})
}

// OK reports whether no errors were found
func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Err summarizes the errors, or returns nil when there are none
func (r *ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message))
	}
	return fmt.Errorf("%w: %d validation error(s): %s", domain.ErrInvalidInput, len(r.Errors), strings.Join(msgs, "; "))
}

func categoryIndex(categories []domain.Category) map[string]bool {
	if categories == nil {
		return nil
	}
	idx := make(map[string]bool, len(categories))
	for _, c := range categories {
		idx[c.ID] = true
	}
	return idx
}

// ValidateResults checks reviewed classification results before a batch is
// built. Unknown category references are only checked when categories is
// non-nil. Repeated transactions within the statement are reported as
// warnings.
func ValidateResults(results []domain.ClassificationResult, categories []domain.Category) *ValidationResult {
	result := newResult()
	known := categoryIndex(categories)

	for i, r := range results {
		id := fmt.Sprintf("#%d", i+1)
		t := r.Transaction

		if t.Date.IsZero() {
			result.addError("result", id, "Date", "", "transaction date cannot be zero")
		}
		if strings.TrimSpace(t.Description) == "" {
			result.addError("result", id, "Description", "", "description cannot be empty")
		}
		if t.Value.IsNegative() {
			result.addError("result", id, "Value", t.Value.String(), "value must be non-negative")
		}
		if !domain.ValidateKind(t.Kind) {
			result.addError("result", id, "Kind", string(t.Kind), "invalid kind")
		}

		if r.Confidence < 0 || r.Confidence > 1 {
			result.addError("result", id, "Confidence", fmt.Sprintf("%g", r.Confidence), "confidence must be in [0,1]")
		}
		if (r.Confidence == 0) != (r.SuggestedCategoryID == "") {
			result.addError("result", id, "Confidence", fmt.Sprintf("%g", r.Confidence),
				"confidence must be 0 exactly when there is no suggested category")
		}
		if r.SuggestedCategoryID != "" && known != nil && !known[r.SuggestedCategoryID] {
			result.addError("result", id, "SuggestedCategoryID", r.SuggestedCategoryID,
				fmt.Sprintf("references non-existent category: %s", r.SuggestedCategoryID))
		}
		if t.Value.IsZero() {
			result.addWarning("result", id, "Value", "0", "zero-value transaction")
		}
	}

	txns := make([]domain.ParsedTransaction, len(results))
	for i, r := range results {
		txns[i] = r.Transaction
	}
	for _, g := range dedup.FindDuplicates(txns) {
		rows := make([]string, len(g.Indexes))
		for i, idx := range g.Indexes {
			rows[i] = fmt.Sprintf("#%d", idx+1)
		}
		result.addWarning("result", rows[0], "Fingerprint", g.Fingerprint[:12],
			fmt.Sprintf("same date, value and description appear %d times (%s)", len(g.Indexes), strings.Join(rows, ", ")))
	}

	return result
}

// ValidateBatch checks a batch summary against the transactions it
// describes: counts and totals must match exactly, every transaction must
// satisfy its own invariants and belong to the batch.
func ValidateBatch(b domain.ImportBatch, txns []domain.PersistedTransaction, categories []domain.Category) *ValidationResult {
	result := newResult()
	known := categoryIndex(categories)

	if b.ID == "" {
		result.addError("batch", b.ID, "ID", "", "batch ID cannot be empty")
	}
	if strings.TrimSpace(b.FileName) == "" {
		result.addError("batch", b.ID, "FileName", "", "file name cannot be empty")
	}
	if !domain.ValidateFormat(b.Format) {
		result.addError("batch", b.ID, "Format", string(b.Format), "invalid format")
	}
	source, sourceErr := domain.ImportSource(b.Format)

	var (
		classified    int
		income        = decimal.Zero
		expense       = decimal.Zero
		transactionID = make(map[string]bool, len(txns))
	)

	for _, txn := range txns {
		if err := txn.Validate(); err != nil {
			result.addError("transaction", txn.ID, "", "", err.Error())
		}
		if txn.BatchID != b.ID {
			result.addError("transaction", txn.ID, "BatchID", txn.BatchID, fmt.Sprintf("does not belong to batch %s", b.ID))
		}
		if sourceErr == nil && txn.Source != source {
			result.addError("transaction", txn.ID, "Source", string(txn.Source), fmt.Sprintf("expected %s for a %s import", source, b.Format))
		}
		if txn.CategoryID != "" && known != nil && !known[txn.CategoryID] {
			result.addError("transaction", txn.ID, "CategoryID", txn.CategoryID,
				fmt.Sprintf("references non-existent category: %s", txn.CategoryID))
		}

		if txn.ID != "" {
			if transactionID[txn.ID] {
				result.addError("transaction", txn.ID, "ID", txn.ID, "duplicate transaction ID")
			}
			transactionID[txn.ID] = true
		}

		if txn.IsClassified {
			classified++
		}
		switch txn.Kind {
		case domain.KindIncome:
			income = income.Add(txn.Value)
		case domain.KindExpense:
			expense = expense.Add(txn.Value)
		}
	}

	if b.TotalCount != len(txns) {
		result.addError("batch", b.ID, "TotalCount", fmt.Sprint(b.TotalCount), fmt.Sprintf("batch has %d transactions", len(txns)))
	}
	if b.ClassifiedCount != classified {
		result.addError("batch", b.ID, "ClassifiedCount", fmt.Sprint(b.ClassifiedCount), fmt.Sprintf("batch has %d classified transactions", classified))
	}
	if b.UnclassifiedCount != len(txns)-classified {
		result.addError("batch", b.ID, "UnclassifiedCount", fmt.Sprint(b.UnclassifiedCount), fmt.Sprintf("batch has %d unclassified transactions", len(txns)-classified))
	}
	if !b.TotalIncome.Equal(income) {
		result.addError("batch", b.ID, "TotalIncome", b.TotalIncome.String(), fmt.Sprintf("transactions sum to %s", income))
	}
	if !b.TotalExpense.Equal(expense) {
		result.addError("batch", b.ID, "TotalExpense", b.TotalExpense.String(), fmt.Sprintf("transactions sum to %s", expense))
	}

	if len(txns) > 0 && classified == 0 {
		result.addWarning("batch", b.ID, "ClassifiedCount", "0", "no transaction in the batch is classified")
	}

	return result
}
