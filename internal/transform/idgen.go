package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

// TransactionID creates a deterministic transaction ID from the batch, the
// position in the batch and the transaction fingerprint.
// Format: "txn-{20 hex chars}"
// Re-committing the same reviewed batch produces the same IDs.
func TransactionID(batchID string, index int, fingerprint string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", batchID, index, fingerprint)))
	return "txn-" + hex.EncodeToString(hash[:])[:20]
}

// PeriodID creates a deterministic period ID from its granularity and start.
// Examples: monthly 2026-03-01 → "2026-03", quarterly 2026-04-01 → "2026-q2",
// annual 2026-01-01 → "2026"
func PeriodID(granularity domain.Granularity, start time.Time) (string, error) {
	switch granularity {
	case domain.GranularityMonthly:
		return fmt.Sprintf("%04d-%02d", start.Year(), start.Month()), nil
	case domain.GranularityQuarterly:
		return fmt.Sprintf("%04d-q%d", start.Year(), (int(start.Month())-1)/3+1), nil
	case domain.GranularityAnnual:
		return fmt.Sprintf("%04d", start.Year()), nil
	}
	return "", fmt.Errorf("%w: granularity %q", domain.ErrInvalidInput, granularity)
}

// PeriodEnd returns the inclusive last day of the period starting at start.
// Example: quarterly 2026-01-01 → 2026-03-31
func PeriodEnd(granularity domain.Granularity, start time.Time) (time.Time, error) {
	start = domain.CivilDate(start)
	switch granularity {
	case domain.GranularityMonthly:
		return start.AddDate(0, 1, -1), nil
	case domain.GranularityQuarterly:
		return start.AddDate(0, 3, -1), nil
	case domain.GranularityAnnual:
		return start.AddDate(1, 0, -1), nil
	}
	return time.Time{}, fmt.Errorf("%w: granularity %q", domain.ErrInvalidInput, granularity)
}
