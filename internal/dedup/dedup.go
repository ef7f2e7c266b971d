// Package dedup finds repeated transactions within one statement via SHA256
// fingerprinting. Matching across batches is deliberately not done: each
// import is reviewed on its own.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/transform"
)

// Fingerprint creates a SHA256 hash of date, kind, value and description.
// Format: SHA256("{date}|{kind}|{value}|{foldedDescription}")
// Value is formatted with 2 decimal places; the description is folded
// (case, accents and whitespace).
func Fingerprint(t domain.ParsedTransaction) string {
	input := fmt.Sprintf("%s|%s|%s|%s",
		t.Date.Format(domain.DateLayout),
		t.Kind,
		t.Value.StringFixed(2),
		transform.Fold(t.Description),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// Group is a set of transactions sharing one fingerprint
type Group struct {
	Fingerprint string `json:"fingerprint"`
	// Indexes into the input slice, ascending
	Indexes []int `json:"indexes"`
}

// FindDuplicates returns every fingerprint seen more than once, ordered by
// first occurrence.
func FindDuplicates(txns []domain.ParsedTransaction) []Group {
	indexes := make(map[string][]int, len(txns))
	var order []string

	for i, t := range txns {
		fp := Fingerprint(t)
		if _, ok := indexes[fp]; !ok {
			order = append(order, fp)
		}
		indexes[fp] = append(indexes[fp], i)
	}

	var groups []Group
	for _, fp := range order {
		if len(indexes[fp]) > 1 {
			groups = append(groups, Group{Fingerprint: fp, Indexes: indexes[fp]})
		}
	}
	return groups
}
