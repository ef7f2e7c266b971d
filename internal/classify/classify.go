// Package classify suggests an accounting category for each parsed
// transaction by scoring category keywords and previously assigned
// descriptions.
//
// Scoring, for a transaction description D and category C:
//
//   - every keyword of C that occurs in D (after folding accents, case and
//     whitespace) adds its word count, plus 0.5 when it matches on word
//     boundaries;
//   - every history entry whose folded description equals D and that was
//     assigned to C adds HistoryWeight.
//
// Every category is scored regardless of the transaction's kind. The highest
// positive score at or above MinScore wins. Ties go to the category with more
// history matches, then to one whose bucket side matches the kind (income-side
// buckets for income), then to the one listed first.
package classify

import (
	"math"
	"strings"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/transform"
)

const (
	DefaultHistoryWeight = 3.0
	DefaultMinScore      = 1.0

	// boundaryBonus is added when a keyword matches whole words
	boundaryBonus = 0.5
	// confidenceScale is the score at which confidence reaches 0.5
	confidenceScale = 2.0
)

// Entry is one remembered description → category assignment
type Entry struct {
	Description string `json:"description"`
	CategoryID  string `json:"categoryId"`
}

// History is the ordered memory of past assignments
type History []Entry

// HistoryFrom collects the classified transactions of a store as history
func HistoryFrom(txns []domain.PersistedTransaction) History {
	h := make(History, 0, len(txns))
	for _, t := range txns {
		if t.IsClassified {
			h = append(h, Entry{Description: t.Description, CategoryID: t.CategoryID})
		}
	}
	return h
}

// Option configures a Classifier
type Option func(*Classifier)

// WithHistoryWeight sets the boost per matching history entry
func WithHistoryWeight(w float64) Option {
	return func(c *Classifier) { c.historyWeight = w }
}

// WithMinScore sets the acceptance threshold. A zero score never wins,
// whatever the threshold.
func WithMinScore(s float64) Option {
	return func(c *Classifier) { c.minScore = s }
}

// Classifier holds scoring weights. It has no mutable state and is safe for
// concurrent use.
type Classifier struct {
	historyWeight float64
	minScore      float64
}

// NewClassifier creates a classifier with default weights overridden by opts
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		historyWeight: DefaultHistoryWeight,
		minScore:      DefaultMinScore,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultClassifier = NewClassifier()

// Classify runs the default classifier
func Classify(txns []domain.ParsedTransaction, history History, categories []domain.Category) []domain.ClassificationResult {
	return defaultClassifier.Classify(txns, history, categories)
}

// Candidate is one category's score for a transaction
type Candidate struct {
	CategoryID   string  `json:"categoryId"`
	Score        float64 `json:"score"`
	KeywordScore float64 `json:"keywordScore"`
	HistoryCount int     `json:"historyCount"`
	KindMatch    bool    `json:"kindMatch"`
}

type keyword struct {
	folded string
	padded string // " tok tok " for word-boundary checks
	words  int
}

type compiledCategory struct {
	id       string
	income   bool
	keywords []keyword
}

// model is the per-call precomputation of categories and history
type model struct {
	categories []compiledCategory
	history    map[string]map[string]int
}

func compile(history History, categories []domain.Category) *model {
	m := &model{
		categories: make([]compiledCategory, len(categories)),
		history:    make(map[string]map[string]int),
	}

	for i, cat := range categories {
		cc := compiledCategory{id: cat.ID, income: cat.Bucket.IsIncomeSide()}
		seen := make(map[string]bool, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			words := transform.Tokens(kw)
			if len(words) == 0 {
				continue
			}
			folded := transform.Fold(kw)
			if seen[folded] {
				continue
			}
			seen[folded] = true
			cc.keywords = append(cc.keywords, keyword{
				folded: folded,
				padded: " " + strings.Join(words, " ") + " ",
				words:  len(words),
			})
		}
		m.categories[i] = cc
	}

	for _, e := range history {
		if e.CategoryID == "" {
			continue
		}
		desc := transform.Fold(e.Description)
		if desc == "" {
			continue
		}
		byCategory, ok := m.history[desc]
		if !ok {
			byCategory = make(map[string]int)
			m.history[desc] = byCategory
		}
		byCategory[e.CategoryID]++
	}

	return m
}

func (c *Classifier) candidates(m *model, txn domain.ParsedTransaction) []Candidate {
	desc := transform.Fold(txn.Description)
	padded := " " + strings.Join(transform.Tokens(txn.Description), " ") + " "
	remembered := m.history[desc]

	out := make([]Candidate, len(m.categories))
	for i, cat := range m.categories {
		var kwScore float64
		for _, kw := range cat.keywords {
			if !strings.Contains(desc, kw.folded) {
				continue
			}
			kwScore += float64(kw.words)
			if strings.Contains(padded, kw.padded) {
				kwScore += boundaryBonus
			}
		}

		count := remembered[cat.id]
		kindMatch := txn.Kind == "" || cat.income == (txn.Kind == domain.KindIncome)

		out[i] = Candidate{
			CategoryID:   cat.id,
			Score:        kwScore + c.historyWeight*float64(count),
			KeywordScore: kwScore,
			HistoryCount: count,
			KindMatch:    kindMatch,
		}
	}
	return out
}

func (c *Classifier) pick(cands []Candidate) (Candidate, bool) {
	best := -1
	for i, cand := range cands {
		if cand.Score <= 0 || cand.Score < c.minScore {
			continue
		}
		if best < 0 || outranks(cand, cands[best]) {
			best = i
		}
	}
	if best < 0 {
		return Candidate{}, false
	}
	return cands[best], true
}

// outranks reports whether a beats b; equal candidates keep list order
func outranks(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.HistoryCount != b.HistoryCount {
		return a.HistoryCount > b.HistoryCount
	}
	return a.KindMatch && !b.KindMatch
}

// Classify returns one result per transaction, in input order. Inputs are
// not modified and equal inputs always produce equal results.
func (c *Classifier) Classify(txns []domain.ParsedTransaction, history History, categories []domain.Category) []domain.ClassificationResult {
	m := compile(history, categories)

	results := make([]domain.ClassificationResult, len(txns))
	for i, txn := range txns {
		results[i] = domain.ClassificationResult{Transaction: txn}
		if winner, ok := c.pick(c.candidates(m, txn)); ok {
			results[i].SuggestedCategoryID = winner.CategoryID
			results[i].Confidence = Confidence(winner.Score)
		}
	}
	return results
}

// Explain returns every category's score for one transaction, in category
// order, so a reviewer can see why a suggestion was (not) made.
func (c *Classifier) Explain(txn domain.ParsedTransaction, history History, categories []domain.Category) []Candidate {
	return c.candidates(compile(history, categories), txn)
}

// Confidence maps a positive score into (0, 1), rounded to two decimals
func Confidence(score float64) float64 {
	if score <= 0 {
		return 0
	}
	conf := math.Round(score/(score+confidenceScale)*100) / 100
	return math.Min(math.Max(conf, 0.01), 0.99)
}
