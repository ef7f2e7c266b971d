// Package catalog provides the YAML-based chart of accounts used for
// classification and statement aggregation.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/transform"
)

//go:embed categories.yaml
var embeddedCategories []byte

// document is the top-level YAML structure
type document struct {
	Categories []domain.Category `yaml:"categories"`
}

// Catalog is an ordered, validated category list. Order is significant: the
// classifier breaks ties by position.
type Catalog struct {
	categories []domain.Category
	index      map[string]int
}

// New validates categories and builds a catalog. Missing ids are derived
// from the name ("Energia Elétrica" → "energia-eletrica"); keywords are
// trimmed and blank ones dropped.
func New(categories []domain.Category) (*Catalog, error) {
	c := &Catalog{
		categories: make([]domain.Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}

	for i, cat := range categories {
		cat.Name = strings.TrimSpace(cat.Name)
		cat.ID = strings.TrimSpace(cat.ID)
		if cat.ID == "" {
			id, err := transform.Slugify(cat.Name)
			if err != nil {
				return nil, fmt.Errorf("category %d: %w", i, err)
			}
			cat.ID = id
		}
		if err := cat.Validate(); err != nil {
			return nil, fmt.Errorf("category %d: %w", i, err)
		}
		if _, dup := c.index[cat.ID]; dup {
			return nil, fmt.Errorf("category %d (%s): duplicate id %q", i, cat.Name, cat.ID)
		}

		keywords := make([]string, 0, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		cat.Keywords = keywords

		c.index[cat.ID] = len(c.categories)
		c.categories = append(c.categories, cat)
	}

	return c, nil
}

// Parse creates a catalog from YAML data
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML categories (check syntax, indentation, and field names): %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("no categories defined")
	}
	return New(doc.Categories)
}

// LoadEmbedded loads the default chart of accounts compiled into the binary
func LoadEmbedded() (*Catalog, error) {
	c, err := Parse(embeddedCategories)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded categories (possible binary corruption): %w", err)
	}
	return c, nil
}

// LoadFromFile loads categories from a filesystem path
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories from %q: %w", path, err)
	}
	return c, nil
}

// Load reads path when set, the embedded default otherwise
func Load(path string) (*Catalog, error) {
	if path == "" {
		return LoadEmbedded()
	}
	return LoadFromFile(path)
}

// Categories returns a copy of the categories in catalog order.
// Keyword slices are copied too, so callers cannot mutate the catalog.
func (c *Catalog) Categories() []domain.Category {
	result := make([]domain.Category, len(c.categories))
	for i, cat := range c.categories {
		cat.Keywords = append([]string(nil), cat.Keywords...)
		result[i] = cat
	}
	return result
}

// Get looks up a category by id
func (c *Catalog) Get(id string) (domain.Category, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Category{}, false
	}
	cat := c.categories[i]
	cat.Keywords = append([]string(nil), cat.Keywords...)
	return cat, true
}

// Len returns the number of categories
func (c *Catalog) Len() int {
	return len(c.categories)
}
