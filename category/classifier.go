/*
classifier.go - ordered-rule record classification with caching

PURPOSE:
  Maps a record to at most one leaf category. Matching is by supplier code
  first; suppliers that span several brand-distinguished leaves fall
  through to an ordered, case-insensitive, accent-stripped substring test
  against the description. First match wins; no match classifies to none
  (not an error).

CACHING:
  Classification is independent of the seller/city/branch filters, but the
  sale-type selection decides which records are eligible at all, so results
  are cached keyed by the canonical sale-type selection. Each view owns its
  own Cache (no process-global state).
*/
package category

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/warp/sales-engine/columnar"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// None marks a record that matched no leaf rule.
const None ID = ""

// Rule is one classification step: supplier equality plus an optional
// folded-substring keyword test.
type Rule struct {
	Priority int
	Supplier string
	Keywords []string // empty = supplier match alone is enough
	Category ID
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules []Rule
}

// NewClassifier derives the rule list from a catalog, in catalog order.
func NewClassifier(c *Catalog) *Classifier {
	var rules []Rule
	for i, def := range c.Leaves() {
		var folded []string
		for _, kw := range def.Keywords {
			folded = append(folded, Fold(kw))
		}
		rules = append(rules, Rule{
			Priority: i,
			Supplier: def.Supplier,
			Keywords: folded,
			Category: def.ID,
		})
	}
	return &Classifier{rules: rules}
}

// Rules exposes the evaluation order for inspection and tests.
func (cl *Classifier) Rules() []Rule {
	return cl.rules
}

// Classify returns the leaf category for a record, or None.
func (cl *Classifier) Classify(rec *columnar.SalesRecord) ID {
	var desc string
	folded := false
	for _, rule := range cl.rules {
		if rec.SupplierCode != rule.Supplier {
			continue
		}
		if len(rule.Keywords) == 0 {
			return rule.Category
		}
		if !folded {
			desc = Fold(rec.Description)
			folded = true
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.Category
			}
		}
	}
	return None
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold upper-cases and strips combining accents so "NÃO" matches "NAO".
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(out)
}

// Cache memoizes per-record classifications keyed by the sale-type
// selection. Lookups race between the caller preparing a new computation
// and the runner goroutine finishing a stale one, so the entry map is
// mutex-guarded.
type Cache struct {
	classifier *Classifier

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	categories   []ID
	unclassified int
}

// NewCache creates an empty classification cache over a classifier.
func NewCache(cl *Classifier) *Cache {
	return &Cache{classifier: cl, entries: make(map[string]cacheEntry)}
}

// SaleTypeKey canonicalizes a sale-type selection into a cache key. An
// empty selection means the revenue default.
func SaleTypeKey(saleTypes []string) string {
	if len(saleTypes) == 0 {
		return "1,9"
	}
	sorted := append([]string(nil), saleTypes...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Classifications returns, for every record offset in the store, its leaf
// category under the given sale-type selection (None for records excluded
// by sale type or matching no rule). Computed once per selection.
func (c *Cache) Classifications(store *columnar.Store, saleTypes []string) []ID {
	cats, _ := c.classifications(store, saleTypes)
	return cats
}

// Unclassified returns the diagnostic count of sale-type-eligible records
// that matched no rule despite their supplier being in the catalog.
func (c *Cache) Unclassified(store *columnar.Store, saleTypes []string) int {
	_, n := c.classifications(store, saleTypes)
	return n
}

func (c *Cache) classifications(store *columnar.Store, saleTypes []string) ([]ID, int) {
	key := SaleTypeKey(saleTypes)
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		return entry.categories, entry.unclassified
	}

	include := make(map[string]bool, len(saleTypes))
	for _, t := range saleTypes {
		include[t] = true
	}
	if len(include) == 0 {
		include = columnar.RevenueSaleTypes
	}

	suppliers := make(map[string]bool)
	for _, rule := range c.classifier.rules {
		suppliers[rule.Supplier] = true
	}

	cats := make([]ID, len(store.Records))
	unclassified := 0
	for i := range store.Records {
		rec := &store.Records[i]
		if !include[rec.SaleType] {
			cats[i] = None
			continue
		}
		cats[i] = c.classifier.Classify(rec)
		if cats[i] == None && suppliers[rec.SupplierCode] {
			unclassified++
		}
	}

	c.entries[key] = cacheEntry{categories: cats, unclassified: unclassified}
	return cats, unclassified
}
