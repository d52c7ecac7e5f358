package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/sales-engine/category"
	"github.com/warp/sales-engine/goals"
)

// MixBaskets names the product families a seller must cover to score mix
// points. Matching is by folded substring over the product description.
type MixBaskets struct {
	Salty []string
	Foods []string
}

// DefaultMixBaskets returns the stock portfolio baskets. Deployments with
// a different portfolio swap these on the session.
func DefaultMixBaskets() MixBaskets {
	return MixBaskets{
		Salty: []string{"RUFFLES", "DORITOS", "CHEETOS", "FANDANGOS", "TORCIDA"},
		Foods: []string{"TODDYNHO", "TODDY", "QUAKER", "KEROCOCO"},
	}
}

func (st *computeState) basketFor(id category.ID) []string {
	switch id {
	case category.MixSalty:
		return st.s.Baskets.Salty
	case category.MixFoods:
		return st.s.Baskets.Foods
	}
	return nil
}

// mixAverages scores one seller's historical mix coverage: per month, the
// number of basket families with real revenue, averaged over the seller's
// last three active months. A seller with no active months scores zero.
func (st *computeState) mixAverages(sellerID string) map[category.ID]decimal.Decimal {
	out := make(map[category.ID]decimal.Decimal, 2)

	type monthCover struct {
		active bool
		hits   map[category.ID]map[string]bool
	}
	months := make(map[string]*monthCover)
	monthRevenue := make(map[string]map[string]decimal.Decimal) // month -> folded desc -> revenue

	for _, idx := range st.s.Store.BySeller[sellerID] {
		rec := &st.s.Store.Records[idx]
		if !rec.IsRevenue() {
			continue
		}
		mk := rec.MonthKey()
		if mk == "" {
			continue
		}
		if monthRevenue[mk] == nil {
			monthRevenue[mk] = make(map[string]decimal.Decimal)
		}
		desc := category.Fold(rec.Description)
		monthRevenue[mk][desc] = monthRevenue[mk][desc].Add(rec.Revenue)
	}

	quotas := []category.ID{category.MixSalty, category.MixFoods}
	for mk, byDesc := range monthRevenue {
		mc := &monthCover{hits: make(map[category.ID]map[string]bool)}
		for _, q := range quotas {
			mc.hits[q] = make(map[string]bool)
		}
		for desc, rev := range byDesc {
			if !goals.IsActive(rev) {
				continue
			}
			mc.active = true
			for _, q := range quotas {
				for _, family := range st.basketFor(q) {
					if containsFold(desc, family) {
						mc.hits[q][family] = true
					}
				}
			}
		}
		months[mk] = mc
	}

	var activeKeys []string
	for mk, mc := range months {
		if mc.active {
			activeKeys = append(activeKeys, mk)
		}
	}
	if len(activeKeys) == 0 {
		for _, q := range quotas {
			out[q] = decimal.Zero
		}
		return out
	}
	sort.Sort(sort.Reverse(sort.StringSlice(activeKeys)))
	if len(activeKeys) > goals.QuarterlyDivisor {
		activeKeys = activeKeys[:goals.QuarterlyDivisor]
	}

	n := decimal.NewFromInt(int64(len(activeKeys)))
	for _, q := range quotas {
		sum := decimal.Zero
		for _, mk := range activeKeys {
			sum = sum.Add(decimal.NewFromInt(int64(len(months[mk].hits[q]))))
		}
		out[q] = sum.Div(n)
	}
	return out
}

func containsFold(haystack, needle string) bool {
	// Both sides arrive pre-folded; plain substring test.
	return needle != "" && strings.Contains(haystack, needle)
}
