/*
Package aggregate computes per-entity sales metrics under ad-hoc filters
and rolls them up through the client -> seller -> supervisor -> global
hierarchy.

CONSISTENCY MODEL:
  Parents are SUMS of their children for every currency/weight metric,
  never independent recomputations. The single declared exception is
  positivation on aggregate categories, which is a distinct-client count
  over the combined member revenue (summing component counts would
  double-count clients active in several components).

CACHING:
  Classification is cached per sale-type selection (category.Cache).
  Filter rollups are recomputed from scratch every invocation: filter
  combinations are too numerous to memoize profitably, and recomputation
  is what rules out stale-cache bugs. Intentional trade, keep it.

SESSION:
  All mutable state (classification cache, scheduler generation) lives in
  a Session owned by the calling view, so independent views never
  cross-contaminate each other's caches or tokens.
*/
package aggregate

import (
	"github.com/rs/zerolog"
	"github.com/warp/sales-engine/category"
	"github.com/warp/sales-engine/columnar"
	"github.com/warp/sales-engine/goals"
	"github.com/warp/sales-engine/schedule"
)

// Session is the per-view computation context.
type Session struct {
	Store   *columnar.Store
	Catalog *category.Catalog
	Cache   *category.Cache
	Goals   *goals.Store
	Runner  *schedule.Runner
	Baskets MixBaskets
	Log     zerolog.Logger
}

// NewSession wires a session over a dataset. The runner may be shared
// between sessions; caches and generation bookkeeping are not.
func NewSession(store *columnar.Store, cat *category.Catalog, gs *goals.Store, runner *schedule.Runner, log zerolog.Logger) *Session {
	return &Session{
		Store:   store,
		Catalog: cat,
		Cache:   category.NewCache(category.NewClassifier(cat)),
		Goals:   gs,
		Runner:  runner,
		Baskets: DefaultMixBaskets(),
		Log:     log,
	}
}

// QuarterMonths returns the trailing-quarter month keys (oldest first),
// anchored on the dataset's last observed sale date.
func (s *Session) QuarterMonths() []string {
	last := s.Store.LastSaleDate
	if last.IsZero() {
		return nil
	}
	keys := make([]string, 0, goals.QuarterlyDivisor)
	for i := goals.QuarterlyDivisor - 1; i >= 0; i-- {
		keys = append(keys, last.AddDate(0, -i, -last.Day()+1).Format("2006-01"))
	}
	return keys
}

func (s *Session) prevMonthKey() string {
	last := s.Store.LastSaleDate
	if last.IsZero() {
		return ""
	}
	return last.AddDate(0, -1, -last.Day()+1).Format("2006-01")
}
