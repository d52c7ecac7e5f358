/*
Package goals holds the target-setting model: stored per-client goals,
manual count adjustments, absolute overrides, trailing-quarter baselines
and the derived mix/audit quotas.

PRECEDENCE (per entity, metric and category-key):
  1. An absolute override, if present, fully replaces natural+adjustment.
  2. Otherwise the natural (computed) value plus the signed adjustment.
  3. Parents sum whichever of the two applies to each child; overrides
     never propagate upward as overrides.

KEYS:
  Adjustments and overrides are keyed by a small closed set of
  category-keys (category.AdjustmentKey) and a typed metric enum, not by
  string concatenation, so precedence is statically checkable.

SEE ALSO:
  - baseline.go: trailing-quarter baseline math and the activity threshold
  - quota.go: derived mix and audit quota rules
  - snapshot.go: the persisted goal snapshot document
*/
package goals

import (
	"github.com/shopspring/decimal"
	"github.com/warp/sales-engine/category"
)

// MetricType discriminates which metric an adjustment or override targets.
type MetricType string

const (
	MetricRevenue      MetricType = "fat"
	MetricVolume       MetricType = "vol"
	MetricPositivation MetricType = "pos"
	MetricMix          MetricType = "mix"
)

// Entry is a stored {revenue, weight} target. Absence of an entry means
// "use the baseline as a suggestion", not "target is zero".
type Entry struct {
	Fat decimal.Decimal
	Vol decimal.Decimal
}

// OverrideKey addresses one absolute override.
type OverrideKey struct {
	Entity string // seller or supervisor display name
	Metric MetricType
	Key    category.AdjustmentKey
}

// Store is the in-memory goal state for one operator view. Single-writer:
// concurrent writers are out of scope by design.
type Store struct {
	clientGoals map[string]map[category.ID]Entry
	targets     map[category.AdjustmentKey]Entry
	posAdjust   map[category.AdjustmentKey]map[string]int
	mixAdjust   map[category.ID]map[string]int
	overrides   map[OverrideKey]decimal.Decimal
}

// NewStore creates an empty goal store.
func NewStore() *Store {
	return &Store{
		clientGoals: make(map[string]map[category.ID]Entry),
		targets:     make(map[category.AdjustmentKey]Entry),
		posAdjust:   make(map[category.AdjustmentKey]map[string]int),
		mixAdjust:   make(map[category.ID]map[string]int),
		overrides:   make(map[OverrideKey]decimal.Decimal),
	}
}

// SetClientGoal stores the target for one (client, leaf category) pair.
func (s *Store) SetClientGoal(clientID string, leaf category.ID, e Entry) {
	m, ok := s.clientGoals[clientID]
	if !ok {
		m = make(map[category.ID]Entry)
		s.clientGoals[clientID] = m
	}
	m[leaf] = e
}

// ClientGoal returns the stored target for one (client, leaf) pair.
func (s *Store) ClientGoal(clientID string, leaf category.ID) (Entry, bool) {
	e, ok := s.clientGoals[clientID][leaf]
	return e, ok
}

// StoredGoal resolves the stored target for any category: a leaf reads its
// own entry, an aggregate sums its member leaf entries for the client.
func (s *Store) StoredGoal(cat *category.Catalog, clientID string, id category.ID) Entry {
	var total Entry
	for _, leaf := range cat.LeafMembers(id) {
		if e, ok := s.ClientGoal(clientID, leaf); ok {
			total.Fat = total.Fat.Add(e.Fat)
			total.Vol = total.Vol.Add(e.Vol)
		}
	}
	return total
}

// SetTarget stores a category-level global target.
func (s *Store) SetTarget(key category.AdjustmentKey, e Entry) {
	s.targets[key] = e
}

// Target returns the category-level global target.
func (s *Store) Target(key category.AdjustmentKey) Entry {
	return s.targets[key]
}

// SetAdjustment records a signed count delta for (category-key, entity).
// Adjustments apply to count metrics only, never currency or weight.
func (s *Store) SetAdjustment(key category.AdjustmentKey, entity string, delta int) {
	m, ok := s.posAdjust[key]
	if !ok {
		m = make(map[string]int)
		s.posAdjust[key] = m
	}
	m[entity] = delta
}

// Adjustment returns the count delta for (category-key, entity), 0 when
// none was entered.
func (s *Store) Adjustment(key category.AdjustmentKey, entity string) int {
	return s.posAdjust[key][entity]
}

// SetMixAdjustment records a delta on a derived mix quota.
func (s *Store) SetMixAdjustment(quota category.ID, entity string, delta int) {
	m, ok := s.mixAdjust[quota]
	if !ok {
		m = make(map[string]int)
		s.mixAdjust[quota] = m
	}
	m[entity] = delta
}

// MixAdjustment returns the delta for a derived mix quota.
func (s *Store) MixAdjustment(quota category.ID, entity string) int {
	return s.mixAdjust[quota][entity]
}

// SetOverride records an absolute value that fully replaces
// natural+adjustment for that exact entity and level.
func (s *Store) SetOverride(k OverrideKey, v decimal.Decimal) {
	s.overrides[k] = v
}

// ClearOverride removes an override.
func (s *Store) ClearOverride(k OverrideKey) {
	delete(s.overrides, k)
}

// Override returns the absolute override for a key, if present.
func (s *Store) Override(k OverrideKey) (decimal.Decimal, bool) {
	v, ok := s.overrides[k]
	return v, ok
}

// ResolveCount applies the precedence rules to a count metric: override if
// present, else natural plus adjustment. Each caller sums resolved values
// per child when rolling up; there is no override inheritance.
func (s *Store) ResolveCount(entity string, metric MetricType, key category.AdjustmentKey, natural int) int {
	if v, ok := s.overrides[OverrideKey{Entity: entity, Metric: metric, Key: key}]; ok {
		return int(v.IntPart())
	}
	return natural + s.Adjustment(key, entity)
}

// ResolveAmount applies override precedence to a currency/weight metric.
// Adjustments never touch these, so the fallback is the natural value.
func (s *Store) ResolveAmount(entity string, metric MetricType, key category.AdjustmentKey, natural decimal.Decimal) decimal.Decimal {
	if v, ok := s.overrides[OverrideKey{Entity: entity, Metric: metric, Key: key}]; ok {
		return v
	}
	return natural
}

// Reset zeroes all goal, target, adjustment and override state. Used when
// the persisted snapshot for the month is cleared.
func (s *Store) Reset() {
	s.clientGoals = make(map[string]map[category.ID]Entry)
	for k := range s.targets {
		s.targets[k] = Entry{}
	}
	s.posAdjust = make(map[category.AdjustmentKey]map[string]int)
	s.mixAdjust = make(map[category.ID]map[string]int)
	s.overrides = make(map[OverrideKey]decimal.Decimal)
}
