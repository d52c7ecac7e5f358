/*
snapshot.go - the persisted goal snapshot document

One JSON document per calendar month, upserted by
(month_key, supplier='ALL', brand='GENERAL'). Loading a snapshot replaces
the in-memory client goals and category targets wholesale; clearing the
month deletes the document and resets all in-memory goal state to zero.
*/
package goals

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/sales-engine/category"
)

// Snapshot keys are fixed for the global document.
const (
	SnapshotSupplier = "ALL"
	SnapshotBrand    = "GENERAL"
)

// EntryJSON is the wire form of a {revenue, weight} target.
type EntryJSON struct {
	Fat float64 `json:"fat"`
	Vol float64 `json:"vol"`
}

// SnapshotData carries the two goal maps.
type SnapshotData struct {
	// Clients: client id -> leaf category key -> target.
	Clients map[string]map[string]EntryJSON `json:"clients"`
	// Targets: category key -> global target.
	Targets map[string]EntryJSON `json:"targets"`
}

// Snapshot is the operator-facing save/load unit.
type Snapshot struct {
	MonthKey  string       `json:"month_key" validate:"required,datetime=2006-01"`
	Supplier  string       `json:"supplier" validate:"required"`
	Brand     string       `json:"brand" validate:"required"`
	GoalsData SnapshotData `json:"goals_data"`
	UpdatedAt time.Time    `json:"updated_at"`
}

var validate = validator.New()

// Validate checks the snapshot's structural invariants.
func (s *Snapshot) Validate() error {
	return validate.Struct(s)
}

// Load replaces the store's client goals and targets with the snapshot
// contents. Adjustments and overrides are untouched: they are view state,
// not part of the persisted document.
func (s *Store) Load(snap *Snapshot) {
	s.clientGoals = make(map[string]map[category.ID]Entry, len(snap.GoalsData.Clients))
	for clientID, goals := range snap.GoalsData.Clients {
		m := make(map[category.ID]Entry, len(goals))
		for key, e := range goals {
			m[category.ID(key)] = Entry{
				Fat: decimal.NewFromFloat(e.Fat),
				Vol: decimal.NewFromFloat(e.Vol),
			}
		}
		s.clientGoals[clientID] = m
	}
	s.targets = make(map[category.AdjustmentKey]Entry, len(snap.GoalsData.Targets))
	for key, e := range snap.GoalsData.Targets {
		s.targets[category.AdjustmentKey(key)] = Entry{
			Fat: decimal.NewFromFloat(e.Fat),
			Vol: decimal.NewFromFloat(e.Vol),
		}
	}
}

// Export serializes the store's goals and targets for the given month.
func (s *Store) Export(monthKey string, now time.Time) *Snapshot {
	snap := &Snapshot{
		MonthKey:  monthKey,
		Supplier:  SnapshotSupplier,
		Brand:     SnapshotBrand,
		UpdatedAt: now.UTC(),
		GoalsData: SnapshotData{
			Clients: make(map[string]map[string]EntryJSON, len(s.clientGoals)),
			Targets: make(map[string]EntryJSON, len(s.targets)),
		},
	}
	for clientID, goals := range s.clientGoals {
		m := make(map[string]EntryJSON, len(goals))
		for id, e := range goals {
			m[string(id)] = EntryJSON{Fat: e.Fat.InexactFloat64(), Vol: e.Vol.InexactFloat64()}
		}
		snap.GoalsData.Clients[clientID] = m
	}
	for key, e := range s.targets {
		snap.GoalsData.Targets[string(key)] = EntryJSON{Fat: e.Fat.InexactFloat64(), Vol: e.Vol.InexactFloat64()}
	}
	return snap
}
