package aggregate

import (
	"github.com/shopspring/decimal"
	"github.com/warp/sales-engine/category"
)

// Cell holds one (entity, category) slot of the rollup tree.
//
// NaturalPos is the computed count before manual input; MetaPos is the
// displayed count after adjustments. Currency/weight metrics have no
// adjusted variant because adjustments never touch them.
type Cell struct {
	// Targets (stored goals summed up the hierarchy).
	MetaFat decimal.Decimal
	MetaVol decimal.Decimal

	// Trailing-quarter baselines.
	AvgFat decimal.Decimal
	AvgVol decimal.Decimal

	// Positivation.
	NaturalPos int
	MetaPos    int

	// Monthly revenue breakdown over the trailing-quarter keys.
	Monthly map[string]decimal.Decimal

	// Mix coverage (derived-quota cells only).
	AvgMix  decimal.Decimal
	MetaMix int

	// Share of the filtered total (client rows only), 0-guarded.
	ShareFat decimal.Decimal
	ShareVol decimal.Decimal
}

func newCell(quarter []string) *Cell {
	c := &Cell{Monthly: make(map[string]decimal.Decimal, len(quarter))}
	for _, m := range quarter {
		c.Monthly[m] = decimal.Zero
	}
	return c
}

// add accumulates another cell's sums into c (currency, weight, counts,
// monthly series). Mix quota fields are not summed here; group quotas are
// recomputed by the engine.
func (c *Cell) add(o *Cell) {
	c.MetaFat = c.MetaFat.Add(o.MetaFat)
	c.MetaVol = c.MetaVol.Add(o.MetaVol)
	c.AvgFat = c.AvgFat.Add(o.AvgFat)
	c.AvgVol = c.AvgVol.Add(o.AvgVol)
	c.NaturalPos += o.NaturalPos
	c.MetaPos += o.MetaPos
	c.AvgMix = c.AvgMix.Add(o.AvgMix)
	for k, v := range o.Monthly {
		c.Monthly[k] = c.Monthly[k].Add(v)
	}
}

// ClientRow is the leaf level of the rollup tree.
type ClientRow struct {
	ID         string
	Name       string
	SellerID   string
	SellerName string

	// Cells keyed by leaf category id.
	Cells map[category.ID]*Cell

	ActiveMonths    int
	ActivePrevMonth bool
	PrevFat         decimal.Decimal
	PrevVol         decimal.Decimal
}

// SellerRow aggregates the clients owned by one seller.
type SellerRow struct {
	ID         string
	Name       string
	Supervisor string

	Cells   map[category.ID]*Cell
	Clients []*ClientRow

	// aggActive holds distinct-active-client counts per aggregate
	// category (the anti-double-counting counts).
	aggActive map[category.ID]int
}

// SupervisorRow aggregates seller rows.
type SupervisorRow struct {
	Name    string
	Sellers []*SellerRow
	Totals  map[category.ID]*Cell
}

// Rollup is the full result tree for one computation.
type Rollup struct {
	QuarterMonths []string
	Supervisors   []*SupervisorRow
	Global        map[category.ID]*Cell

	// Unclassified is the diagnostic count of sale-type-eligible records
	// that matched no classification rule (see DESIGN.md).
	Unclassified int
}
