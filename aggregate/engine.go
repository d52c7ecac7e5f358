/*
engine.go - the per-client pass and the hierarchical rollup

SHAPE:
  ComputeAggregate runs two passes. The per-client pass walks each
  filtered client's history once, accumulating leaf-category sums, the
  trailing-quarter series and activity flags. The rollup pass sums client
  cells into seller cells, derives aggregate-category cells from component
  cells (never from raw records), applies adjustments, derives quotas, and
  sums resolved seller values into supervisor and global totals.

EDGE CASES:
  A client with no history yields an all-zero row, not an omitted one.
  Zero denominators yield 0, never NaN.
*/
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/sales-engine/category"
	"github.com/warp/sales-engine/columnar"
	"github.com/warp/sales-engine/goals"
	"github.com/warp/sales-engine/schedule"
)

// ComputeAggregate runs a full computation synchronously. An empty cats
// selection returns every catalog category.
func (s *Session) ComputeAggregate(f Filter, cats []category.ID) *Rollup {
	start := time.Now()
	st := s.newComputeState(f, cats)
	for i := range st.clients {
		st.processClient(i)
	}
	r := st.finalize()
	s.Log.Debug().
		Int("clients", len(st.clients)).
		Int("unclassified", r.Unclassified).
		Dur("took", time.Since(start)).
		Msg("aggregate computed")
	return r
}

// ComputeAggregateAsync runs the same computation on the session's
// chunked runner. commit receives the rollup only if no newer run started
// in the meantime; stale completions are dropped silently.
func (s *Session) ComputeAggregateAsync(ctx context.Context, f Filter, cats []category.ID, commit func(*Rollup)) *schedule.Handle {
	st := s.newComputeState(f, cats)
	return s.Runner.Run(ctx, len(st.clients), st.processClient, func() {
		commit(st.finalize())
	})
}

// clientTotals accumulates one client's raw sums for one leaf category.
type clientTotals struct {
	fat     decimal.Decimal
	vol     decimal.Decimal
	prevFat decimal.Decimal
	prevVol decimal.Decimal
	monthly map[string]decimal.Decimal
}

type sellerAccum struct {
	row       *SellerRow
	aggActive map[category.ID]int
}

type computeState struct {
	s       *Session
	f       Filter
	want    map[category.ID]bool // empty = everything
	classes []category.ID
	quarter []string
	prev    string
	clients []*columnar.Client
	sellers map[string]*sellerAccum
}

func (s *Session) newComputeState(f Filter, cats []category.ID) *computeState {
	want := make(map[category.ID]bool, len(cats))
	for _, id := range cats {
		want[id] = true
	}
	return &computeState{
		s:       s,
		f:       f,
		want:    want,
		classes: s.Cache.Classifications(s.Store, f.saleTypes()),
		quarter: s.QuarterMonths(),
		prev:    s.prevMonthKey(),
		clients: f.selectClients(s.Store),
		sellers: make(map[string]*sellerAccum),
	}
}

func (st *computeState) seller(id, name string) *sellerAccum {
	sa, ok := st.sellers[id]
	if !ok {
		sa = &sellerAccum{
			row: &SellerRow{
				ID:         id,
				Name:       name,
				Supervisor: st.supervisorName(id),
				Cells:      make(map[category.ID]*Cell),
			},
			aggActive: make(map[category.ID]int),
		}
		for _, def := range st.s.Catalog.Leaves() {
			sa.row.Cells[def.ID] = newCell(st.quarter)
		}
		st.sellers[id] = sa
	}
	return sa
}

func (st *computeState) supervisorName(sellerID string) string {
	if sellerID == "" {
		return columnar.UnassignedSupervisor
	}
	return st.s.Store.SupervisorFor(sellerID)
}

// processClient is the per-client pass: one walk over the client's
// history, then accumulation into the owning seller.
func (st *computeState) processClient(i int) {
	c := st.clients[i]
	sellerID, sellerName := ownerOf(st.s.Store, c)
	sa := st.seller(sellerID, sellerName)

	leaves := st.s.Catalog.Leaves()
	totals := make(map[category.ID]*clientTotals, len(leaves))
	for _, def := range leaves {
		totals[def.ID] = &clientTotals{monthly: make(map[string]decimal.Decimal)}
	}

	for _, idx := range st.s.Store.ByClient[c.ID] {
		rec := &st.s.Store.Records[idx]
		if columnar.IsCounterSale(c.ID, rec.SellerID) {
			continue
		}
		if !st.f.matchRecord(rec) {
			continue
		}
		id := st.classes[idx]
		if id == category.None {
			continue
		}
		t := totals[id]
		t.fat = t.fat.Add(rec.Revenue)
		t.vol = t.vol.Add(rec.Weight)
		mk := rec.MonthKey()
		if mk == "" {
			continue
		}
		if mk == st.prev {
			t.prevFat = t.prevFat.Add(rec.Revenue)
			t.prevVol = t.prevVol.Add(rec.Weight)
		}
		t.monthly[mk] = t.monthly[mk].Add(rec.Revenue)
	}

	row := &ClientRow{
		ID:         c.ID,
		Name:       c.DisplayName(),
		SellerID:   sellerID,
		SellerName: sellerName,
		Cells:      make(map[category.ID]*Cell, len(leaves)),
	}

	combinedMonthly := make(map[string]decimal.Decimal)
	for _, def := range leaves {
		t := totals[def.ID]
		cell := newCell(st.quarter)
		cell.AvgFat = goals.Baseline(t.fat)
		cell.AvgVol = goals.Baseline(t.vol)
		if e, ok := st.s.Goals.ClientGoal(c.ID, def.ID); ok {
			cell.MetaFat = e.Fat
			cell.MetaVol = e.Vol
		}
		if goals.IsActive(t.fat) {
			cell.NaturalPos = 1
			cell.MetaPos = 1
		}
		for _, m := range st.quarter {
			cell.Monthly[m] = t.monthly[m]
		}
		row.Cells[def.ID] = cell
		row.PrevFat = row.PrevFat.Add(t.prevFat)
		row.PrevVol = row.PrevVol.Add(t.prevVol)
		for mk, v := range t.monthly {
			combinedMonthly[mk] = combinedMonthly[mk].Add(v)
		}
		sa.row.Cells[def.ID].add(cell)
	}

	for _, v := range combinedMonthly {
		if goals.IsActive(v) {
			row.ActiveMonths++
		}
	}
	if goals.IsActive(row.PrevFat) {
		row.ActivePrevMonth = true
	}

	// Aggregate positivation is a distinct-client test over the combined
	// member revenue, not a sum of member flags.
	for i := range st.s.Catalog.Defs {
		def := &st.s.Catalog.Defs[i]
		if def.Kind != category.KindAggregate {
			continue
		}
		combined := decimal.Zero
		for _, leaf := range st.s.Catalog.LeafMembers(def.ID) {
			combined = combined.Add(totals[leaf].fat)
		}
		if goals.IsActive(combined) {
			sa.aggActive[def.ID]++
		}
	}

	sa.row.Clients = append(sa.row.Clients, row)
}

// finalize derives aggregate and quota cells, applies adjustments, and
// rolls seller rows up into supervisor and global totals.
func (st *computeState) finalize() *Rollup {
	cat := st.s.Catalog
	gs := st.s.Goals

	sellerRows := make([]*sellerAccum, 0, len(st.sellers))
	for _, sa := range st.sellers {
		sellerRows = append(sellerRows, sa)
	}

	for _, sa := range sellerRows {
		row := sa.row

		// Aggregate cells from component cells; catalog order guarantees
		// members are computed before the aggregates that contain them.
		for i := range cat.Defs {
			def := &cat.Defs[i]
			if def.Kind != category.KindAggregate {
				continue
			}
			cell := newCell(st.quarter)
			for _, m := range def.Members {
				if mc := row.Cells[m]; mc != nil {
					cell.add(mc)
				}
			}
			cell.NaturalPos = sa.aggActive[def.ID]
			cell.MetaPos = cell.NaturalPos
			row.Cells[def.ID] = cell
		}

		// Mix coverage averages over the seller's own history.
		mixAvg := st.mixAverages(row.ID)

		// Resolution on the seller's own cells (standard cells only): an
		// override fully replaces natural+adjustment, so the row displays
		// the same value its parent will sum.
		for i := range cat.Defs {
			def := &cat.Defs[i]
			if def.Kind == category.KindDerivedQuota {
				continue
			}
			cell := row.Cells[def.ID]
			cell.MetaFat = gs.ResolveAmount(row.Name, goals.MetricRevenue, def.AdjustKey, cell.MetaFat)
			cell.MetaVol = gs.ResolveAmount(row.Name, goals.MetricVolume, def.AdjustKey, cell.MetaVol)
			cell.MetaPos = gs.ResolveCount(row.Name, goals.MetricPositivation, def.AdjustKey, cell.NaturalPos)
		}

		// Derived quotas. Mix quotas rebuild the reference base from the
		// natural count; the audit quota reads the adjusted value.
		for i := range cat.Defs {
			def := &cat.Defs[i]
			if def.Kind != category.KindDerivedQuota {
				continue
			}
			cell := newCell(st.quarter)
			ref := row.Cells[def.RefBase]
			if def.ID == category.Pedev {
				cell.MetaPos = goals.AuditQuota(def, ref.MetaPos)
			} else {
				cell.AvgMix = mixAvg[def.ID]
				refKey := cat.Get(def.RefBase).AdjustKey
				cell.MetaMix = gs.MixQuota(def, refKey, row.ID, row.Name, ref.NaturalPos)
			}
			row.Cells[def.ID] = cell
		}
	}

	// Group sellers under supervisors.
	groups := make(map[string]*SupervisorRow)
	var order []string
	for _, sa := range sellerRows {
		name := sa.row.Supervisor
		g, ok := groups[name]
		if !ok {
			g = &SupervisorRow{Name: name, Totals: make(map[category.ID]*Cell)}
			groups[name] = g
			order = append(order, name)
		}
		g.Sellers = append(g.Sellers, sa.row)
	}

	for _, name := range order {
		g := groups[name]
		st.rollupTotals(g.Totals, g.Sellers)
	}

	// Global totals sum supervisor-level resolved values.
	global := make(map[category.ID]*Cell)
	for i := range cat.Defs {
		def := &cat.Defs[i]
		total := newCell(st.quarter)
		for _, name := range order {
			sc := groups[name].Totals[def.ID]
			switch def.Kind {
			case category.KindDerivedQuota:
				total.AvgMix = total.AvgMix.Add(sc.AvgMix)
				total.MetaPos += sc.MetaPos
				total.MetaMix += sc.MetaMix
			default:
				total.MetaFat = total.MetaFat.Add(gs.ResolveAmount(name, goals.MetricRevenue, def.AdjustKey, sc.MetaFat))
				total.MetaVol = total.MetaVol.Add(gs.ResolveAmount(name, goals.MetricVolume, def.AdjustKey, sc.MetaVol))
				total.MetaPos += gs.ResolveCount(name, goals.MetricPositivation, def.AdjustKey, sc.MetaPos)
				total.NaturalPos += sc.NaturalPos
				total.AvgFat = total.AvgFat.Add(sc.AvgFat)
				total.AvgVol = total.AvgVol.Add(sc.AvgVol)
				for k, v := range sc.Monthly {
					total.Monthly[k] = total.Monthly[k].Add(v)
				}
			}
		}
		global[def.ID] = total
	}
	st.recomputeGroupQuotas(global, allSellers(groups, order))

	// Supervisor cells resolve at their own level too, after the global
	// pass above consumed the identical resolved values. Derived quotas
	// then re-derive from the resolved reference.
	for _, name := range order {
		g := groups[name]
		for i := range cat.Defs {
			def := &cat.Defs[i]
			if def.Kind == category.KindDerivedQuota {
				continue
			}
			sc := g.Totals[def.ID]
			sc.MetaFat = gs.ResolveAmount(name, goals.MetricRevenue, def.AdjustKey, sc.MetaFat)
			sc.MetaVol = gs.ResolveAmount(name, goals.MetricVolume, def.AdjustKey, sc.MetaVol)
			sc.MetaPos = gs.ResolveCount(name, goals.MetricPositivation, def.AdjustKey, sc.MetaPos)
		}
		st.recomputeGroupQuotas(g.Totals, g.Sellers)
	}

	// Client share of the filtered total, division 0-guarded.
	for i := range cat.Defs {
		def := &cat.Defs[i]
		if def.Kind != category.KindLeaf {
			continue
		}
		gAvgFat := global[def.ID].AvgFat
		gAvgVol := global[def.ID].AvgVol
		for _, sa := range sellerRows {
			for _, cr := range sa.row.Clients {
				cell := cr.Cells[def.ID]
				if gAvgFat.IsPositive() && cell.AvgFat.IsPositive() {
					cell.ShareFat = cell.AvgFat.Div(gAvgFat)
				}
				if gAvgVol.IsPositive() && cell.AvgVol.IsPositive() {
					cell.ShareVol = cell.AvgVol.Div(gAvgVol)
				}
			}
		}
	}

	// Deterministic presentation order: total_elma target descending.
	supervisors := make([]*SupervisorRow, 0, len(order))
	for _, name := range order {
		g := groups[name]
		sort.SliceStable(g.Sellers, func(i, j int) bool {
			return lessByElma(g.Sellers[i].Cells, g.Sellers[j].Cells, g.Sellers[i].Name, g.Sellers[j].Name)
		})
		supervisors = append(supervisors, g)
	}
	sort.SliceStable(supervisors, func(i, j int) bool {
		return lessByElma(supervisors[i].Totals, supervisors[j].Totals, supervisors[i].Name, supervisors[j].Name)
	})

	r := &Rollup{
		QuarterMonths: st.quarter,
		Supervisors:   supervisors,
		Global:        global,
		Unclassified:  st.s.Cache.Unclassified(st.s.Store, st.f.saleTypes()),
	}
	st.trim(r)
	return r
}

// rollupTotals sums resolved seller values into a parent cell map. Each
// child contributes its override where one exists, else natural plus
// adjustment; overrides never propagate upward as overrides.
func (st *computeState) rollupTotals(totals map[category.ID]*Cell, sellers []*SellerRow) {
	cat := st.s.Catalog
	gs := st.s.Goals
	for i := range cat.Defs {
		def := &cat.Defs[i]
		total := newCell(st.quarter)
		for _, sr := range sellers {
			sc := sr.Cells[def.ID]
			if sc == nil {
				continue
			}
			switch def.Kind {
			case category.KindDerivedQuota:
				total.AvgMix = total.AvgMix.Add(sc.AvgMix)
				total.MetaPos += sc.MetaPos
				total.MetaMix += sc.MetaMix
			default:
				total.MetaFat = total.MetaFat.Add(gs.ResolveAmount(sr.Name, goals.MetricRevenue, def.AdjustKey, sc.MetaFat))
				total.MetaVol = total.MetaVol.Add(gs.ResolveAmount(sr.Name, goals.MetricVolume, def.AdjustKey, sc.MetaVol))
				total.MetaPos += gs.ResolveCount(sr.Name, goals.MetricPositivation, def.AdjustKey, sc.NaturalPos)
				total.NaturalPos += sc.NaturalPos
				total.AvgFat = total.AvgFat.Add(sc.AvgFat)
				total.AvgVol = total.AvgVol.Add(sc.AvgVol)
				for k, v := range sc.Monthly {
					total.Monthly[k] = total.Monthly[k].Add(v)
				}
			}
		}
		totals[def.ID] = total
	}
	st.recomputeGroupQuotas(totals, sellers)
}

// recomputeGroupQuotas replaces summed quota values with quotas derived
// from the group's own base, so every level follows the same derivation.
func (st *computeState) recomputeGroupQuotas(totals map[category.ID]*Cell, sellers []*SellerRow) {
	cat := st.s.Catalog
	gs := st.s.Goals
	for i := range cat.Defs {
		def := &cat.Defs[i]
		if def.Kind != category.KindDerivedQuota {
			continue
		}
		if def.ID == category.Pedev {
			totals[def.ID].MetaPos = goals.AuditQuota(def, totals[def.RefBase].MetaPos)
			continue
		}
		refKey := cat.Get(def.RefBase).AdjustKey
		members := make([]goals.GroupMember, 0, len(sellers))
		for _, sr := range sellers {
			ref := sr.Cells[def.RefBase]
			if ref == nil {
				continue
			}
			members = append(members, goals.GroupMember{Code: sr.ID, Entity: sr.Name, RefNatural: ref.NaturalPos})
		}
		totals[def.ID].MetaMix = gs.GroupMixQuota(def, refKey, members)
	}
}

func allSellers(groups map[string]*SupervisorRow, order []string) []*SellerRow {
	var out []*SellerRow
	for _, name := range order {
		out = append(out, groups[name].Sellers...)
	}
	return out
}

func lessByElma(a, b map[category.ID]*Cell, nameA, nameB string) bool {
	var fa, fb decimal.Decimal
	if c := a[category.TotalElma]; c != nil {
		fa = c.MetaFat
	}
	if c := b[category.TotalElma]; c != nil {
		fb = c.MetaFat
	}
	if cmp := fa.Cmp(fb); cmp != 0 {
		return cmp > 0
	}
	return nameA < nameB
}

// trim drops unrequested categories from the output tree.
func (st *computeState) trim(r *Rollup) {
	if len(st.want) == 0 {
		return
	}
	drop := func(cells map[category.ID]*Cell) {
		for id := range cells {
			if !st.want[id] {
				delete(cells, id)
			}
		}
	}
	drop(r.Global)
	for _, g := range r.Supervisors {
		drop(g.Totals)
		for _, sr := range g.Sellers {
			drop(sr.Cells)
			for _, cr := range sr.Clients {
				drop(cr.Cells)
			}
		}
	}
}
