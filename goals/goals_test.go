package goals_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sales-engine/category"
	"github.com/warp/sales-engine/goals"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// BASELINES
// =============================================================================

func TestBaseline_DividesQuarterSumByThree(t *testing.T) {
	// GIVEN: Quarter sums of 90 and 100
	// WHEN: The baseline is derived
	// THEN: It is the sum over the fixed three-month window, inactive
	//       months included

	assert.True(t, goals.Baseline(dec("90")).Equal(dec("30")))
	assert.True(t, goals.Baseline(dec("100")).Round(4).Equal(dec("33.3333")))
	assert.True(t, goals.Baseline(decimal.Zero).IsZero())
}

func TestIsActive_ThresholdIsStrictlyAboveOne(t *testing.T) {
	assert.False(t, goals.IsActive(dec("1")))
	assert.False(t, goals.IsActive(dec("0.99")))
	assert.True(t, goals.IsActive(dec("1.01")))
}

// =============================================================================
// RESOLUTION PRECEDENCE
// =============================================================================

func TestResolveCount_OverrideReplacesNaturalPlusAdjustment(t *testing.T) {
	// GIVEN: Natural count 12 with a +8 adjustment (resolved 20)
	// WHEN: An override of 25 is set for the same slot
	// THEN: The resolved value is 25, not 25+8 and not 20

	s := goals.NewStore()
	s.SetAdjustment(category.AdjustElmaAll, "JOAO", 8)

	assert.Equal(t, 20, s.ResolveCount("JOAO", goals.MetricPositivation, category.AdjustElmaAll, 12))

	s.SetOverride(goals.OverrideKey{
		Entity: "JOAO",
		Metric: goals.MetricPositivation,
		Key:    category.AdjustElmaAll,
	}, dec("25"))

	assert.Equal(t, 25, s.ResolveCount("JOAO", goals.MetricPositivation, category.AdjustElmaAll, 12))
}

func TestResolveCount_AdjustmentsAreIndependentPerKeyAndEntity(t *testing.T) {
	s := goals.NewStore()
	s.SetAdjustment(category.AdjustElmaAll, "JOAO", 3)

	// Different entity, same key: untouched.
	assert.Equal(t, 10, s.ResolveCount("MARIA", goals.MetricPositivation, category.AdjustElmaAll, 10))
	// Same entity, different key: untouched.
	assert.Equal(t, 10, s.ResolveCount("JOAO", goals.MetricPositivation, category.AdjustFoodsAll, 10))
}

func TestResolveAmount_OverridePinsRevenue(t *testing.T) {
	s := goals.NewStore()

	natural := dec("1500.50")
	assert.True(t, s.ResolveAmount("JOAO", goals.MetricRevenue, category.AdjustPepsicoAll, natural).Equal(natural))

	s.SetOverride(goals.OverrideKey{
		Entity: "JOAO",
		Metric: goals.MetricRevenue,
		Key:    category.AdjustPepsicoAll,
	}, dec("2000"))

	assert.True(t, s.ResolveAmount("JOAO", goals.MetricRevenue, category.AdjustPepsicoAll, natural).Equal(dec("2000")))
}

func TestClearOverride_RestoresNaturalResolution(t *testing.T) {
	s := goals.NewStore()
	k := goals.OverrideKey{Entity: "JOAO", Metric: goals.MetricPositivation, Key: category.AdjustElmaAll}

	s.SetOverride(k, dec("25"))
	s.ClearOverride(k)

	assert.Equal(t, 12, s.ResolveCount("JOAO", goals.MetricPositivation, category.AdjustElmaAll, 12))
}

// =============================================================================
// STORED GOALS
// =============================================================================

func TestStoredGoal_AggregateSumsLeafMembers(t *testing.T) {
	cat := category.Default()
	s := goals.NewStore()

	s.SetClientGoal("10", category.Extrusados, goals.Entry{Fat: dec("100"), Vol: dec("10")})
	s.SetClientGoal("10", category.Torcida, goals.Entry{Fat: dec("50"), Vol: dec("5")})
	s.SetClientGoal("10", category.Toddynho, goals.Entry{Fat: dec("30"), Vol: dec("3")})

	elma := s.StoredGoal(cat, "10", category.TotalElma)
	assert.True(t, elma.Fat.Equal(dec("150")))

	geral := s.StoredGoal(cat, "10", category.Geral)
	assert.True(t, geral.Fat.Equal(dec("180")))
	assert.True(t, geral.Vol.Equal(dec("18")))
}

// =============================================================================
// DERIVED QUOTAS
// =============================================================================

func TestMixQuota_BaseIncludesReferenceAdjustment(t *testing.T) {
	// GIVEN: A seller with 86 naturally positivated clients in the
	//        reference category and a +4 adjustment on it
	// WHEN: Mix quotas are derived
	// THEN: salty = round(90*0.50) = 45, foods = round(90*0.30) = 27

	cat := category.Default()
	s := goals.NewStore()
	s.SetAdjustment(category.AdjustElmaAll, "JOAO", 4)

	salty := s.MixQuota(cat.Get(category.MixSalty), category.AdjustElmaAll, "7", "JOAO", 86)
	foods := s.MixQuota(cat.Get(category.MixFoods), category.AdjustElmaAll, "7", "JOAO", 86)

	assert.Equal(t, 45, salty)
	assert.Equal(t, 27, foods)
}

func TestMixQuota_MixAdjustmentAddsAfterRounding(t *testing.T) {
	cat := category.Default()
	s := goals.NewStore()
	s.SetMixAdjustment(category.MixSalty, "JOAO", -2)

	got := s.MixQuota(cat.Get(category.MixSalty), category.AdjustElmaAll, "7", "JOAO", 86)
	assert.Equal(t, 41, got) // round(86*0.5)=43, then -2
}

func TestMixQuota_ExcludedSellerIsAlwaysZero(t *testing.T) {
	cat := category.Default()
	s := goals.NewStore()

	got := s.MixQuota(cat.Get(category.MixSalty), category.AdjustElmaAll, goals.ExcludedSellerCode, "BALCAO", 500)
	assert.Equal(t, 0, got)
}

func TestGroupMixQuota_ExcludedSellerLeavesGroupBase(t *testing.T) {
	// GIVEN: Two normal sellers (40 + 46) and the excluded one (500)
	// WHEN: The group quota is derived
	// THEN: The base is 86; the excluded seller contributes nothing

	cat := category.Default()
	s := goals.NewStore()

	got := s.GroupMixQuota(cat.Get(category.MixSalty), category.AdjustElmaAll, []goals.GroupMember{
		{Code: "7", Entity: "JOAO", RefNatural: 40},
		{Code: "8", Entity: "MARIA", RefNatural: 46},
		{Code: goals.ExcludedSellerCode, Entity: "BALCAO", RefNatural: 500},
	})
	assert.Equal(t, 43, got)
}

func TestAuditQuota_ReadsAdjustedReference(t *testing.T) {
	cat := category.Default()

	assert.Equal(t, 81, goals.AuditQuota(cat.Get(category.Pedev), 90))
	assert.Equal(t, 77, goals.AuditQuota(cat.Get(category.Pedev), 86))
	assert.Equal(t, 0, goals.AuditQuota(cat.Get(category.Pedev), 0))
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestSnapshot_ExportLoadRoundTrip(t *testing.T) {
	s := goals.NewStore()
	s.SetClientGoal("10", category.Extrusados, goals.Entry{Fat: dec("100.5"), Vol: dec("12")})
	s.SetTarget(category.AdjustElmaAll, goals.Entry{Fat: dec("5000"), Vol: dec("400")})

	snap := s.Export("2024-03", time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC))
	require.NoError(t, snap.Validate())
	assert.Equal(t, goals.SnapshotSupplier, snap.Supplier)
	assert.Equal(t, goals.SnapshotBrand, snap.Brand)

	restored := goals.NewStore()
	restored.Load(snap)

	e, ok := restored.ClientGoal("10", category.Extrusados)
	require.True(t, ok)
	assert.InDelta(t, 100.5, e.Fat.InexactFloat64(), 1e-9)
	assert.InDelta(t, 5000, restored.Target(category.AdjustElmaAll).Fat.InexactFloat64(), 1e-9)
}

func TestSnapshot_ValidateRejectsBadMonthKey(t *testing.T) {
	snap := &goals.Snapshot{MonthKey: "03/2024", Supplier: "ALL", Brand: "GENERAL"}
	assert.Error(t, snap.Validate())
}

func TestSnapshot_LoadPreservesAdjustmentsAndOverrides(t *testing.T) {
	// GIVEN: Live adjustments and overrides plus a stored snapshot
	// WHEN: The snapshot is loaded
	// THEN: Goals are replaced; view-state inputs survive

	s := goals.NewStore()
	s.SetAdjustment(category.AdjustElmaAll, "JOAO", 4)
	s.SetClientGoal("10", category.Extrusados, goals.Entry{Fat: dec("1")})

	other := goals.NewStore()
	other.SetClientGoal("20", category.Torcida, goals.Entry{Fat: dec("9")})
	snap := other.Export("2024-04", time.Now())

	s.Load(snap)

	_, ok := s.ClientGoal("10", category.Extrusados)
	assert.False(t, ok, "old client goals must be replaced wholesale")
	assert.Equal(t, 4, s.Adjustment(category.AdjustElmaAll, "JOAO"))
}

func TestReset_ClearsAllGoalState(t *testing.T) {
	s := goals.NewStore()
	s.SetClientGoal("10", category.Extrusados, goals.Entry{Fat: dec("1")})
	s.SetAdjustment(category.AdjustElmaAll, "JOAO", 4)
	s.SetOverride(goals.OverrideKey{Entity: "JOAO", Metric: goals.MetricPositivation, Key: category.AdjustElmaAll}, dec("9"))

	s.Reset()

	_, ok := s.ClientGoal("10", category.Extrusados)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Adjustment(category.AdjustElmaAll, "JOAO"))
	assert.Equal(t, 7, s.ResolveCount("JOAO", goals.MetricPositivation, category.AdjustElmaAll, 7))
}
