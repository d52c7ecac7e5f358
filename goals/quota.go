/*
quota.go - derived quota rules (mix coverage and the pedev audit count)

Two derivation orders, deliberately distinct:

  MIX QUOTA      quota = round(refBase × fraction) + mixAdjustment, where
                 refBase = natural positivation of the reference category
                 PLUS that category's own adjustment. The base is rebuilt
                 from the natural count; overrides on the reference do not
                 feed it.

  AUDIT QUOTA    quota = round(refAdjusted × fraction), where refAdjusted
                 is the reference category's positivation AFTER adjustments
                 were applied. Recomputed last, so an adjustment on the
                 reference moves the audit quota too.

Conflating the two changes results; keep them separate.
*/
package goals

import (
	"math"

	"github.com/warp/sales-engine/category"
)

// ExcludedSellerCode is always forced to a zero quota regardless of its
// computed base. Preserved business exception (key-account counter seller),
// not a bug.
const ExcludedSellerCode = "1001"

// RoundFraction is the shared rounding step for quota derivations.
func RoundFraction(base int, fraction float64) int {
	return int(math.Round(float64(base) * fraction))
}

// MixQuota derives a mix quota for an entity from the reference category's
// natural positivation. refNatural must be the pre-adjustment count;
// refKey is the reference category's adjustment key, whose delta rebuilds
// the base.
func (s *Store) MixQuota(def *category.Definition, refKey category.AdjustmentKey, sellerCode, entity string, refNatural int) int {
	if sellerCode == ExcludedSellerCode {
		return 0
	}
	base := refNatural + s.Adjustment(refKey, entity)
	return RoundFraction(base, def.Fraction) + s.MixAdjustment(def.ID, entity)
}

// GroupMixQuota derives a mix quota at a rollup level above the seller.
// The base and the adjustments are summed over member sellers, excluding
// the quota-excluded seller from both.
func (s *Store) GroupMixQuota(def *category.Definition, refKey category.AdjustmentKey, members []GroupMember) int {
	base := 0
	adj := 0
	for _, m := range members {
		if m.Code == ExcludedSellerCode {
			continue
		}
		base += m.RefNatural
		base += s.Adjustment(refKey, m.Entity)
		adj += s.MixAdjustment(def.ID, m.Entity)
	}
	return RoundFraction(base, def.Fraction) + adj
}

// GroupMember carries one seller's contribution to a group quota base.
type GroupMember struct {
	Code       string
	Entity     string
	RefNatural int
}

// AuditQuota derives the audit count from the reference category's
// already-adjusted positivation value.
func AuditQuota(def *category.Definition, refAdjusted int) int {
	return RoundFraction(refAdjusted, def.Fraction)
}
