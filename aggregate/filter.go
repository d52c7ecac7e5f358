package aggregate

import (
	"sort"

	"github.com/warp/sales-engine/category"
	"github.com/warp/sales-engine/columnar"
)

// Filter selects which clients and records participate in a computation.
// Zero values mean "no restriction". Sale types are the only dimension
// that influences classification; everything else is applied downstream
// on every recomputation.
type Filter struct {
	Sellers     []string // seller ids
	Supervisors []string // supervisor display names
	ClientID    string
	SaleTypes   []string // default: the revenue types
	Branch      string
	City        string
	NetworkOnly bool
}

func (f *Filter) saleTypes() []string {
	if len(f.SaleTypes) == 0 {
		return []string{"1", "9"}
	}
	return f.SaleTypes
}

// ownerOf resolves the seller owning a client, falling back to the
// sentinel unassigned bucket.
func ownerOf(store *columnar.Store, c *columnar.Client) (id, name string) {
	id = c.PrimarySeller()
	if id == "" {
		return "", columnar.UnassignedSeller
	}
	return id, store.SellerName(id)
}

// matchClient applies the client-level filter dimensions.
func (f *Filter) matchClient(store *columnar.Store, c *columnar.Client) bool {
	if f.ClientID != "" && c.ID != columnar.NormalizeKey(f.ClientID) {
		return false
	}
	if f.City != "" && category.Fold(c.City) != category.Fold(f.City) {
		return false
	}
	if f.NetworkOnly && c.Network == "" {
		return false
	}
	sellerID, _ := ownerOf(store, c)
	if len(f.Sellers) > 0 && !containsKey(f.Sellers, sellerID) {
		return false
	}
	if len(f.Supervisors) > 0 {
		sup := columnar.UnassignedSupervisor
		if sellerID != "" {
			sup = store.SupervisorFor(sellerID)
		}
		if !contains(f.Supervisors, sup) {
			return false
		}
	}
	return true
}

// matchRecord applies the record-level dimensions other than sale type
// (which the classification cache already enforced).
func (f *Filter) matchRecord(rec *columnar.SalesRecord) bool {
	return f.Branch == "" || rec.Branch == f.Branch
}

// selectClients returns the filtered client set in a deterministic order,
// so repeated computations over an unchanged store are bit-identical.
func (f *Filter) selectClients(store *columnar.Store) []*columnar.Client {
	out := make([]*columnar.Client, 0, len(store.Clients))
	for _, c := range store.Clients {
		if f.matchClient(store, c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsKey(set []string, v string) bool {
	for _, s := range set {
		if columnar.NormalizeKey(s) == v {
			return true
		}
	}
	return false
}
