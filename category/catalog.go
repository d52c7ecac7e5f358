/*
Package category defines the product category catalog and the record
classifier.

KEY CONCEPTS:
  - Leaf categories: directly classified from a record's supplier code and,
    where one supplier spans several brands, a keyword match against the
    free-text description.
  - Aggregate categories: derived from member categories, never from raw
    records.
  - Derived-quota categories: count targets computed from a reference
    category's positivation base (see goals package).

Classification order is data, not control flow: the catalog emits an
ordered rule list and a single dispatch function evaluates it
first-match-wins (classifier.go).
*/
package category

// ID identifies a category. Leaf ids double as the stored-goal keys in
// persisted snapshots.
type ID string

// Kind discriminates how a category's metrics are produced.
type Kind string

const (
	KindLeaf         Kind = "leaf"
	KindAggregate    Kind = "aggregate"
	KindDerivedQuota Kind = "derived-quota"
)

// Catalog ids.
const (
	Extrusados     ID = "707"
	NaoExtrusados  ID = "708"
	Torcida        ID = "752"
	Toddynho       ID = "1119_TODDYNHO"
	Toddy          ID = "1119_TODDY"
	QuakerKerococo ID = "1119_QUAKER_KEROCOCO"
	TotalElma      ID = "total_elma"
	TotalFoods     ID = "total_foods"
	Geral          ID = "geral"
	MixSalty       ID = "mix_salty"
	MixFoods       ID = "mix_foods"
	Pedev          ID = "pedev"
)

// AdjustmentKey groups leaf categories for manual count adjustments. The
// key set is closed: the six leaf keys plus the three line-level keys.
type AdjustmentKey string

const (
	AdjustElmaAll    AdjustmentKey = "ELMA_ALL"
	AdjustFoodsAll   AdjustmentKey = "FOODS_ALL"
	AdjustPepsicoAll AdjustmentKey = "PEPSICO_ALL"
)

// Definition describes one catalog entry.
type Definition struct {
	ID    ID
	Label string
	Kind  Kind

	// Leaf classification rule.
	Supplier string
	Keywords []string // ordered, first-match-wins within the supplier

	// Aggregate membership (ids of leaves or other aggregates).
	Members []ID

	// AdjustKey is the adjustment bucket this category reads at display
	// time. Leaves use their own id.
	AdjustKey AdjustmentKey

	// Derived-quota parameters (see goals.QuotaRules).
	Fraction float64
	RefBase  ID
}

// Catalog is an ordered category set with id lookup.
type Catalog struct {
	Defs  []Definition
	byID  map[ID]*Definition
}

// Default returns the production catalog: the Elma salty leaves, the 1119
// Foods brand leaves, their line aggregates, the overall aggregate and the
// derived quotas.
func Default() *Catalog {
	defs := []Definition{
		{ID: TotalElma, Label: "TOTAL ELMA", Kind: KindAggregate, Members: []ID{Extrusados, NaoExtrusados, Torcida}, AdjustKey: AdjustElmaAll},
		{ID: Extrusados, Label: "EXTRUSADOS", Kind: KindLeaf, Supplier: "707", AdjustKey: AdjustmentKey(Extrusados)},
		{ID: NaoExtrusados, Label: "NÃO EXTRUSADOS", Kind: KindLeaf, Supplier: "708", AdjustKey: AdjustmentKey(NaoExtrusados)},
		{ID: Torcida, Label: "TORCIDA", Kind: KindLeaf, Supplier: "752", AdjustKey: AdjustmentKey(Torcida)},
		{ID: TotalFoods, Label: "TOTAL FOODS", Kind: KindAggregate, Members: []ID{Toddynho, Toddy, QuakerKerococo}, AdjustKey: AdjustFoodsAll},
		// TODDYNHO must be tested before TODDY: every TODDYNHO description
		// also contains the substring TODDY.
		{ID: Toddynho, Label: "TODDYNHO", Kind: KindLeaf, Supplier: "1119", Keywords: []string{"TODDYNHO"}, AdjustKey: AdjustmentKey(Toddynho)},
		{ID: Toddy, Label: "TODDY", Kind: KindLeaf, Supplier: "1119", Keywords: []string{"TODDY"}, AdjustKey: AdjustmentKey(Toddy)},
		{ID: QuakerKerococo, Label: "QUAKER / KEROCOCO", Kind: KindLeaf, Supplier: "1119", Keywords: []string{"QUAKER", "KEROCOCO"}, AdjustKey: AdjustmentKey(QuakerKerococo)},
		{ID: Geral, Label: "GERAL", Kind: KindAggregate, Members: []ID{TotalElma, TotalFoods}, AdjustKey: AdjustPepsicoAll},
		{ID: MixSalty, Label: "MIX SALTY", Kind: KindDerivedQuota, Fraction: 0.50, RefBase: TotalElma},
		{ID: MixFoods, Label: "MIX FOODS", Kind: KindDerivedQuota, Fraction: 0.30, RefBase: TotalElma},
		{ID: Pedev, Label: "AUDITORIA PEDEV", Kind: KindDerivedQuota, Fraction: 0.90, RefBase: TotalElma},
	}
	return New(defs)
}

// New builds a catalog from an ordered definition list.
func New(defs []Definition) *Catalog {
	c := &Catalog{Defs: defs, byID: make(map[ID]*Definition, len(defs))}
	for i := range c.Defs {
		c.byID[c.Defs[i].ID] = &c.Defs[i]
	}
	return c
}

// Get returns the definition for an id, or nil.
func (c *Catalog) Get(id ID) *Definition {
	return c.byID[id]
}

// Leaves returns the leaf definitions in catalog order.
func (c *Catalog) Leaves() []*Definition {
	var out []*Definition
	for i := range c.Defs {
		if c.Defs[i].Kind == KindLeaf {
			out = append(out, &c.Defs[i])
		}
	}
	return out
}

// LeafMembers resolves a category to its constituent leaf ids, flattening
// nested aggregates. A leaf resolves to itself.
func (c *Catalog) LeafMembers(id ID) []ID {
	def := c.byID[id]
	if def == nil {
		return nil
	}
	if def.Kind == KindLeaf {
		return []ID{def.ID}
	}
	var out []ID
	for _, m := range def.Members {
		out = append(out, c.LeafMembers(m)...)
	}
	return out
}

// Suppliers returns the set of supplier codes covered by leaf rules.
func (c *Catalog) Suppliers() map[string]bool {
	out := make(map[string]bool)
	for _, d := range c.Leaves() {
		out[d.Supplier] = true
	}
	return out
}
