/*
Package columnar holds the normalized in-memory dataset the engine computes
over: immutable sales facts plus the client/seller/supervisor master data
derived from them, indexed for per-entity traversal.

KEY CONCEPTS IN THIS FILE (types.go):
  - RawRow: one untyped row as delivered by the upstream service
  - SalesRecord: an immutable, normalized sales fact
  - Client / Seller / Supervisor: master entities

DESIGN PRINCIPLES:
  1. Immutability: records are written once at ingestion and never mutated,
     except for the documented branch/counter-sale reassignment pass that
     runs inside ingestion itself.
  2. Precision: decimal.Decimal for revenue, bonus and weight so rollups sum
     exactly.
  3. Identity drift: sellers and supervisors are derived from the most
     recent record observed for each seller id, not from a master file.

SEE ALSO:
  - normalize.go: key/value normalization and header-echo detection
  - store.go: Store construction and indices
*/
package columnar

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRow is one row from the upstream service, keyed by the ERP column
// names (CODCLI, CODUSUR, VLVENDA, ...). Values are untrimmed strings.
type RawRow map[string]string

// Upstream column names for sales/history rows.
const (
	ColOrderID      = "PEDIDO"
	ColClientID     = "CODCLI"
	ColSellerID     = "CODUSUR"
	ColSellerName   = "NOME"
	ColSupervisor   = "SUPERV"
	ColSupervisorID = "CODSUPERVISOR"
	ColProduct      = "PRODUTO"
	ColDescription  = "DESCRICAO"
	ColSupplier     = "FORNECEDOR"
	ColSupplierNote = "OBSERVACAOFOR"
	ColSupplierCode = "CODFOR"
	ColQuantity     = "QTVENDA"
	ColRevenue      = "VLVENDA"
	ColBonus        = "VLBONIFIC"
	ColWeight       = "TOTPESOLIQ"
	ColSaleType     = "TIPOVENDA"
	ColBranch       = "FILIAL"
	ColOrderDate    = "DTPED"
	ColShipDate     = "DTSAIDA"
)

// Sale-type codes that count as revenue. Every other code moves its revenue
// amount into the bonus column at ingestion and contributes weight only.
var RevenueSaleTypes = map[string]bool{"1": true, "9": true}

// SalesRecord is one immutable sales fact.
type SalesRecord struct {
	OrderID        string
	ClientID       string
	SellerID       string
	SellerName     string
	SupervisorID   string
	SupervisorName string
	Product        string
	Description    string
	SupplierCode   string
	SupplierFolder string // derived folder: PEPSICO or MULTIMARCAS
	SaleType       string
	Revenue        decimal.Decimal
	Bonus          decimal.Decimal
	Weight         decimal.Decimal
	OrderDate      time.Time // zero when the upstream date was unparseable
	ShipDate       time.Time
	Branch         string
}

// IsRevenue reports whether the record's sale type counts toward revenue.
func (r *SalesRecord) IsRevenue() bool {
	return RevenueSaleTypes[r.SaleType]
}

// MonthKey returns the record's order month as "YYYY-MM", or "" when the
// order date is unknown.
func (r *SalesRecord) MonthKey() string {
	if r.OrderDate.IsZero() {
		return ""
	}
	return r.OrderDate.Format("2006-01")
}

// StockLine is a sales-file row that carries a product but no seller. These
// are stock snapshots injected upstream and are excluded from aggregation.
type StockLine struct {
	Product        string
	Description    string
	Supplier       string
	SupplierFolder string
	SupplierCode   string
	Branch         string
	Cases          decimal.Decimal
}

// Client is the source of truth for seller ownership. The first entry in
// Sellers is the primary seller; a client with no sellers is routed to the
// sentinel unassigned bucket by the aggregation layer.
type Client struct {
	ID           string
	Name         string
	TradeName    string
	LegalName    string
	Sellers      []string
	City         string
	Neighborhood string
	Network      string
	RegisteredAt time.Time
	LastPurchase time.Time
}

// DisplayName returns the best available client name. The trade name wins
// over the registered name when both are present.
func (c *Client) DisplayName() string {
	switch {
	case c.TradeName != "" && c.TradeName != "N/A":
		return c.TradeName
	case c.Name != "":
		return c.Name
	case c.LegalName != "":
		return c.LegalName
	}
	return "Cliente Sem Nome"
}

// PrimarySeller returns the client's owning seller id, or "" when the
// client has no assignment.
func (c *Client) PrimarySeller() string {
	if len(c.Sellers) == 0 {
		return ""
	}
	return c.Sellers[0]
}

// Seller identity is derived from the most recent record observed for the
// seller id, so names can drift as new data arrives.
type Seller struct {
	ID           string
	Name         string
	SupervisorID string
	Supervisor   string
}

// Supervisor groups sellers for the middle rollup level.
type Supervisor struct {
	ID   string
	Name string
}

// Sentinel bucket for clients without a seller assignment and for the
// rerouted counter sales.
const (
	UnassignedSeller       = "INATIVOS"
	UnassignedSupervisor   = "INATIVOS"
	UnassignedSupervisorID = "99"
)
