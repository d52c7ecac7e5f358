/*
store.go - Columnar Store construction and indices

PURPOSE:
  Builds the engine's in-memory dataset from raw upstream rows:
  - normalizes and types every sales row (dropping header echoes and
    stock-only lines)
  - indexes records byClient / bySeller / byOrder
  - derives seller and supervisor identity from the most recent record
    observed per seller id
  - parses the client master table

REBUILD MODEL:
  A Store is built wholesale and never mutated afterwards. Re-ingestion
  produces a brand new Store that replaces the old one in a single swap, so
  readers never observe a partially built dataset (see ingest package).
*/
package columnar

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrEmptyIngestion is returned when an ingestion yields no usable sales
// rows at all. Individual bad rows are dropped silently; only a wholly
// unusable ingestion is an error.
var ErrEmptyIngestion = errors.New("columnar: ingestion produced no usable records")

// Counter-sale exception: sales for this client by this seller are rerouted
// to the sentinel supervisor and skipped by the portfolio passes. Preserved
// business rule, not a data bug.
const (
	counterClientID = "9569"
	counterSellerID = "53"
)

// Store is the normalized, indexed dataset. All index slices hold offsets
// into Records.
type Store struct {
	Records []SalesRecord

	ByClient map[string][]int
	BySeller map[string][]int
	ByOrder  map[string][]int

	Clients     map[string]*Client
	Sellers     map[string]Seller
	Supervisors map[string]Supervisor

	StockLines []StockLine

	// LastSaleDate is the max order date across revenue-carrying rows and
	// acts as "today" for trailing-window math.
	LastSaleDate time.Time

	// DroppedRows counts header echoes and unusable rows removed during
	// ingestion, for operator diagnostics.
	DroppedRows int
}

// IsCounterSale reports whether a record falls under the counter-sale
// exception for the given client.
func IsCounterSale(clientID, sellerID string) bool {
	return clientID == counterClientID && NormalizeKey(sellerID) == counterSellerID
}

// Build constructs a Store from raw sales rows and the client master table.
func Build(salesRows []RawRow, clientRows []RawRow) (*Store, error) {
	s := &Store{
		ByClient:    make(map[string][]int),
		BySeller:    make(map[string][]int),
		ByOrder:     make(map[string][]int),
		Clients:     make(map[string]*Client),
		Sellers:     make(map[string]Seller),
		Supervisors: make(map[string]Supervisor),
	}

	identity := newIdentityTracker()

	for _, row := range salesRows {
		rec, stock, ok := normalizeRow(row)
		if stock != nil {
			s.StockLines = append(s.StockLines, *stock)
			continue
		}
		if !ok {
			s.DroppedRows++
			continue
		}

		idx := len(s.Records)
		s.Records = append(s.Records, rec)
		s.ByClient[rec.ClientID] = append(s.ByClient[rec.ClientID], idx)
		s.BySeller[rec.SellerID] = append(s.BySeller[rec.SellerID], idx)
		if rec.OrderID != "" {
			s.ByOrder[rec.OrderID] = append(s.ByOrder[rec.OrderID], idx)
		}

		identity.observe(rec)

		if rec.IsRevenue() && rec.OrderDate.After(s.LastSaleDate) {
			s.LastSaleDate = rec.OrderDate
		}
	}

	if len(s.Records) == 0 {
		return nil, ErrEmptyIngestion
	}

	s.Sellers, s.Supervisors = identity.resolve()

	for _, row := range clientRows {
		c := parseClient(row)
		if c == nil {
			s.DroppedRows++
			continue
		}
		s.Clients[c.ID] = c
	}

	return s, nil
}

// normalizeRow turns one raw row into a SalesRecord. The third return is
// false when the row is a header echo or otherwise unusable; stock-only
// lines come back as a StockLine instead.
func normalizeRow(row RawRow) (SalesRecord, *StockLine, bool) {
	if looksLikeHeader(row) {
		return SalesRecord{}, nil, false
	}

	clientID := NormalizeKey(row[ColClientID])
	sellerID := NormalizeKey(row[ColSellerID])
	product := strings.TrimSpace(row[ColProduct])
	folder := supplierFolder(row[ColSupplierNote], row[ColSupplier])

	// Rows with a product but no seller are stock snapshots, not sales.
	if product != "" && (sellerID == "" || sellerID == "0") {
		return SalesRecord{}, &StockLine{
			Product:        product,
			Description:    strings.TrimSpace(row[ColDescription]),
			Supplier:       strings.TrimSpace(row[ColSupplier]),
			SupplierFolder: folder,
			SupplierCode:   strings.TrimSpace(row[ColSupplierCode]),
			Branch:         normalizeBranch(row[ColBranch]),
			Cases:          ParseAmount(row["ESTOQUECX"]),
		}, false
	}

	if clientID == "" || sellerID == "" {
		return SalesRecord{}, nil, false
	}

	orderDate := ParseDate(row[ColOrderDate])
	shipDate := ParseDate(row[ColShipDate])
	// Order dates occasionally lag behind the ship date in the extract;
	// the ship month is authoritative in that case.
	if !orderDate.IsZero() && !shipDate.IsZero() {
		if orderDate.Year() < shipDate.Year() ||
			(orderDate.Year() == shipDate.Year() && orderDate.Month() < shipDate.Month()) {
			orderDate = shipDate
		}
	}

	saleType := strings.TrimSpace(row[ColSaleType])
	if saleType == "" {
		saleType = "N/A"
	}
	revenue := ParseAmount(row[ColRevenue])
	bonus := ParseAmount(row[ColBonus])
	if !RevenueSaleTypes[saleType] {
		// Non-revenue sale types carry their amount in the bonus bucket.
		bonus = bonus.Add(revenue)
		revenue = decimal.Zero
	}

	rec := SalesRecord{
		OrderID:        NormalizeKey(row[ColOrderID]),
		ClientID:       clientID,
		SellerID:       sellerID,
		SellerName:     strings.TrimSpace(row[ColSellerName]),
		SupervisorID:   NormalizeKey(row[ColSupervisorID]),
		SupervisorName: normalizeSupervisor(row[ColSupervisor]),
		Product:        product,
		Description:    strings.TrimSpace(row[ColDescription]),
		SupplierCode:   strings.TrimSpace(row[ColSupplierCode]),
		SupplierFolder: folder,
		SaleType:       saleType,
		Revenue:        revenue,
		Bonus:          bonus,
		Weight:         ParseAmount(row[ColWeight]),
		OrderDate:      orderDate,
		ShipDate:       shipDate,
		Branch:         normalizeBranch(row[ColBranch]),
	}

	if IsCounterSale(rec.ClientID, rec.SellerID) {
		rec.SupervisorName = UnassignedSupervisor
		rec.SupervisorID = UnassignedSupervisorID
	}

	return rec, nil, true
}

func normalizeSupervisor(name string) string {
	name = strings.TrimSpace(name)
	upper := strings.ToUpper(name)
	if upper == "BALCAO" || upper == "BALCÃO" {
		return "BALCAO"
	}
	return name
}

// identityTracker derives seller/supervisor identity from the most recent
// record per seller id.
type identityTracker struct {
	lastSeen map[string]time.Time
	latest   map[string]SalesRecord
}

func newIdentityTracker() *identityTracker {
	return &identityTracker{
		lastSeen: make(map[string]time.Time),
		latest:   make(map[string]SalesRecord),
	}
}

func (it *identityTracker) observe(rec SalesRecord) {
	// The counter seller keeps no identity of its own.
	if rec.SellerID == "1001" {
		return
	}
	if rec.OrderDate.IsZero() {
		return
	}
	if last, ok := it.lastSeen[rec.SellerID]; !ok || !rec.OrderDate.Before(last) {
		it.lastSeen[rec.SellerID] = rec.OrderDate
		it.latest[rec.SellerID] = rec
	}
}

func (it *identityTracker) resolve() (map[string]Seller, map[string]Supervisor) {
	sellers := make(map[string]Seller, len(it.latest))
	supervisors := make(map[string]Supervisor)
	for id, rec := range it.latest {
		sellers[id] = Seller{
			ID:           id,
			Name:         rec.SellerName,
			SupervisorID: rec.SupervisorID,
			Supervisor:   rec.SupervisorName,
		}
		if rec.SupervisorName != "" {
			supervisors[rec.SupervisorID] = Supervisor{ID: rec.SupervisorID, Name: rec.SupervisorName}
		}
	}
	return sellers, supervisors
}

// Client master column aliases, in lookup order.
var clientIDAliases = []string{"Código", "CODIGO", "Codigo", "Cod. Cliente", "CODCLI", "CodCliente", "codigo_cliente"}

func clientField(row RawRow, aliases ...string) string {
	for _, a := range aliases {
		if v, ok := row[a]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	// Tolerate casing/padding drift in the header itself.
	for k, v := range row {
		for _, a := range aliases {
			if strings.EqualFold(strings.TrimSpace(k), a) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func parseClient(row RawRow) *Client {
	id := NormalizeKey(clientField(row, clientIDAliases...))
	if id == "" || forbiddenTokens[strings.ToUpper(id)] {
		return nil
	}

	var sellers []string
	for _, part := range strings.FieldsFunc(clientField(row, "RCA", "RCAS", "Vendedores"), func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	}) {
		if key := NormalizeKey(part); key != "" {
			sellers = append(sellers, key)
		}
	}

	return &Client{
		ID:           id,
		Name:         clientField(row, "Cliente", "Nome"),
		TradeName:    clientField(row, "Fantasia"),
		LegalName:    clientField(row, "Razão Social", "Razao Social"),
		Sellers:      sellers,
		City:         clientField(row, "Cidade", "Município", "Municipio"),
		Neighborhood: clientField(row, "Bairro"),
		Network:      clientField(row, "Rede"),
		RegisteredAt: ParseDate(clientField(row, "Dt.Cadastro", "Data Cadastro")),
		LastPurchase: ParseDate(clientField(row, "Última Compra", "Ultima Compra")),
	}
}

// SellerName resolves a seller id to its display name, falling back to the
// raw code when identity was never observed.
func (s *Store) SellerName(id string) string {
	if seller, ok := s.Sellers[id]; ok && seller.Name != "" {
		return seller.Name
	}
	return id
}

// SupervisorFor resolves the supervisor display name for a seller id.
func (s *Store) SupervisorFor(sellerID string) string {
	if seller, ok := s.Sellers[sellerID]; ok && seller.Supervisor != "" {
		return seller.Supervisor
	}
	return "N/A"
}
