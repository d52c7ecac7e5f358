/*
dto.go - request/response data structures

PURPOSE:
  Wire types for the HTTP surface. Domain values use shopspring decimals
  internally; DTOs expose plain float64 so frontend JSON stays ordinary
  numbers. Conversion happens here and only here.

VALIDATION:
  Request DTOs carry go-playground/validator tags and are checked in the
  handlers before any domain call.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sales-engine/aggregate"
	"github.com/warp/sales-engine/category"
	"github.com/warp/sales-engine/columnar"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestRequest carries one complete dataset. Rows are raw column maps as
// produced by the upstream export; normalization happens server-side.
type IngestRequest struct {
	Sales   []columnar.RawRow `json:"sales" validate:"required,min=1"`
	Clients []columnar.RawRow `json:"clients"`
}

// IngestResponse reports the rebuilt dataset's shape.
type IngestResponse struct {
	Records     int    `json:"records"`
	Clients     int    `json:"clients"`
	Sellers     int    `json:"sellers"`
	StockLines  int    `json:"stock_lines"`
	DroppedRows int    `json:"dropped_rows"`
	LastSale    string `json:"last_sale,omitempty"`
	TookMs      int64  `json:"took_ms"`
}

// =============================================================================
// AGGREGATION
// =============================================================================

// AggregateRequest selects the slice of the dataset to compute.
type AggregateRequest struct {
	Sellers     []string `json:"sellers"`
	Supervisors []string `json:"supervisors"`
	ClientID    string   `json:"client_id"`
	SaleTypes   []string `json:"sale_types"`
	Branch      string   `json:"branch"`
	City        string   `json:"city"`
	NetworkOnly bool     `json:"network_only"`
	Categories  []string `json:"categories"`
}

func (r *AggregateRequest) filter() aggregate.Filter {
	return aggregate.Filter{
		Sellers:     r.Sellers,
		Supervisors: r.Supervisors,
		ClientID:    r.ClientID,
		SaleTypes:   r.SaleTypes,
		Branch:      r.Branch,
		City:        r.City,
		NetworkOnly: r.NetworkOnly,
	}
}

func (r *AggregateRequest) categories() []category.ID {
	out := make([]category.ID, 0, len(r.Categories))
	for _, c := range r.Categories {
		out = append(out, category.ID(c))
	}
	return out
}

// CellDTO mirrors aggregate.Cell with JSON-friendly numbers.
type CellDTO struct {
	MetaFat    float64            `json:"meta_fat"`
	MetaVol    float64            `json:"meta_vol"`
	AvgFat     float64            `json:"avg_fat"`
	AvgVol     float64            `json:"avg_vol"`
	NaturalPos int                `json:"natural_pos"`
	MetaPos    int                `json:"meta_pos"`
	Monthly    map[string]float64 `json:"monthly,omitempty"`
	AvgMix     float64            `json:"avg_mix,omitempty"`
	MetaMix    int                `json:"meta_mix,omitempty"`
	ShareFat   float64            `json:"share_fat,omitempty"`
	ShareVol   float64            `json:"share_vol,omitempty"`
}

// ClientRowDTO is one client line of the rollup tree.
type ClientRowDTO struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	SellerID        string             `json:"seller_id"`
	SellerName      string             `json:"seller_name"`
	Cells           map[string]CellDTO `json:"cells"`
	ActiveMonths    int                `json:"active_months"`
	ActivePrevMonth bool               `json:"active_prev_month"`
	PrevFat         float64            `json:"prev_fat"`
	PrevVol         float64            `json:"prev_vol"`
}

// SellerRowDTO is one seller line with its clients.
type SellerRowDTO struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Supervisor string             `json:"supervisor"`
	Cells      map[string]CellDTO `json:"cells"`
	Clients    []ClientRowDTO     `json:"clients,omitempty"`
}

// SupervisorRowDTO is one supervisor group.
type SupervisorRowDTO struct {
	Name    string             `json:"name"`
	Sellers []SellerRowDTO     `json:"sellers"`
	Totals  map[string]CellDTO `json:"totals"`
}

// AggregateResponse is the full rollup tree.
type AggregateResponse struct {
	QuarterMonths []string           `json:"quarter_months"`
	Supervisors   []SupervisorRowDTO `json:"supervisors"`
	Global        map[string]CellDTO `json:"global"`
	Unclassified  int                `json:"unclassified"`
}

func toCellDTO(c *aggregate.Cell) CellDTO {
	dto := CellDTO{
		MetaFat:    c.MetaFat.InexactFloat64(),
		MetaVol:    c.MetaVol.InexactFloat64(),
		AvgFat:     c.AvgFat.InexactFloat64(),
		AvgVol:     c.AvgVol.InexactFloat64(),
		NaturalPos: c.NaturalPos,
		MetaPos:    c.MetaPos,
		AvgMix:     c.AvgMix.InexactFloat64(),
		MetaMix:    c.MetaMix,
		ShareFat:   c.ShareFat.InexactFloat64(),
		ShareVol:   c.ShareVol.InexactFloat64(),
	}
	if len(c.Monthly) > 0 {
		dto.Monthly = make(map[string]float64, len(c.Monthly))
		for k, v := range c.Monthly {
			dto.Monthly[k] = v.InexactFloat64()
		}
	}
	return dto
}

func toCellMapDTO(cells map[category.ID]*aggregate.Cell) map[string]CellDTO {
	out := make(map[string]CellDTO, len(cells))
	for id, c := range cells {
		out[string(id)] = toCellDTO(c)
	}
	return out
}

func toAggregateResponse(r *aggregate.Rollup) AggregateResponse {
	resp := AggregateResponse{
		QuarterMonths: r.QuarterMonths,
		Supervisors:   make([]SupervisorRowDTO, 0, len(r.Supervisors)),
		Global:        toCellMapDTO(r.Global),
		Unclassified:  r.Unclassified,
	}
	for _, g := range r.Supervisors {
		gd := SupervisorRowDTO{
			Name:    g.Name,
			Totals:  toCellMapDTO(g.Totals),
			Sellers: make([]SellerRowDTO, 0, len(g.Sellers)),
		}
		for _, sr := range g.Sellers {
			sd := SellerRowDTO{
				ID:         sr.ID,
				Name:       sr.Name,
				Supervisor: sr.Supervisor,
				Cells:      toCellMapDTO(sr.Cells),
				Clients:    make([]ClientRowDTO, 0, len(sr.Clients)),
			}
			for _, cr := range sr.Clients {
				sd.Clients = append(sd.Clients, ClientRowDTO{
					ID:              cr.ID,
					Name:            cr.Name,
					SellerID:        cr.SellerID,
					SellerName:      cr.SellerName,
					Cells:           toCellMapDTO(cr.Cells),
					ActiveMonths:    cr.ActiveMonths,
					ActivePrevMonth: cr.ActivePrevMonth,
					PrevFat:         cr.PrevFat.InexactFloat64(),
					PrevVol:         cr.PrevVol.InexactFloat64(),
				})
			}
			gd.Sellers = append(gd.Sellers, sd)
		}
		resp.Supervisors = append(resp.Supervisors, gd)
	}
	return resp
}

// =============================================================================
// GOAL INPUT
// =============================================================================

// AdjustmentRequest nudges a positivation count at one display entity.
type AdjustmentRequest struct {
	Key    string `json:"key" validate:"required"`
	Entity string `json:"entity" validate:"required"`
	Delta  int    `json:"delta"`
	Mix    bool   `json:"mix"` // true targets a mix quota instead of a count
}

// OverrideRequest pins a resolved value for one (entity, metric, key).
type OverrideRequest struct {
	Entity string  `json:"entity" validate:"required"`
	Metric string  `json:"metric" validate:"required,oneof=fat vol pos"`
	Key    string  `json:"key" validate:"required"`
	Value  float64 `json:"value"`
	Clear  bool    `json:"clear"`
}

// ClientGoalRequest stores one client's target for one leaf category.
type ClientGoalRequest struct {
	ClientID string  `json:"client_id" validate:"required"`
	Category string  `json:"category" validate:"required"`
	Fat      float64 `json:"fat"`
	Vol      float64 `json:"vol"`
}

// =============================================================================
// REDISTRIBUTION
// =============================================================================

// RedistributionRequest rebalances a monthly target over its weeks.
// Month anchors the calendar split; AsOf defaults to the current time.
type RedistributionRequest struct {
	Total    float64   `json:"total" validate:"required,gt=0"`
	Month    string    `json:"month" validate:"required,datetime=2006-01"`
	Realized []float64 `json:"realized"`
	AsOf     time.Time `json:"as_of"`
}

// WeekGoalDTO is one week of the redistribution result.
type WeekGoalDTO struct {
	Start       string  `json:"start"`
	End         string  `json:"end"`
	WorkingDays int     `json:"working_days"`
	Goal        float64 `json:"goal"`
}

// RedistributionResponse returns the per-week goals.
type RedistributionResponse struct {
	Weeks []WeekGoalDTO `json:"weeks"`
}

func toDecimals(fs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(fs))
	for i, f := range fs {
		out[i] = decimal.NewFromFloat(f)
	}
	return out
}
