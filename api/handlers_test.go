package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sales-engine/api"
	"github.com/warp/sales-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := api.NewHandler(store, zerolog.Nop())
	t.Cleanup(h.Close)

	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var fields map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	return resp, fields
}

func sampleIngestBody() map[string]any {
	mkRow := func(order, client, seller, supplier, desc, revenue, date string) map[string]string {
		return map[string]string{
			"PEDIDO": order, "CODCLI": client, "CODUSUR": seller, "NOME": "JOAO",
			"SUPERV": "CARLOS", "CODSUPERVISOR": "1", "PRODUTO": "111",
			"DESCRICAO": desc, "CODFOR": supplier, "VLVENDA": revenue,
			"TOTPESOLIQ": "2", "TIPOVENDA": "1", "FILIAL": "1",
			"DTPED": date, "DTSAIDA": date,
		}
	}
	return map[string]any{
		"sales": []map[string]string{
			mkRow("1", "10", "5", "707", "RUFFLES 100G", "300,00", "15/03/2024"),
			mkRow("2", "20", "5", "1119", "TODDYNHO 200ML", "90,00", "10/03/2024"),
		},
		"clients": []map[string]string{
			{"Código": "10", "Cliente": "MERCADO A", "RCA": "5"},
			{"Código": "20", "Cliente": "MERCADO B", "RCA": "5"},
		},
	}
}

// =============================================================================
// DATASET LIFECYCLE
// =============================================================================

func TestHealth_ReportsDatasetState(t *testing.T) {
	srv := newTestServer(t)

	resp, fields := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "false", string(fields["dataset_loaded"]))

	doJSON(t, http.MethodPost, srv.URL+"/api/ingest", sampleIngestBody())

	resp, fields = doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "true", string(fields["dataset_loaded"]))
}

func TestIngest_RejectsEmptyPayload(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/ingest", map[string]any{"sales": []map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngest_ReportsDatasetShape(t *testing.T) {
	srv := newTestServer(t)

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/ingest", sampleIngestBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "2", string(fields["records"]))
	assert.JSONEq(t, "2", string(fields["clients"]))
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregate_RequiresADataset(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/aggregate", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAggregate_ReturnsRollupTree(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/api/ingest", sampleIngestBody())

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/aggregate", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var global map[string]struct {
		AvgFat     float64 `json:"avg_fat"`
		NaturalPos int     `json:"natural_pos"`
	}
	require.NoError(t, json.Unmarshal(fields["global"], &global))

	assert.InDelta(t, 100, global["707"].AvgFat, 1e-6)
	assert.InDelta(t, 130, global["geral"].AvgFat, 1e-6)
	assert.Equal(t, 2, global["geral"].NaturalPos)
}

// =============================================================================
// GOALS
// =============================================================================

func TestGoals_SaveLoadDeleteRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	snapshot := map[string]any{
		"month_key": "2024-03",
		"goals_data": map[string]any{
			"clients": map[string]any{
				"10": map[string]any{"707": map[string]float64{"fat": 500, "vol": 40}},
			},
			"targets": map[string]any{
				"ELMA_ALL": map[string]float64{"fat": 9000, "vol": 700},
			},
		},
	}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/goals", snapshot)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields := doJSON(t, http.MethodGet, srv.URL+"/api/goals/2024-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(fields["goals_data"]), "9000")

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/goals/2024-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/goals/2024-03", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGoals_ExportSerializesLiveState(t *testing.T) {
	// GIVEN: A client goal entered through the API
	// WHEN: The live state is exported for a month
	// THEN: The snapshot document carries the goal without persisting it

	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/goals/clients", map[string]any{
		"client_id": "10", "category": "707", "fat": 500, "vol": 40,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields := doJSON(t, http.MethodGet, srv.URL+"/api/goals/export/2024-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"2024-03"`, string(fields["month_key"]))
	assert.Contains(t, string(fields["goals_data"]), "500")

	// Nothing was stored: the month still has no persisted snapshot.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/goals/2024-03", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/goals/export/march", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGoals_SavedGoalsFeedTheRollup(t *testing.T) {
	// GIVEN: An ingested dataset and a saved snapshot with a client goal
	// WHEN: An aggregate runs afterwards
	// THEN: The stored goal shows up as the seller's target

	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/api/ingest", sampleIngestBody())

	doJSON(t, http.MethodPost, srv.URL+"/api/goals", map[string]any{
		"month_key": "2024-03",
		"goals_data": map[string]any{
			"clients": map[string]any{
				"10": map[string]any{"707": map[string]float64{"fat": 500, "vol": 40}},
			},
			"targets": map[string]any{},
		},
	})

	_, fields := doJSON(t, http.MethodPost, srv.URL+"/api/aggregate", map[string]any{})
	var global map[string]struct {
		MetaFat float64 `json:"meta_fat"`
	}
	require.NoError(t, json.Unmarshal(fields["global"], &global))
	assert.InDelta(t, 500, global["707"].MetaFat, 1e-6)
}

func TestGoals_InvalidMonthKeyRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/goals", map[string]any{"month_key": "03/2024"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGoals_AdjustmentEndpointMovesCounts(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/api/ingest", sampleIngestBody())

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/goals/adjustments", map[string]any{
		"key": "ELMA_ALL", "entity": "JOAO", "delta": 4,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, fields := doJSON(t, http.MethodPost, srv.URL+"/api/aggregate", map[string]any{})
	var global map[string]struct {
		MetaPos int `json:"meta_pos"`
	}
	require.NoError(t, json.Unmarshal(fields["global"], &global))
	assert.Equal(t, 5, global["total_elma"].MetaPos, "natural 1 + adjustment 4")
}

// =============================================================================
// REDISTRIBUTION
// =============================================================================

func TestRedistribution_EndpointRebalancesWeeks(t *testing.T) {
	srv := newTestServer(t)

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/redistribution", map[string]any{
		"total":    90000,
		"month":    "2024-03",
		"realized": []float64{0, 10000},
		"as_of":    "2024-03-11T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var weeks []struct {
		WorkingDays int     `json:"working_days"`
		Goal        float64 `json:"goal"`
	}
	require.NoError(t, json.Unmarshal(fields["weeks"], &weeks))
	require.NotEmpty(t, weeks)

	totalWd := 0
	for _, w := range weeks {
		totalWd += w.WorkingDays
	}
	assert.Equal(t, 21, totalWd)
}

func TestRedistribution_RejectsBadMonth(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/redistribution", map[string]any{
		"total": 90000, "month": "march",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
