package flows_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hexflows/tripflow-backend/internal/config"
	"github.com/hexflows/tripflow-backend/internal/flows"
	"github.com/hexflows/tripflow-backend/internal/middleware"
	"github.com/hexflows/tripflow-backend/internal/rpc"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cellA = "882a100d25fffff"
	cellB = "882a100d27fffff"
)

// fakeCaller records the last call and returns canned rows without a database.
type fakeCaller struct {
	rows   []json.RawMessage
	scalar json.RawMessage
	err    error
	calls  int
	fn     string
	params []rpc.Param
}

func (f *fakeCaller) Call(ctx context.Context, fn string, params ...rpc.Param) ([]json.RawMessage, error) {
	f.calls++
	f.fn = fn
	f.params = params
	return f.rows, f.err
}

func (f *fakeCaller) CallScalar(ctx context.Context, fn string, params ...rpc.Param) (json.RawMessage, error) {
	f.calls++
	f.fn = fn
	f.params = params
	return f.scalar, f.err
}

func (f *fakeCaller) param(name string) any {
	for _, p := range f.params {
		if p.Name == name {
			return p.Value
		}
	}
	return "<absent>"
}

func serve(t *testing.T, caller rpc.Caller, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	h := flows.NewHandler(caller, config.Defaults())
	h.Jitter = func() float64 { return 0.5 }
	router := middleware.CORS([]string{"*"})(flows.SetupRoutes(h))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

const tripCountsResult = `{"trip_counts":{"882a100d25fffff":12,"882a100d27fffff":30},"sum_all_values":42,"highest_value":30}`

func TestTripCounts_Success(t *testing.T) {
	caller := &fakeCaller{scalar: json.RawMessage(tripCountsResult)}

	rec := serve(t, caller, http.MethodPost, "/v1/trip-counts",
		`{"target_month":"2024-05","reference_cell_ids":["882A100D25FFFFF","882a100d27fffff","882a100d25fffff"],"analysis_type":"arrivals"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":`+tripCountsResult+`}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Server-Timing"), "rpc;dur=")

	assert.Equal(t, config.DefaultTripFlowsRPC, caller.fn)
	assert.Equal(t, "2024-05-01", caller.param("target_month"))
	assert.Equal(t, "arrivals", caller.param("analysis_type"))
	assert.Equal(t, pq.Array([]string{cellA, cellB}), caller.param("reference_cell_ids"))
}

func TestTripCounts_NoResultIsNull(t *testing.T) {
	rec := serve(t, &fakeCaller{}, http.MethodPost, "/v1/trip-counts",
		`{"target_month":"2024-05-01","reference_cell_ids":[],"analysis_type":"departures"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null}`, rec.Body.String())
}

func TestTripCounts_WrittenMonth(t *testing.T) {
	caller := &fakeCaller{scalar: json.RawMessage(tripCountsResult)}
	rec := serve(t, caller, http.MethodPost, "/v1/trip-counts",
		`{"target_month":"May 2024","reference_cell_ids":[],"analysis_type":"arrivals"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-05-01", caller.param("target_month"))
}

func TestTripCounts_BadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"target_month":`, "Invalid JSON body"},
		{"missing month", `{"reference_cell_ids":[],"analysis_type":"arrivals"}`, "target_month"},
		{"missing cells", `{"target_month":"2024-05-01","analysis_type":"arrivals"}`, "reference_cell_ids"},
		{"missing type", `{"target_month":"2024-05-01","reference_cell_ids":[]}`, "analysis_type"},
		{"unparseable month", `{"target_month":"sometime in May","reference_cell_ids":[],"analysis_type":"arrivals"}`, "accepted: YYYY-MM-DD"},
		{"bad type", `{"target_month":"2024-05-01","reference_cell_ids":[],"analysis_type":"loops"}`, "analysis_type"},
		{"bad cell", `{"target_month":"2024-05-01","reference_cell_ids":["nope"],"analysis_type":"arrivals"}`, "H3"},
		{"zero cell", `{"target_month":"2024-05-01","reference_cell_ids":["000000000000000"],"analysis_type":"arrivals"}`, "H3"},
		{"all-f cell", `{"target_month":"2024-05-01","reference_cell_ids":["fffffffffffffff"],"analysis_type":"arrivals"}`, "H3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := &fakeCaller{}
			rec := serve(t, caller, http.MethodPost, "/v1/trip-counts", tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorBody(t, rec), tc.want)
			assert.Zero(t, caller.calls, "rpc must not run on invalid input")
		})
	}
}

func TestTripCounts_RPCError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("function analyze_trip_flows_v3 does not exist")}
	rec := serve(t, caller, http.MethodPost, "/v1/trip-counts",
		`{"target_month":"2024-05-01","reference_cell_ids":["882a100d25fffff"],"analysis_type":"arrivals"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorBody(t, rec), "does not exist")
}

func TestEdgeFunctions_MethodNotAllowed(t *testing.T) {
	for _, path := range []string{"/v1/trip-counts", "/v2/sum-monthly", "/v2/transition"} {
		rec := serve(t, &fakeCaller{}, http.MethodGet, path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.Equal(t, "Method not allowed", errorBody(t, rec))
	}
}

func TestEdgeFunctions_Preflight(t *testing.T) {
	caller := &fakeCaller{}
	rec := serve(t, caller, http.MethodOptions, "/v2/sum-monthly", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, caller.calls)
}

func TestSumMonthly_Success(t *testing.T) {
	caller := &fakeCaller{rows: []json.RawMessage{json.RawMessage(`{"date_month":"2023-01-01","total_count":40}`)}}
	rec := serve(t, caller, http.MethodPost, "/v2/sum-monthly",
		`{"origin_cell_ids":["882a100d25fffff"],"year":2023}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":[{"date_month":"2023-01-01","total_count":40}]}`, rec.Body.String())

	assert.Equal(t, config.DefaultMonthlyAggRPC, caller.fn)
	assert.Equal(t, pq.Array([]string{cellA}), caller.param("p_origin_cells"))
	assert.Equal(t, pq.Array([]string{}), caller.param("p_destination_cells"), "absent side is an empty array, not NULL")
	assert.Equal(t, 2023, caller.param("p_year"))
}

func TestSumMonthly_YearAsString(t *testing.T) {
	caller := &fakeCaller{rows: []json.RawMessage{}}
	rec := serve(t, caller, http.MethodPost, "/v2/sum-monthly",
		`{"destination_cell_ids":["882a100d25fffff"],"year":"2023"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2023, caller.param("p_year"))
	assert.Equal(t, pq.Array([]string{}), caller.param("p_origin_cells"))
}

func TestSumMonthly_BadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no cells", `{"year":2023}`, "non-empty"},
		{"both empty", `{"origin_cell_ids":[],"destination_cell_ids":[],"year":2023}`, "non-empty"},
		{"missing year", `{"destination_cell_ids":["882a100d25fffff"]}`, "year"},
		{"zero year", `{"destination_cell_ids":["882a100d25fffff"],"year":0}`, "year"},
		{"non-numeric year", `{"destination_cell_ids":["882a100d25fffff"],"year":"next"}`, "year must be"},
		{"fractional year", `{"destination_cell_ids":["882a100d25fffff"],"year":2023.5}`, "year must be"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := &fakeCaller{}
			rec := serve(t, caller, http.MethodPost, "/v2/sum-monthly", tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorBody(t, rec), tc.want)
			assert.Zero(t, caller.calls)
		})
	}
}

func TestSumMonthly_RPCError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("timeout")}
	rec := serve(t, caller, http.MethodPost, "/v2/sum-monthly",
		`{"destination_cell_ids":["882a100d25fffff"],"year":2023}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "timeout", errorBody(t, rec))
}

func TestMonthlySeries_ComputesStatistics(t *testing.T) {
	caller := &fakeCaller{rows: monthlyRows(10, 20, 30, 40, 50, 60)}
	rec := serve(t, caller, http.MethodPost, "/v2/monthly-series",
		`{"origin_cell_ids":["882a100d25fffff"],"year":2023,"window":2}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp flows.MonthlySeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 6)
	assert.Equal(t, "2023-01-01", resp.Series.Labels[0])
	assert.Equal(t, 2, resp.Series.Window)
	assert.Equal(t, []float64{10, 15, 25, 35, 45, 55}, resp.Series.Rolling)
	assert.InDelta(t, 35, resp.Series.Bounds.Mean, 1e-9)
	assert.Nil(t, resp.Series.Baseline)
}

func TestMonthlySeries_Baseline(t *testing.T) {
	caller := &fakeCaller{rows: monthlyRows(10, 20, 30, 40)}
	body := `{"origin_cell_ids":["882a100d25fffff"],"year":2023,"baseline":` + monthlyJSON(4, 2, 6, 8) + `}`
	rec := serve(t, caller, http.MethodPost, "/v2/monthly-series", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp flows.MonthlySeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Series.Baseline, 4)
	for i, want := range []float64{20, 10, 30, 40} {
		assert.InDelta(t, want, resp.Series.Baseline[i], 1e-9)
	}
}

func TestMonthlySeries_BadBaselineRows(t *testing.T) {
	caller := &fakeCaller{}
	rec := serve(t, caller, http.MethodPost, "/v2/monthly-series",
		`{"origin_cell_ids":["882a100d25fffff"],"year":2023,"baseline":[{"date_month":"2023-01-01"}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "baseline")
	assert.Zero(t, caller.calls)
}

func TestMonthlySeries_BadOptions(t *testing.T) {
	for _, body := range []string{
		`{"origin_cell_ids":["882a100d25fffff"],"year":2023,"window":40}`,
		`{"origin_cell_ids":["882a100d25fffff"],"year":2023,"std_devs":-1}`,
	} {
		rec := serve(t, &fakeCaller{}, http.MethodPost, "/v2/monthly-series", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestTransition_PlansFadeInAndTween(t *testing.T) {
	caller := &fakeCaller{scalar: json.RawMessage(tripCountsResult)}
	rec := serve(t, caller, http.MethodPost, "/v2/transition",
		`{"target_month":"2024-05-01","reference_cell_ids":["882a100d25fffff"],"analysis_type":"departures",
		  "keyframes":2,"previous":{"882a100d25fffff":4},"frames":3}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, config.DefaultTripFlowsRPC, caller.fn)

	var resp flows.TransitionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.JSONEq(t, tripCountsResult, string(resp.Data))

	plan := resp.Animation
	assert.Equal(t, [2]float64{0, 30}, plan.Scale)
	require.Len(t, plan.Cells, 2)
	assert.Equal(t, cellB, plan.Cells[0].Cell)
	assert.Equal(t, 100.0, plan.Cells[0].DelayMs)
	assert.Equal(t, "#fde725", plan.Cells[0].Color)
	assert.Equal(t, cellA, plan.Cells[1].Cell)
	assert.Equal(t, 900.0, plan.Cells[1].DelayMs)
	require.Len(t, plan.Cells[1].Keyframes, 2)
	assert.Equal(t, "#808080", plan.Cells[1].Keyframes[0].Color)

	require.Len(t, resp.Tween, 3)
	assert.Equal(t, map[string]float64{cellA: 4, cellB: 0}, resp.Tween[0])
	assert.Equal(t, map[string]float64{cellA: 12, cellB: 30}, resp.Tween[2])
}

func TestTransition_ExplicitScale(t *testing.T) {
	caller := &fakeCaller{scalar: json.RawMessage(tripCountsResult)}
	rec := serve(t, caller, http.MethodPost, "/v2/transition",
		`{"target_month":"2024-05-01","reference_cell_ids":[],"analysis_type":"arrivals","scale":[0,1000]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp flows.TransitionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, [2]float64{0, 1000}, resp.Animation.Scale)
	assert.NotEqual(t, "#fde725", resp.Animation.Cells[0].Color)
	assert.Nil(t, resp.Tween)
}

func TestTransition_BadRequests(t *testing.T) {
	base := `"target_month":"2024-05-01","reference_cell_ids":[],"analysis_type":"arrivals"`
	for _, extra := range []string{`"keyframes":1`, `"frames":99`, `"scale":[10,1]`, `"scale":[-1,5]`} {
		caller := &fakeCaller{}
		rec := serve(t, caller, http.MethodPost, "/v2/transition", "{"+base+","+extra+"}")
		assert.Equal(t, http.StatusBadRequest, rec.Code, extra)
		assert.Zero(t, caller.calls, extra)
	}
}

func TestTransition_RPCError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("canceling statement due to statement timeout")}
	rec := serve(t, caller, http.MethodPost, "/v2/transition",
		`{"target_month":"2024-05-01","reference_cell_ids":[],"analysis_type":"arrivals"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func monthlyJSON(values ...int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf(`{"date_month":"2023-%02d-01","total_count":%d}`, i+1, v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func monthlyRows(values ...int) []json.RawMessage {
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(monthlyJSON(values...)), &rows); err != nil {
		panic(err)
	}
	return rows
}
