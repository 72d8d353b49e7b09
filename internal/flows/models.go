package flows

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hexflows/tripflow-backend/internal/animation"
)

// AnalysisType selects whether reference cells are trip destinations
// (arrivals) or trip origins (departures).
type AnalysisType string

const (
	Arrivals   AnalysisType = "arrivals"
	Departures AnalysisType = "departures"
)

func (a AnalysisType) Valid() bool {
	return a == Arrivals || a == Departures
}

// Year accepts either a JSON number or a numeric string; the dashboard sends
// the selected year as a string.
type Year int

func (y *Year) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: got %s", ErrBadYear, b)
	}
	*y = Year(n)
	return nil
}

// TripCountsRequest is the body of POST /functions/v1/trip-counts.
type TripCountsRequest struct {
	TargetMonth      string       `json:"target_month"`
	ReferenceCellIDs []string     `json:"reference_cell_ids"`
	AnalysisType     AnalysisType `json:"analysis_type"`
}

// TripCountResult is the single object analyze_trip_flows_v3 returns.
type TripCountResult struct {
	TripCounts   map[string]float64 `json:"trip_counts"`
	SumAllValues float64            `json:"sum_all_values"`
	HighestValue float64            `json:"highest_value"`
}

// TripCountsResponse passes the procedure's object through untouched.
type TripCountsResponse struct {
	Data json.RawMessage `json:"data"`
}

// SumMonthlyRequest is the body of POST /functions/v2/sum-monthly.
type SumMonthlyRequest struct {
	OriginCellIDs      []string `json:"origin_cell_ids,omitempty"`
	DestinationCellIDs []string `json:"destination_cell_ids,omitempty"`
	Year               *Year    `json:"year"`
}

// MonthlySeriesRequest extends SumMonthlyRequest with chart options.
// Baseline carries reference rows (typically system-wide monthly totals) in
// the same shape as the aggregation rows.
type MonthlySeriesRequest struct {
	SumMonthlyRequest
	Window     int               `json:"window,omitempty"`
	StdDevs    float64           `json:"std_devs,omitempty"`
	ValueField string            `json:"value_field,omitempty"`
	MonthField string            `json:"month_field,omitempty"`
	Baseline   []json.RawMessage `json:"baseline,omitempty"`
}

// TransitionRequest is a trip-counts query plus how the result should be
// animated onto the map.
type TransitionRequest struct {
	TripCountsRequest
	// Scale is the [min,max] colour domain; defaults to [0, highest_value].
	Scale *[2]float64 `json:"scale,omitempty"`
	// Keyframes per cell fade-in; 0 omits them.
	Keyframes int `json:"keyframes,omitempty"`
	// Previous counts to tween from, and how many frames to emit.
	Previous map[string]float64 `json:"previous,omitempty"`
	Frames   int                `json:"frames,omitempty"`
}

type DataResponse struct {
	Data []json.RawMessage `json:"data"`
}

type TransitionResponse struct {
	Data      json.RawMessage      `json:"data"`
	Animation animation.Plan       `json:"animation"`
	Tween     []map[string]float64 `json:"tween,omitempty"`
}
