package flows

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/hexflows/tripflow-backend/internal/animation"
	"github.com/hexflows/tripflow-backend/internal/config"
	"github.com/hexflows/tripflow-backend/internal/middleware"
	"github.com/hexflows/tripflow-backend/internal/rpc"
	"github.com/hexflows/tripflow-backend/internal/series"
	"github.com/hexflows/tripflow-backend/internal/utils"
	"github.com/lib/pq"
)

// defaultTweenFrames is used when a transition has previous counts but no
// frame count.
const defaultTweenFrames = 10

// Handler serves the trip-flow edge functions.
type Handler struct {
	Caller        rpc.Caller
	TripFlowsRPC  string
	MonthlyAggRPC string
	// Jitter perturbs the fade-in order of cells with similar counts.
	Jitter animation.Jitter
}

func NewHandler(caller rpc.Caller, cfg config.Config) *Handler {
	return &Handler{
		Caller:        caller,
		TripFlowsRPC:  cfg.TripFlowsRPC,
		MonthlyAggRPC: cfg.MonthlyAggRPC,
		Jitter:        rand.Float64,
	}
}

// decode reads a JSON body into dst and writes the error response itself.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		switch {
		case middleware.IsBodyTooLarge(err):
			utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, ErrBadYear):
			utils.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		}
		return false
	}
	return true
}

func (h *Handler) callTripFlows(r *http.Request, req TripCountsRequest, month time.Time) (json.RawMessage, time.Duration, error) {
	start := time.Now()
	data, err := h.Caller.CallScalar(r.Context(), h.TripFlowsRPC,
		rpc.Param{Name: "target_month", Value: month.Format("2006-01-02"), Type: "date"},
		rpc.Param{Name: "reference_cell_ids", Value: pq.Array(req.ReferenceCellIDs), Type: "text[]"},
		rpc.Param{Name: "analysis_type", Value: string(req.AnalysisType), Type: "text"},
	)
	return data, time.Since(start), err
}

// TripCounts forwards to analyze_trip_flows_v3 and returns {data} holding the
// procedure's {trip_counts, sum_all_values, highest_value} object.
func (h *Handler) TripCounts(w http.ResponseWriter, r *http.Request) {
	var req TripCountsRequest
	if !decode(w, r, &req) {
		return
	}

	month, err := req.Validate()
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	logRequest("trip-counts", map[string]any{
		"month": month.Format("2006-01-02"),
		"cells": len(req.ReferenceCellIDs),
		"type":  req.AnalysisType,
	})

	data, elapsed, err := h.callTripFlows(r, req, month)
	if err != nil {
		logError("trip-counts", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logResponse("trip-counts", elapsed, 1)
	utils.AddServerTiming(w, utils.TimingEntry{Name: "rpc", Duration: elapsed})
	utils.WriteJSON(w, http.StatusOK, TripCountsResponse{Data: data})
}

// Transition runs a trip-counts query and returns the fade-in plan for the
// resulting cells, plus a value tween when previous counts are supplied.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decode(w, r, &req) {
		return
	}

	month, err := req.Validate()
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, elapsed, err := h.callTripFlows(r, req.TripCountsRequest, month)
	if err != nil {
		logError("transition", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var result TripCountResult
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &result); err != nil {
			err = fmt.Errorf("decode %s result: %w", h.TripFlowsRPC, err)
			logError("transition", err)
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	scale := [2]float64{0, result.HighestValue}
	if req.Scale != nil {
		scale = *req.Scale
	}

	resp := TransitionResponse{
		Data:      data,
		Animation: animation.Stagger(result.TripCounts, scale, h.Jitter, req.Keyframes),
	}
	if req.Previous != nil {
		frames := req.Frames
		if frames == 0 {
			frames = defaultTweenFrames
		}
		// frames is validated to be >= 2.
		resp.Tween, _ = animation.NewTransition(req.Previous, result.TripCounts).Frames(frames)
	}

	logResponse("transition", elapsed, len(resp.Animation.Cells))
	utils.AddServerTiming(w, utils.TimingEntry{Name: "rpc", Duration: elapsed})
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) callMonthly(r *http.Request, req SumMonthlyRequest) ([]json.RawMessage, time.Duration, error) {
	start := time.Now()
	rows, err := h.Caller.Call(r.Context(), h.MonthlyAggRPC,
		rpc.Param{Name: "p_origin_cells", Value: cellArray(req.OriginCellIDs), Type: "text[]"},
		rpc.Param{Name: "p_destination_cells", Value: cellArray(req.DestinationCellIDs), Type: "text[]"},
		rpc.Param{Name: "p_year", Value: int(*req.Year), Type: "int"},
	)
	return rows, time.Since(start), err
}

// cellArray sends an absent selection as an empty array, never NULL.
func cellArray(ids []string) any {
	if ids == nil {
		ids = []string{}
	}
	return pq.Array(ids)
}

// SumMonthly forwards to monthly_agg_v2 and returns {data}.
func (h *Handler) SumMonthly(w http.ResponseWriter, r *http.Request) {
	var req SumMonthlyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	logRequest("sum-monthly", map[string]any{
		"year":         int(*req.Year),
		"origins":      len(req.OriginCellIDs),
		"destinations": len(req.DestinationCellIDs),
	})

	rows, elapsed, err := h.callMonthly(r, req)
	if err != nil {
		logError("sum-monthly", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logResponse("sum-monthly", elapsed, len(rows))
	utils.AddServerTiming(w, utils.TimingEntry{Name: "rpc", Duration: elapsed})
	utils.WriteJSON(w, http.StatusOK, DataResponse{Data: rows})
}

type MonthlySeriesResponse struct {
	Data   []json.RawMessage `json:"data"`
	Series series.Summary    `json:"series"`
}

// MonthlySeries runs the sum-monthly aggregation and adds chart statistics.
func (h *Handler) MonthlySeries(w http.ResponseWriter, r *http.Request) {
	var req MonthlySeriesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var reference []float64
	if len(req.Baseline) > 0 {
		var err error
		if _, reference, err = series.FromRows(req.Baseline, req.MonthField, req.ValueField); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "baseline: "+err.Error())
			return
		}
	}

	rows, elapsed, err := h.callMonthly(r, req.SumMonthlyRequest)
	if err != nil {
		logError("monthly-series", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := MonthlySeriesResponse{Data: rows, Series: series.Summary{}}
	if len(rows) > 0 {
		computeStart := time.Now()
		labels, values, err := series.FromRows(rows, req.MonthField, req.ValueField)
		if err != nil {
			logError("monthly-series", err)
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		summary, err := series.Summarize(labels, values, series.Options{
			Window:    req.Window,
			StdDevs:   req.StdDevs,
			Reference: reference,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, series.ErrTooManyPoints) {
				status = http.StatusUnprocessableEntity
			}
			utils.WriteError(w, status, err.Error())
			return
		}
		resp.Series = summary
		utils.AddServerTiming(w, utils.TimingEntry{Name: "stats", Duration: time.Since(computeStart)})
	}

	logResponse("monthly-series", elapsed, len(rows))
	utils.AddServerTiming(w, utils.TimingEntry{Name: "rpc", Duration: elapsed})
	utils.WriteJSON(w, http.StatusOK, resp)
}
