// Package series computes the display statistics drawn next to monthly trip
// charts: trailing averages, one-sigma bands and z-score baselines.
package series

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/montanaflynn/stats"
)

// MaxPoints bounds every input. Charts show at most four years of months.
const MaxPoints = 48

var (
	ErrEmpty         = errors.New("series is empty")
	ErrTooManyPoints = fmt.Errorf("series longer than %d points", MaxPoints)
	ErrBadWindow     = errors.New("window must be at least 1")
	ErrMissingValue  = errors.New("row has no numeric value")
)

func check(values []float64) error {
	if len(values) == 0 {
		return ErrEmpty
	}
	if len(values) > MaxPoints {
		return ErrTooManyPoints
	}
	return nil
}

// RollingAverage returns a centred moving mean: point i averages
// [i-floor(window/2), i+ceil(window/2)), truncated at both ends.
func RollingAverage(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, ErrBadWindow
	}
	if err := check(values); err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	for i := range values {
		start := max(0, i-window/2)
		end := min(len(values), i+(window+1)/2)
		m, err := stats.Mean(values[start:end])
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// EffectiveWindow caps the smoothing window at a third of the series so short
// series are not flattened, never going below 1.
func EffectiveWindow(window, n int) int {
	return max(1, min(window, n/3))
}

// Bounds is a mean with a band of K population standard deviations. Trip
// counts cannot be negative, so Lower is floored at 0.
type Bounds struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

func ComputeBounds(values []float64, k float64) (Bounds, error) {
	if err := check(values); err != nil {
		return Bounds{}, err
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return Bounds{}, err
	}
	sd, err := stats.StandardDeviationPopulation(values)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{
		Mean:   mean,
		StdDev: sd,
		Lower:  math.Max(0, mean-k*sd),
		Upper:  mean + k*sd,
	}, nil
}

// ZScores normalizes values against their own mean and deviation. A flat
// series yields all zeros.
func ZScores(values []float64) ([]float64, error) {
	b, err := ComputeBounds(values, 1)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	if b.StdDev == 0 {
		return out, nil
	}
	for i, v := range values {
		out[i] = (v - b.Mean) / b.StdDev
	}
	return out, nil
}

// Baseline rescales a reference series (e.g. system-wide monthly totals) onto
// the scale of current: each reference point is z-scored against the reference
// mean and deviation, then mapped to mean(current) + z*sd(current). A flat
// reference maps every point to mean(current).
func Baseline(current, reference []float64) ([]float64, error) {
	cur, err := ComputeBounds(current, 0)
	if err != nil {
		return nil, err
	}
	ref, err := ComputeBounds(reference, 0)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	out := make([]float64, len(reference))
	for i, v := range reference {
		z := 0.0
		if ref.StdDev > 0 {
			z = (v - ref.Mean) / ref.StdDev
		}
		out[i] = cur.Mean + z*cur.StdDev
	}
	return out, nil
}

// Summary bundles the chart statistics for one series.
type Summary struct {
	Labels   []string  `json:"labels"`
	Values   []float64 `json:"values"`
	Window   int       `json:"window"`
	Rolling  []float64 `json:"rolling"`
	Bounds   Bounds    `json:"bounds"`
	ZScores  []float64 `json:"z_scores"`
	Baseline []float64 `json:"baseline,omitempty"`
}

// Options controls Summarize. Zero values take the chart defaults.
type Options struct {
	Window  int
	StdDevs float64
	// Reference, when non-empty, is rescaled into Summary.Baseline.
	Reference []float64
}

// Chart defaults: a six-month trend and a 1.5 sigma band.
const (
	DefaultWindow  = 6
	DefaultStdDevs = 1.5
)

func Summarize(labels []string, values []float64, opts Options) (Summary, error) {
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	if opts.StdDevs == 0 {
		opts.StdDevs = DefaultStdDevs
	}
	window := EffectiveWindow(opts.Window, len(values))

	rolling, err := RollingAverage(values, window)
	if err != nil {
		return Summary{}, err
	}
	bounds, err := ComputeBounds(values, opts.StdDevs)
	if err != nil {
		return Summary{}, err
	}
	z, err := ZScores(values)
	if err != nil {
		return Summary{}, err
	}
	var baseline []float64
	if len(opts.Reference) > 0 {
		if baseline, err = Baseline(values, opts.Reference); err != nil {
			return Summary{}, err
		}
	}
	return Summary{
		Labels:   labels,
		Values:   values,
		Window:   window,
		Rolling:  rolling,
		Bounds:   bounds,
		ZScores:  z,
		Baseline: baseline,
	}, nil
}

// FromRows pulls a label and a numeric value out of each JSON object row.
// Values may be JSON numbers or numeric strings (Postgres numeric/bigint).
func FromRows(rows []json.RawMessage, labelField, valueField string) ([]string, []float64, error) {
	labels := make([]string, 0, len(rows))
	values := make([]float64, 0, len(rows))

	for i, raw := range rows {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}

		v, ok := toFloat(row[valueField])
		if !ok {
			return nil, nil, fmt.Errorf("row %d field %q: %w", i, valueField, ErrMissingValue)
		}
		values = append(values, v)
		labels = append(labels, fmt.Sprint(valueOr(row[labelField], strconv.Itoa(i+1))))
	}
	return labels, values, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func valueOr(v any, fallback string) any {
	if v == nil {
		return fallback
	}
	return v
}
