package flows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hexflows/tripflow-backend/internal/animation"
	"github.com/hexflows/tripflow-backend/internal/series"
	"github.com/uber/h3-go/v4"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrBadDate      = errors.New("invalid date")
	ErrBadAnalysis  = errors.New("analysis_type must be 'arrivals' or 'departures'")
	ErrBadCellID    = errors.New("invalid H3 cell id")
	ErrNoCells      = errors.New("at least one of origin_cell_ids or destination_cell_ids must be a non-empty array")
	ErrBadYear      = errors.New("year must be a positive integer")
	ErrBadWindow    = errors.New("window must be between 1 and 12")
	ErrBadStdDevs   = errors.New("std_devs must not be negative")
	ErrBadScale     = errors.New("scale must be [min, max] with 0 <= min <= max")
	ErrBadFrames    = fmt.Errorf("frames and keyframes must be 0 or between 2 and %d", animation.MaxKeyframes)
)

var monthLayouts = []string{
	"2006-01-02",
	"2006-01",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"January 2006",
	"Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

const acceptedDates = `YYYY-MM-DD, YYYY-MM, RFC 3339, YYYY/MM/DD, MM/DD/YYYY, "May 2024", "May 1, 2024"`

// ParseMonth accepts a date, a year-month, a timestamp or a written-out month.
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q (accepted: %s)", ErrBadDate, s, acceptedDates)
}

// NormalizeCells lowercases, validates and de-duplicates H3 cell ids,
// preserving first-seen order.
func NormalizeCells(ids []string) ([]string, error) {
	if ids == nil {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if !isH3Cell(id) {
			return nil, fmt.Errorf("%w: %q", ErrBadCellID, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func isH3Cell(s string) bool {
	if len(s) != 15 || strings.Trim(s, "0123456789abcdef") != "" {
		return false
	}
	return h3.Cell(h3.IndexFromString(s)).IsValid()
}

// Validate checks and normalizes a trip-counts request. The returned month is
// the parsed target date.
func (req *TripCountsRequest) Validate() (time.Time, error) {
	if strings.TrimSpace(req.TargetMonth) == "" {
		return time.Time{}, fmt.Errorf("%w: target_month", ErrMissingField)
	}
	if req.ReferenceCellIDs == nil {
		return time.Time{}, fmt.Errorf("%w: reference_cell_ids", ErrMissingField)
	}
	if req.AnalysisType == "" {
		return time.Time{}, fmt.Errorf("%w: analysis_type", ErrMissingField)
	}

	month, err := ParseMonth(req.TargetMonth)
	if err != nil {
		return time.Time{}, err
	}
	if !req.AnalysisType.Valid() {
		return time.Time{}, ErrBadAnalysis
	}

	cells, err := NormalizeCells(req.ReferenceCellIDs)
	if err != nil {
		return time.Time{}, err
	}
	req.ReferenceCellIDs = cells
	return month, nil
}

// Validate checks and normalizes a sum-monthly request.
func (req *SumMonthlyRequest) Validate() error {
	if len(req.OriginCellIDs) == 0 && len(req.DestinationCellIDs) == 0 {
		return ErrNoCells
	}
	if req.Year == nil {
		return fmt.Errorf("%w: year", ErrMissingField)
	}
	if *req.Year <= 0 {
		return ErrBadYear
	}

	var err error
	if req.OriginCellIDs, err = NormalizeCells(req.OriginCellIDs); err != nil {
		return err
	}
	if req.DestinationCellIDs, err = NormalizeCells(req.DestinationCellIDs); err != nil {
		return err
	}
	return nil
}

// Row fields of monthly_agg_v2.
const (
	defaultValueField = "total_count"
	defaultMonthField = "date_month"
)

// Validate applies defaults and checks chart options on top of the
// sum-monthly rules.
func (req *MonthlySeriesRequest) Validate() error {
	if err := req.SumMonthlyRequest.Validate(); err != nil {
		return err
	}
	if req.Window == 0 {
		req.Window = series.DefaultWindow
	}
	if req.Window < 1 || req.Window > 12 {
		return ErrBadWindow
	}
	if req.StdDevs < 0 {
		return ErrBadStdDevs
	}
	if req.ValueField == "" {
		req.ValueField = defaultValueField
	}
	if req.MonthField == "" {
		req.MonthField = defaultMonthField
	}
	return nil
}

func validFrameCount(n int) bool {
	return n == 0 || (n >= 2 && n <= animation.MaxKeyframes)
}

// Validate checks the trip-counts part and the animation options.
func (req *TransitionRequest) Validate() (time.Time, error) {
	month, err := req.TripCountsRequest.Validate()
	if err != nil {
		return time.Time{}, err
	}
	if s := req.Scale; s != nil && (s[0] < 0 || s[1] < s[0]) {
		return time.Time{}, ErrBadScale
	}
	if !validFrameCount(req.Keyframes) || !validFrameCount(req.Frames) {
		return time.Time{}, ErrBadFrames
	}
	return month, nil
}
