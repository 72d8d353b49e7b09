// Package animation plans how hex cells fade in after a trip-count query:
// which order cells appear in, when each starts, and the colour and opacity
// it passes through on the way from neutral grey to its final ramp colour.
// It also tweens raw per-cell values between two successive results.
package animation

import (
	"errors"
	"sort"
)

// Timing of the fade-in, in milliseconds.
const (
	InitialDelayMs = 100
	StaggerMs      = 800
	CellDurationMs = 600
)

// DefaultHexOpacity is the resting fill opacity of a cell.
const DefaultHexOpacity = 0.8

// MaxKeyframes bounds the per-cell keyframes a caller may request.
const MaxKeyframes = 30

var ErrTooFewFrames = errors.New("need at least 2 frames")

// MaterialEaseOut is the cubic-bezier(0.4, 0, 0.2, 1) curve approximated on
// its y control points: 3t^2 - 2t^3.
func MaterialEaseOut(t float64) float64 {
	t = clamp(t)
	return 3*t*t - 2*t*t*t
}

func clamp(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Keyframe is one sampled state of a fading cell.
type Keyframe struct {
	T       float64 `json:"t"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
}

// CellAnimation describes one cell's fade-in.
type CellAnimation struct {
	Cell       string     `json:"cell"`
	TripCount  float64    `json:"trip_count"`
	DelayMs    float64    `json:"delay_ms"`
	DurationMs float64    `json:"duration_ms"`
	Color      string     `json:"color"`
	Keyframes  []Keyframe `json:"keyframes,omitempty"`
}

// Plan is the full fade-in schedule for a result set.
type Plan struct {
	Scale [2]float64      `json:"scale"`
	Cells []CellAnimation `json:"cells"`
}

// Jitter returns a value in [0,1); 0.5 means no offset.
type Jitter func() float64

// Stagger orders cells busiest first, each count perturbed by up to ±20% so
// neighbouring values do not appear in lockstep, and spreads their start
// times across StaggerMs.
func Stagger(counts map[string]float64, scale [2]float64, jitter Jitter, keyframes int) Plan {
	type entry struct {
		cell  string
		count float64
		sort  float64
	}

	cells := make([]string, 0, len(counts))
	for c := range counts {
		cells = append(cells, c)
	}
	sort.Strings(cells)

	entries := make([]entry, len(cells))
	for i, c := range cells {
		n := counts[c]
		offset := 0.0
		if jitter != nil {
			offset = (jitter() - 0.5) * n * 0.4
		}
		entries[i] = entry{cell: c, count: n, sort: n + offset}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].sort > entries[j].sort })

	last := len(entries) - 1
	if last < 1 {
		last = 1
	}
	plan := Plan{Scale: scale, Cells: make([]CellAnimation, len(entries))}
	for i, e := range entries {
		final := ColorForTripCount(e.count, scale)
		plan.Cells[i] = CellAnimation{
			Cell:       e.cell,
			TripCount:  e.count,
			DelayMs:    InitialDelayMs + float64(i)/float64(last)*StaggerMs,
			DurationMs: CellDurationMs,
			Color:      final.Hex(),
		}
		if keyframes >= 2 {
			plan.Cells[i].Keyframes, _ = FadeIn(final.Hex(), keyframes)
		}
	}
	return plan
}

// FadeIn samples n evenly spaced keyframes of a cell fading from neutral grey
// at zero opacity to finalHex at DefaultHexOpacity.
func FadeIn(finalHex string, n int) ([]Keyframe, error) {
	if n < 2 {
		return nil, ErrTooFewFrames
	}
	final, err := parseHex(finalHex)
	if err != nil {
		return nil, err
	}
	frames := make([]Keyframe, n)
	for i := range frames {
		t := float64(i) / float64(n-1)
		e := MaterialEaseOut(t)
		frames[i] = Keyframe{
			T:       t,
			Color:   neutral.BlendRgb(final, e).Clamped().Hex(),
			Opacity: e * DefaultHexOpacity,
		}
	}
	return frames, nil
}

// Transition tweens per-cell values From into To. Cells missing on one side
// are treated as 0.
type Transition struct {
	From map[string]float64
	To   map[string]float64
	Ease func(float64) float64
}

func NewTransition(from, to map[string]float64) *Transition {
	return &Transition{From: from, To: to, Ease: MaterialEaseOut}
}

// At returns every cell's value at progress t (clamped to [0,1]). At t = 1 the
// result equals To exactly, so cells that only existed in From are gone.
func (tr *Transition) At(t float64) map[string]float64 {
	t = clamp(t)
	if t == 1 {
		out := make(map[string]float64, len(tr.To))
		for k, v := range tr.To {
			out[k] = v
		}
		return out
	}

	ease := tr.Ease
	if ease == nil {
		ease = MaterialEaseOut
	}
	p := ease(t)

	out := make(map[string]float64, len(tr.From)+len(tr.To))
	for k, from := range tr.From {
		out[k] = from + (tr.To[k]-from)*p
	}
	for k, to := range tr.To {
		if _, ok := tr.From[k]; !ok {
			out[k] = to * p
		}
	}
	return out
}

// Frames returns n snapshots evenly spaced over [0,1], endpoints included.
func (tr *Transition) Frames(n int) ([]map[string]float64, error) {
	if n < 2 {
		return nil, ErrTooFewFrames
	}
	frames := make([]map[string]float64, n)
	for i := 0; i < n; i++ {
		frames[i] = tr.At(float64(i) / float64(n-1))
	}
	return frames, nil
}
