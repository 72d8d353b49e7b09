package animation

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// NeutralHex is the colour every cell starts from before fading in.
const NeutralHex = "#808080"

type stop struct {
	at    float64
	color colorful.Color
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

var (
	neutral = mustHex(NeutralHex)

	viridis = []stop{
		{0.0, mustHex("#440154")},
		{0.15, mustHex("#482878")},
		{0.3, mustHex("#3e4989")},
		{0.45, mustHex("#31688e")},
		{0.6, mustHex("#26828e")},
		{0.75, mustHex("#35b779")},
		{0.9, mustHex("#6ece58")},
		{1.0, mustHex("#fde725")},
	}
)

// Normalize places count on a log scale between scale[0] and scale[1],
// clamped to [0,1]. A degenerate scale maps everything to 0.
func Normalize(count float64, scale [2]float64) float64 {
	logMin := math.Log(scale[0] + 1)
	logMax := math.Log(scale[1] + 1)
	logRange := logMax - logMin
	if !(logRange > 0) {
		return 0
	}
	n := (math.Log(count+1) - logMin) / logRange
	return math.Max(0, math.Min(1, n))
}

// ColorForTripCount maps a trip count onto the viridis ramp, blending
// linearly in RGB between the two surrounding stops.
func ColorForTripCount(count float64, scale [2]float64) colorful.Color {
	n := Normalize(count, scale)

	lower, upper := viridis[0], viridis[len(viridis)-1]
	for i := 0; i < len(viridis)-1; i++ {
		if n >= viridis[i].at && n <= viridis[i+1].at {
			lower, upper = viridis[i], viridis[i+1]
			break
		}
	}
	local := (n - lower.at) / (upper.at - lower.at)
	return lower.color.BlendRgb(upper.color, local).Clamped()
}

var ErrBadColor = errors.New("color must be #rrggbb")

func parseHex(s string) (colorful.Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	return c, nil
}
