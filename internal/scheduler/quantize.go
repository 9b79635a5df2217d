package scheduler

import (
	"fmt"
	"math"
	"strings"
)

// Grid is the recording quantization grid.
type Grid int

const (
	GridOff Grid = iota
	GridEighth
	GridSixteenth
)

// Beats returns the grid spacing in beats, or 0 when quantization is off.
func (g Grid) Beats() float64 {
	switch g {
	case GridEighth:
		return 0.5
	case GridSixteenth:
		return 0.25
	}
	return 0
}

func (g Grid) String() string {
	switch g {
	case GridEighth:
		return "1/8"
	case GridSixteenth:
		return "1/16"
	}
	return "off"
}

// ParseGrid accepts "off", "1/8" and "1/16" (also "8" and "16").
func ParseGrid(s string) (Grid, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return GridOff, nil
	case "1/8", "8":
		return GridEighth, nil
	case "1/16", "16":
		return GridSixteenth, nil
	}
	return GridOff, fmt.Errorf("unknown quantize grid %q", s)
}

// Quantize rounds offset to the nearest grid line. A result at or past
// maxBeats wraps to the start of the pattern, since the hit belongs to the
// downbeat of the next loop. Grid-aligned offsets come back unchanged.
func Quantize(offset float64, grid Grid, maxBeats float64) float64 {
	q := offset
	if g := grid.Beats(); g > 0 {
		q = math.Round(offset/g) * g
	}
	if maxBeats > 0 && q >= maxBeats {
		q = math.Mod(q, maxBeats)
	}
	if q < 0 {
		q = 0
	}
	return q
}
