package relayout

import "sort"

// Band is the half-open vertical slice [Start, End) of the source page.
type Band struct {
	Start float64
	End   float64
}

func (b Band) Height() float64 { return b.End - b.Start }

// ComputeSplitPoints sorts 0, the candidates and end together and drops, in one left-to-right
// pass, every point not more than minGap below the last kept point.
func ComputeSplitPoints(candidates []float64, end, minGap float64) []float64 {
	points := make([]float64, 0, len(candidates)+2)
	points = append(points, 0)
	points = append(points, candidates...)
	points = append(points, end)
	sort.Float64s(points)

	kept := []float64{points[0]}
	for _, p := range points[1:] {
		if p-kept[len(kept)-1] > minGap {
			kept = append(kept, p)
		}
	}
	return kept
}

// Bands pairs adjacent split points.
func Bands(points []float64) []Band {
	if len(points) < 2 {
		return nil
	}
	out := make([]Band, 0, len(points)-1)
	for i := 0; i+1 < len(points); i++ {
		out = append(out, Band{Start: points[i], End: points[i+1]})
	}
	return out
}
