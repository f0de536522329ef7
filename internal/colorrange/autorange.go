package colorrange

import "github.com/deepteams/volumewriter/internal/histogram"

// AutoRange derives a channel's display range from its histogram:
// smooth the bin
// counts with a Deriche Gaussian of sigma = 5*N/256, take the first
// local maximum as range_min, the value at the 99.8th percentile of
// cumulative (smoothed) mass as a first cut at range_max, then extend
// range_max by 20% of the (min,max) span and clamp to the histogram's
// own maximum.
func AutoRange(h histogram.Histogram) (min, max float32) {
	n := len(h.Bins)
	if n == 0 {
		return 0, 0
	}

	sigma := 5.0 * float64(n) / 256.0
	counts := make([]float64, n)
	for i, c := range h.Bins {
		counts[i] = float64(c)
	}
	filtered := FilterGauss(counts, sigma)

	firstModeBin := 0
	previous := -1.0
	for i := 0; i < n-1; i++ {
		if filtered[i] > previous && filtered[i] > filtered[i+1] {
			firstModeBin = i
			break
		}
		previous = filtered[i]
	}

	var total float64
	for _, v := range filtered {
		total += v
	}
	highPercentileBin := n - 1
	if total > 0 {
		var running float64
		for i, v := range filtered {
			running += v
			if running/total > 0.998 {
				highPercentileBin = i
				break
			}
		}
	}

	binValue := func(bin int) float64 {
		return h.Min + (h.Max-h.Min)*float64(bin)/float64(n)
	}

	rangeMin := binValue(firstModeBin)
	rangeMax := binValue(highPercentileBin)
	rangeMax += (rangeMax - rangeMin) * 0.2
	if rangeMax > h.Max {
		rangeMax = h.Max
	}

	return float32(rangeMin), float32(rangeMax)
}
