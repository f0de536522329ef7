package colorrange

import (
	"math"
	"testing"

	"github.com/deepteams/volumewriter/internal/histogram"
)

func TestFilterGaussPreservesTotalMass(t *testing.T) {
	// A recursive Gaussian is a convolution with a unit-sum kernel: the
	// forward and backward passes' gains sum to one, so a spike in the
	// interior of the array, away from edge effects, keeps its mass
	// within a small tolerance.
	in := make([]float64, 256)
	in[128] = 1000
	out := FilterGauss(in, 5.0*256/256)

	var total float64
	for _, v := range out {
		total += v
	}
	if total <= 0 {
		t.Fatalf("expected positive filtered mass, got %v", total)
	}
	if math.Abs(total-1000) > 1 {
		t.Fatalf("filtered mass = %v, want 1000 within 1", total)
	}
}

func TestFilterGaussSmoothsASingleSpike(t *testing.T) {
	in := make([]float64, 64)
	in[32] = 100
	out := FilterGauss(in, 5.0*64/256)

	if out[32] <= out[31] || out[32] <= out[33] {
		t.Fatalf("expected the spike's filtered peak to remain a local maximum at bin 32")
	}
	if out[0] >= out[32] {
		t.Fatalf("expected bins far from the spike to be much smaller than the peak")
	}
}

func TestAutoRangeOnBimodalHistogramIsStable(t *testing.T) {
	// A histogram with a strong low-value background
	// mode and a smaller high-value signal mode; range_min should lock
	// onto the background mode, not the noise floor at bin 0.
	bins := make([]uint64, 256)
	bins[5] = 100000 // dominant background mode
	for i := 180; i < 200; i++ {
		bins[i] = 500 // signal tail
	}
	h := histogram.Histogram{Bins: bins, Min: 0, Max: 256}

	rmin, rmax := AutoRange(h)
	if rmin < 0 || rmin > 40 {
		t.Fatalf("range_min = %v, want it anchored near the background mode (bin ~5)", rmin)
	}
	if rmax <= rmin {
		t.Fatalf("range_max (%v) must exceed range_min (%v)", rmax, rmin)
	}
	if float64(rmax) > h.Max {
		t.Fatalf("range_max = %v must not exceed the histogram's max %v", rmax, h.Max)
	}
}

func TestAutoRangeClampsToHistogramMax(t *testing.T) {
	bins := make([]uint64, 256)
	for i := 250; i < 256; i++ {
		bins[i] = 1000
	}
	h := histogram.Histogram{Bins: bins, Min: 0, Max: 256}
	_, rmax := AutoRange(h)
	if float64(rmax) > h.Max || math.IsNaN(float64(rmax)) {
		t.Fatalf("range_max = %v, want <= %v and not NaN", rmax, h.Max)
	}
}
