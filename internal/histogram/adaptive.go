package histogram

// numAdaptiveBins is the fixed bin count an AdaptiveBuilder always
// carries internally; only the covered [binMin,binMax) range grows.
const numAdaptiveBins = 1000

// maxDoublings bounds how many range-doubling growth steps a single
// AddValue may trigger before falling back to a destructive reset
// around the new (min,max). 1024 doublings covers the entire
// representable float32 dynamic range many times over; reaching the
// cap means the incoming value is pathological (e.g. +Inf).
const maxDoublings = 1024

// AdaptiveBuilder is the general-T histogram specialization: 1000
// equal-width bins over an adaptively expanding range, used for u32
// and f32 voxels where a dense per-value bin is impractical.
type AdaptiveBuilder struct {
	bins        []uint64
	binMin      float64
	binMax      float64
	initialized bool
}

// NewAdaptive returns an empty adaptive builder.
func NewAdaptive() *AdaptiveBuilder {
	return &AdaptiveBuilder{}
}

func (a *AdaptiveBuilder) width() float64 {
	return (a.binMax - a.binMin) / float64(numAdaptiveBins)
}

// growUp doubles the covered range by appending new territory above
// binMax, merging existing bin pairs into the lower half to preserve
// their counts at half the resolution.
func (a *AdaptiveBuilder) growUp() {
	next := make([]uint64, numAdaptiveBins)
	for i := 0; i < numAdaptiveBins/2; i++ {
		next[i] = a.bins[2*i] + a.bins[2*i+1]
	}
	width := a.binMax - a.binMin
	a.binMax += width
	a.bins = next
}

// growDown is growUp's mirror image: new territory appears below
// binMin, and existing counts move into the upper half.
func (a *AdaptiveBuilder) growDown() {
	next := make([]uint64, numAdaptiveBins)
	for i := 0; i < numAdaptiveBins/2; i++ {
		next[numAdaptiveBins/2+i] = a.bins[2*i] + a.bins[2*i+1]
	}
	width := a.binMax - a.binMin
	a.binMin -= width
	a.bins = next
}

func (a *AdaptiveBuilder) resetAround(v float64) {
	lo, hi := a.binMin, a.binMax
	if v < lo {
		lo = v
	}
	if v >= hi {
		hi = v + 1
	}
	a.binMin, a.binMax = lo, hi
	a.bins = make([]uint64, numAdaptiveBins)
}

func (a *AdaptiveBuilder) ensureRange(v float64) {
	if !a.initialized {
		a.binMin = v
		a.binMax = v + 1
		a.bins = make([]uint64, numAdaptiveBins)
		a.initialized = true
		return
	}
	for n := 0; v < a.binMin || v >= a.binMax; n++ {
		if n >= maxDoublings {
			a.resetAround(v)
			return
		}
		if v < a.binMin {
			a.growDown()
		} else {
			a.growUp()
		}
	}
}

func (a *AdaptiveBuilder) AddValue(value float64, count uint64) {
	a.ensureRange(value)
	width := a.width()
	idx := int((value - a.binMin) / width)
	if idx < 0 {
		idx = 0
	}
	if idx >= numAdaptiveBins {
		idx = numAdaptiveBins - 1
	}
	a.bins[idx] += count
}

// Merge extends this builder's range to cover other's full range,
// then folds other's bin counts in at each bin's center value. Folding
// by bin center rather than requiring identical bin alignment keeps
// the merge correct regardless of how the two builders grew
// independently.
func (a *AdaptiveBuilder) Merge(other Builder) {
	o, ok := other.(*AdaptiveBuilder)
	if !ok || !o.initialized {
		return
	}
	if !a.initialized {
		a.binMin, a.binMax = o.binMin, o.binMax
		a.bins = make([]uint64, numAdaptiveBins)
		a.initialized = true
	} else {
		a.ensureRange(o.binMin)
		a.ensureRange(o.binMax - 1e-9*(o.binMax-o.binMin+1))
	}
	srcWidth := o.width()
	for i, c := range o.bins {
		if c == 0 {
			continue
		}
		center := o.binMin + (float64(i)+0.5)*srcWidth
		a.AddValue(center, c)
	}
}

// Finish trims the builder down to its occupied bins, never below 256
// bins wide, and returns the value range reflecting that trim.
func (a *AdaptiveBuilder) Finish() Histogram {
	if !a.initialized {
		return Histogram{Bins: make([]uint64, 256), Min: 0, Max: 1}
	}
	first, last := 0, numAdaptiveBins-1
	for first < numAdaptiveBins && a.bins[first] == 0 {
		first++
	}
	for last >= 0 && a.bins[last] == 0 {
		last--
	}
	if first > last {
		first, last = 0, numAdaptiveBins-1
	}
	for last-first+1 < 256 {
		grew := false
		if first > 0 {
			first--
			grew = true
		}
		if last-first+1 >= 256 {
			break
		}
		if last < numAdaptiveBins-1 {
			last++
			grew = true
		}
		if !grew {
			break
		}
	}
	width := a.width()
	bins := make([]uint64, last-first+1)
	copy(bins, a.bins[first:last+1])
	return Histogram{
		Bins: bins,
		Min:  a.binMin + float64(first)*width,
		Max:  a.binMin + float64(last+1)*width,
	}
}
