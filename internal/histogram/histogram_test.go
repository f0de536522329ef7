package histogram

import "testing"

func TestFixedU8ExactCounts(t *testing.T) {
	// Voxel values 0..7 each appear once.
	b := NewFixedU8()
	for v := 0; v < 8; v++ {
		b.AddValue(float64(v), 1)
	}
	h := b.Finish()
	for v := 0; v < 8; v++ {
		if h.Bins[v] != 1 {
			t.Fatalf("bin %d = %d, want 1", v, h.Bins[v])
		}
	}
	if h.Total() != 8 {
		t.Fatalf("total = %d, want 8", h.Total())
	}
}

func TestFixedU8ConstantValue(t *testing.T) {
	// A 4x4x4 stored volume of the constant 255: bin 255 = 64.
	b := NewFixedU8()
	for i := 0; i < 64; i++ {
		b.AddValue(255, 1)
	}
	h := b.Finish()
	if h.Bins[255] != 64 {
		t.Fatalf("bin 255 = %d, want 64", h.Bins[255])
	}
	if h.Total() != 64 {
		t.Fatalf("total = %d, want 64", h.Total())
	}
}

func TestFixedFinishMinimumWidth(t *testing.T) {
	b := NewFixedU8()
	b.AddValue(3, 5)
	h := b.Finish()
	if len(h.Bins) != 256 {
		t.Fatalf("expected trim to stay at 256 bins minimum, got %d", len(h.Bins))
	}
}

func TestFixedMergeIsOrderIndependent(t *testing.T) {
	a := NewFixedU16()
	b := NewFixedU16()
	for v := 0; v < 100; v++ {
		a.AddValue(float64(v), 1)
	}
	for v := 50; v < 150; v++ {
		b.AddValue(float64(v), 2)
	}
	merged1 := NewFixedU16()
	merged1.Merge(a)
	merged1.Merge(b)

	merged2 := NewFixedU16()
	merged2.Merge(b)
	merged2.Merge(a)

	h1, h2 := merged1.Finish(), merged2.Finish()
	if h1.Total() != h2.Total() {
		t.Fatalf("merge not commutative: %d vs %d", h1.Total(), h2.Total())
	}
	if h1.Total() != 100+200 {
		t.Fatalf("total = %d, want %d", h1.Total(), 300)
	}
}

func TestAdaptiveGrowsAndCountsExactly(t *testing.T) {
	b := NewAdaptive()
	values := []float64{0, 1000, 1_000_000, -500, 2_000_000}
	for _, v := range values {
		b.AddValue(v, 1)
	}
	h := b.Finish()
	if h.Total() != uint64(len(values)) {
		t.Fatalf("total = %d, want %d", h.Total(), len(values))
	}
	if h.Min > -500 || h.Max <= 2_000_000 {
		t.Fatalf("range %v..%v does not cover inputs", h.Min, h.Max)
	}
}

func TestAdaptiveMergePreservesTotal(t *testing.T) {
	a := NewAdaptive()
	for i := 0; i < 500; i++ {
		a.AddValue(float64(i), 1)
	}
	b := NewAdaptive()
	for i := 400; i < 900; i++ {
		b.AddValue(float64(i), 1)
	}
	a.Merge(b)
	h := a.Finish()
	if h.Total() != 1000 {
		t.Fatalf("merged total = %d, want 1000", h.Total())
	}
}

func TestResampleBinsPreservesTotal(t *testing.T) {
	bins := make([]uint64, 2000)
	var want uint64
	for i := range bins {
		bins[i] = uint64(i % 7)
		want += bins[i]
	}
	h := Histogram{Bins: bins, Min: 0, Max: 2000}
	resampled := ResampleBins(h, 1024)
	if len(resampled.Bins) > 1024 {
		t.Fatalf("resampled to %d bins, want <= 1024", len(resampled.Bins))
	}
	if resampled.Total() != want {
		t.Fatalf("resample lost counts: got %d want %d", resampled.Total(), want)
	}
}

func TestResampleBinsNoOpWhenSmallEnough(t *testing.T) {
	h := Histogram{Bins: []uint64{1, 2, 3}, Min: 0, Max: 3}
	out := ResampleBins(h, 256)
	if len(out.Bins) != 3 {
		t.Fatalf("expected no-op resample, got %d bins", len(out.Bins))
	}
}

func TestMergeAcrossTimePreservesTotal(t *testing.T) {
	perT := []Histogram{
		{Bins: []uint64{1, 2, 3, 4}, Min: 0, Max: 4},
		{Bins: []uint64{5, 6}, Min: 2, Max: 6},
	}
	merged := MergeAcrossTime(perT, 1024)
	var want uint64
	for _, h := range perT {
		want += h.Total()
	}
	if merged.Total() != want {
		t.Fatalf("merged total = %d, want %d", merged.Total(), want)
	}
	if merged.Min > 0 || merged.Max < 6 {
		t.Fatalf("merged range %v..%v does not cover inputs", merged.Min, merged.Max)
	}
}
