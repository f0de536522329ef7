package image5d

import (
	"testing"

	"github.com/deepteams/volumewriter/internal/histogram"
	"github.com/deepteams/volumewriter/internal/pool"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

func TestImage5DSlotsAreIndependent(t *testing.T) {
	p := pool.New[uint8]()
	im := New(pyramid.Size{X: 4, Y: 4, Z: 4}, pyramid.ChunkSize{X: 4, Y: 4, Z: 4}, 2, 3, p,
		func() histogram.Builder { return histogram.NewFixedU8() })

	if im.SizeC() != 2 || im.SizeT() != 3 {
		t.Fatalf("SizeC/SizeT = %d/%d, want 2/3", im.SizeC(), im.SizeT())
	}

	data := make([]uint8, 16)
	for i := range data {
		data[i] = 42
	}
	im.CopyData(1, 0, 0, [2]uint64{0, 0}, [2]uint64{4, 4}, data)
	im.Image3D(1, 0).FoldHistogram(0, 0, 0)

	h0 := im.Image3D(1, 0).Histogram(256)
	if h0.Bins[42] != 16 {
		t.Fatalf("slot (t=1,c=0) bin 42 = %d, want 16", h0.Bins[42])
	}

	h1 := im.Image3D(0, 0).Histogram(256)
	var total uint64
	for _, c := range h1.Bins {
		total += c
	}
	if total != 0 {
		t.Fatalf("untouched slot (t=0,c=0) has %d voxels, want 0", total)
	}
}

func TestImage5DPadBorderChunkPerSlot(t *testing.T) {
	p := pool.New[uint8]()
	im := New(pyramid.Size{X: 6, Y: 6, Z: 6}, pyramid.ChunkSize{X: 4, Y: 4, Z: 4}, 1, 1, p,
		func() histogram.Builder { return histogram.NewFixedU8() })
	if !im.PadBorderChunk(1, 1, 1, 0, 0) {
		t.Fatalf("expected padding at the last block of a 6x6x6 image with 4x4x4 blocks")
	}
}
