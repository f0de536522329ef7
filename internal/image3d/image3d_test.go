package image3d

import (
	"testing"

	"github.com/deepteams/volumewriter/internal/histogram"
	"github.com/deepteams/volumewriter/internal/pool"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

func newU8Image(size pyramid.Size, block pyramid.ChunkSize) *ChunkedImage3D[uint8] {
	p := pool.New[uint8]()
	return New(size, block, p, func() histogram.Builder { return histogram.NewFixedU8() })
}

func TestCopyRegionWholeBlockFastPath(t *testing.T) {
	// An 8x8x8 u8 image stored as a single 8x8x8 block; every Z plane is
	// written as one full 8x8 slab whose rows repeat the values 0..7.
	img := newU8Image(pyramid.Size{X: 8, Y: 8, Z: 8}, pyramid.ChunkSize{X: 8, Y: 8, Z: 8})
	data := make([]uint8, 64)
	for i := range data {
		data[i] = uint8(i % 8)
	}
	for z := uint64(0); z < 8; z++ {
		row := data[z*8 : z*8+8]
		full := make([]uint8, 64)
		for y := 0; y < 8; y++ {
			copy(full[y*8:y*8+8], row)
		}
		img.CopyRegion(z, [2]uint64{0, 0}, [2]uint64{8, 8}, full)
	}
	img.FoldHistogram(0, 0, 0)
	h := img.Histogram(256)
	var total uint64
	for _, c := range h.Bins {
		total += c
	}
	if total != 8*8*8 {
		t.Fatalf("total = %d, want %d", total, 8*8*8)
	}
}

func TestCopyRegionConstantValue(t *testing.T) {
	img := newU8Image(pyramid.Size{X: 8, Y: 8, Z: 8}, pyramid.ChunkSize{X: 4, Y: 4, Z: 4})
	data := make([]uint8, 64)
	for i := range data {
		data[i] = 255
	}
	for z := uint64(0); z < 8; z++ {
		img.CopyRegion(z, [2]uint64{0, 0}, [2]uint64{8, 8}, data[:64])
	}
	for bz := uint64(0); bz < 2; bz++ {
		for by := uint64(0); by < 2; by++ {
			for bx := uint64(0); bx < 2; bx++ {
				img.FoldHistogram(bx, by, bz)
			}
		}
	}
	h := img.Histogram(256)
	if h.Bins[255] != 8*8*8 {
		t.Fatalf("bin 255 = %d, want %d", h.Bins[255], 8*8*8)
	}
}

func TestCopyRegionSpansMultipleBlocks(t *testing.T) {
	img := newU8Image(pyramid.Size{X: 10, Y: 10, Z: 2}, pyramid.ChunkSize{X: 4, Y: 4, Z: 2})
	// 10x10 is not a multiple of the 4x4 block - spans 3x3 blocks in XY.
	bx, by, bz := img.NBlocks()
	if bx != 3 || by != 3 || bz != 1 {
		t.Fatalf("NBlocks = (%d,%d,%d), want (3,3,1)", bx, by, bz)
	}
	row := make([]uint8, 10*10)
	for i := range row {
		row[i] = 7
	}
	img.CopyRegion(0, [2]uint64{0, 0}, [2]uint64{10, 10}, row)
	img.CopyRegion(1, [2]uint64{0, 0}, [2]uint64{10, 10}, row)
	for by := uint64(0); by < 3; by++ {
		for bx2 := uint64(0); bx2 < 3; bx2++ {
			img.FoldHistogram(bx2, by, 0)
		}
	}
	h := img.Histogram(256)
	if h.Bins[7] != 200 {
		t.Fatalf("bin 7 = %d, want 200", h.Bins[7])
	}
}

func TestPadBorderChunkFillsOnlyOutOfRangeVoxels(t *testing.T) {
	img := newU8Image(pyramid.Size{X: 6, Y: 6, Z: 6}, pyramid.ChunkSize{X: 4, Y: 4, Z: 4})
	bx, by, bz := img.NBlocks()
	if bx != 2 || by != 2 || bz != 2 {
		t.Fatalf("NBlocks = (%d,%d,%d), want (2,2,2)", bx, by, bz)
	}
	padded := img.PadBorderChunk(1, 1, 1)
	if !padded {
		t.Fatalf("expected the last block to require padding")
	}
	padded = img.PadBorderChunk(0, 0, 0)
	if padded {
		t.Fatalf("first block should need no padding")
	}
}

func TestHistogramPartitionsCoverAllBlocks(t *testing.T) {
	img := newU8Image(pyramid.Size{X: 64, Y: 64, Z: 64}, pyramid.ChunkSize{X: 8, Y: 8, Z: 8})
	// 8x8x8 = 512 blocks, one partition per 64 blocks.
	if len(img.histograms) != 8 {
		t.Fatalf("expected 8 histogram partitions for a 512-block grid, got %d", len(img.histograms))
	}
}

func TestBlockIndexingMatchesShiftArithmetic(t *testing.T) {
	img := newU8Image(pyramid.Size{X: 32, Y: 32, Z: 32}, pyramid.ChunkSize{X: 8, Y: 8, Z: 8})
	if got := img.blockIndexX(23); got != 2 {
		t.Fatalf("blockIndexX(23) = %d, want 2", got)
	}
	if got := img.blockIndexX(24); got != 3 {
		t.Fatalf("blockIndexX(24) = %d, want 3", got)
	}
}
