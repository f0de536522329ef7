package volumewriter

import (
	"bytes"
	"testing"

	"github.com/deepteams/volumewriter/internal/errkind"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

type memOutput struct {
	bytes.Buffer
	closed bool
}

func (m *memOutput) Close() error {
	m.closed = true
	return nil
}

func grayChannel() ChannelOptions {
	return ChannelOptions{
		Name: "gray",
		Color: ColorInfo{
			BaseColorMode:   true,
			BaseColor:       Color{R: 1, G: 1, B: 1, A: 1},
			RangeMin:        0,
			RangeMax:        255,
			GammaCorrection: 1,
			Opacity:         1,
		},
		RangeMin:        0,
		RangeMax:        255,
		GammaCorrection: 1,
	}
}

func smallOptions(out *memOutput) Options {
	return Options{
		DataType:        U8,
		Output:          out,
		ImageSize:       Size5D{X: 2, Y: 2, Z: 2, C: 1, T: 1},
		Extent:          ImageExtent{MaxX: 2, MaxY: 2, MaxZ: 2},
		CopyBlockSizeXY: [2]uint64{2, 2},
		ThumbnailSizeXY: 16,
		Channels:        []ChannelOptions{grayChannel()},
		Unit:            "um",
	}
}

func TestOpenRejectsInvalidOptions(t *testing.T) {
	out := &memOutput{}

	opts := smallOptions(out)
	opts.ImageSize.X = 0
	if _, err := Open(opts); err == nil {
		t.Fatalf("expected an error for a zero image dimension")
	}

	opts = smallOptions(out)
	opts.Channels = nil
	if _, err := Open(opts); err == nil {
		t.Fatalf("expected an error for a channel count mismatch")
	}

	opts = smallOptions(out)
	opts.Output = nil
	if _, err := Open(opts); err == nil {
		t.Fatalf("expected an error for a nil output")
	}
}

func TestCopyBlockRejectsDoubleCopy(t *testing.T) {
	out := &memOutput{}
	w, err := Open(smallOptions(out))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := make([]uint8, 4)
	idx := Index5D{BlockX: 0, BlockY: 0, BlockZ: 0}
	if err := w.CopyBlock(data, idx); err != nil {
		t.Fatalf("first CopyBlock: %v", err)
	}
	err = w.CopyBlock(data, idx)
	if err == nil {
		t.Fatalf("expected the second CopyBlock of the same index to fail")
	}
	if !errkind.Is(err, errkind.Protocol) {
		t.Fatalf("double copy error kind = %v, want ProtocolError", errkind.Of(err))
	}

	if err := w.CopyBlock(data, Index5D{BlockZ: 1}); err != nil {
		t.Fatalf("CopyBlock z=1: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestCopyBlockRejectsWrongTypeSizeAndBounds(t *testing.T) {
	out := &memOutput{}
	w, err := Open(smallOptions(out))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := w.CopyBlock(make([]uint16, 4), Index5D{}); err == nil {
		t.Fatalf("expected a type mismatch error for a []uint16 block on a u8 converter")
	}
	if err := w.CopyBlock(make([]uint8, 3), Index5D{}); err == nil {
		t.Fatalf("expected an invalid-size error for a 3-element block")
	}
	err = w.CopyBlock(make([]uint8, 4), Index5D{BlockX: 9})
	if err == nil {
		t.Fatalf("expected an out-of-bounds block index to fail")
	}
	if !errkind.Is(err, errkind.Protocol) {
		t.Fatalf("out-of-bounds error kind = %v, want ProtocolError", errkind.Of(err))
	}
}

func TestNeedCopyBlockTransitions(t *testing.T) {
	out := &memOutput{}
	w, err := Open(smallOptions(out))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	idx := Index5D{BlockZ: 1}
	if !w.NeedCopyBlock(idx) {
		t.Fatalf("NeedCopyBlock before CopyBlock = false, want true")
	}
	if err := w.CopyBlock(make([]uint8, 4), idx); err != nil {
		t.Fatalf("CopyBlock: %v", err)
	}
	if w.NeedCopyBlock(idx) {
		t.Fatalf("NeedCopyBlock after CopyBlock = true, want false")
	}
	if w.NeedCopyBlock(Index5D{BlockX: 5}) {
		t.Fatalf("NeedCopyBlock out of bounds = true, want false")
	}
}

func TestEndToEndTinyVolume(t *testing.T) {
	out := &memOutput{}
	progressCalls := 0
	opts := smallOptions(out)
	opts.AutoAdjustColorRange = true
	opts.Progress = func(fraction float64, bytesWritten uint64) {
		progressCalls++
		if fraction < 0 || fraction > 1 {
			t.Errorf("progress fraction %v out of [0,1]", fraction)
		}
	}

	w, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// One 2x2 block per Z plane, voxel values z*4+y*2+x, so 0..7.
	for z := uint64(0); z < 2; z++ {
		data := []uint8{uint8(z*4 + 0), uint8(z*4 + 1), uint8(z*4 + 2), uint8(z*4 + 3)}
		if err := w.CopyBlock(data, Index5D{BlockZ: z}); err != nil {
			t.Fatalf("CopyBlock z=%d: %v", z, err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !out.closed {
		t.Fatalf("expected the output to be closed by Finish")
	}

	raw := out.Bytes()
	if string(raw[0:4]) != "BPIM" {
		t.Fatalf("output does not start with the container magic")
	}
	for _, want := range []string{
		"ImarisDataSet",
		"/DataSetInfo/Image/X",
		"/DataSetInfo/TimeInfo/TimePoint1",
		"/DataSetInfo/Channel 0/ColorRange",
		"/DataSet/ResolutionLevel 0/TimePoint 0/Channel 0/Histogram",
		"/Thumbnail/Data",
		"TOC ",
	} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Fatalf("output stream is missing %q", want)
		}
	}
	if progressCalls == 0 {
		t.Fatalf("expected at least one progress callback")
	}
}

func TestEndToEndFlipXYZStoresMirroredVoxels(t *testing.T) {
	// A 4x4x4 volume with v = x + 4y + 16z and all three axes flipped
	// must store (3-x) + 4(3-y) + 16(3-z) at (x,y,z).
	out := &memOutput{}
	opts := smallOptions(out)
	opts.ImageSize = Size5D{X: 4, Y: 4, Z: 4, C: 1, T: 1}
	opts.Extent = ImageExtent{MaxX: 4, MaxY: 4, MaxZ: 4}
	opts.CopyBlockSizeXY = [2]uint64{4, 4}
	opts.FlipX, opts.FlipY, opts.FlipZ = true, true, true
	opts.ThumbnailSizeXY = 0
	// A 64-byte chunk budget forces the chunk shape to exactly 4x4x4,
	// so the uncompressed chunk payload is the stored volume verbatim.
	opts.ChunkByteBudget = 64

	w, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for z := uint64(0); z < 4; z++ {
		raw := make([]uint8, 16)
		for y := uint64(0); y < 4; y++ {
			for x := uint64(0); x < 4; x++ {
				raw[y*4+x] = uint8(x + 4*y + 16*z)
			}
		}
		if err := w.CopyBlock(raw, Index5D{BlockZ: z}); err != nil {
			t.Fatalf("CopyBlock z=%d: %v", z, err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	want := make([]uint8, 64)
	for z := uint64(0); z < 4; z++ {
		for y := uint64(0); y < 4; y++ {
			for x := uint64(0); x < 4; x++ {
				want[z*16+y*4+x] = uint8((3 - x) + 4*(3-y) + 16*(3-z))
			}
		}
	}
	if !bytes.Contains(out.Bytes(), want) {
		t.Fatalf("output stream does not contain the X/Y/Z-mirrored voxel payload")
	}
}

func TestEndToEndMultiBlockAssembly(t *testing.T) {
	// Four 4x4 copy blocks assemble into one 8x8 stored plane; the
	// chunk payload must hold every voxel at its global position
	// regardless of block submission order.
	out := &memOutput{}
	opts := smallOptions(out)
	opts.ImageSize = Size5D{X: 8, Y: 8, Z: 1, C: 1, T: 1}
	opts.Extent = ImageExtent{MaxX: 8, MaxY: 8, MaxZ: 1}
	opts.CopyBlockSizeXY = [2]uint64{4, 4}
	opts.ThumbnailSizeXY = 0
	opts.ChunkByteBudget = 64 // exactly one 8x8x1 chunk

	w, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	order := [][2]uint64{{1, 1}, {0, 0}, {1, 0}, {0, 1}}
	for _, b := range order {
		raw := make([]uint8, 16)
		for y := uint64(0); y < 4; y++ {
			for x := uint64(0); x < 4; x++ {
				gx, gy := b[0]*4+x, b[1]*4+y
				raw[y*4+x] = uint8(gy*8 + gx)
			}
		}
		if err := w.CopyBlock(raw, Index5D{BlockX: b[0], BlockY: b[1]}); err != nil {
			t.Fatalf("CopyBlock (%d,%d): %v", b[0], b[1], err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	want := make([]uint8, 64)
	for i := range want {
		want[i] = uint8(i)
	}
	if !bytes.Contains(out.Bytes(), want) {
		t.Fatalf("output stream does not contain the assembled 8x8 plane")
	}
}

func TestPlanPyramidDisablePyramidStaysSingleLevel(t *testing.T) {
	size := pyramid.Size{X: 4096, Y: 4096, Z: 64}
	levels, shapes := planPyramid(size, true, size.Voxels(), 0, 1, 1, false)
	if len(levels) != 1 {
		t.Fatalf("expected exactly 1 level with the budget pinned to the image size, got %d", len(levels))
	}
	if len(shapes) != 1 {
		t.Fatalf("expected exactly 1 chunk shape, got %d", len(shapes))
	}
}

func TestPlanPyramidForceZ1FlattensEveryLevel(t *testing.T) {
	size := pyramid.Size{X: 4096, Y: 4096, Z: 64}
	_, shapes := planPyramid(size, false, 0, 0, 1, 1, true)
	for i, s := range shapes {
		if s.Z != 1 {
			t.Fatalf("level %d chunk Z = %d, want 1", i, s.Z)
		}
	}
}

func TestResampleSubsamplesByStride(t *testing.T) {
	out := &memOutput{}
	opts := smallOptions(out)
	opts.ImageSize = Size5D{X: 8, Y: 8, Z: 1, C: 1, T: 1}
	opts.CopyBlockSizeXY = [2]uint64{8, 8}
	opts.SampleXY = [2]uint64{2, 2}
	opts.ThumbnailSizeXY = 0

	w, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := w.(*converterT[uint8])

	raw := make([]uint8, 64)
	for y := uint64(0); y < 8; y++ {
		for x := uint64(0); x < 8; x++ {
			raw[y*8+x] = uint8(y*8 + x)
		}
	}
	stored := c.resample(raw, Index5D{}, 8, 8)
	if len(stored) != 16 {
		t.Fatalf("stored length = %d, want 16 (4x4 after a stride-2 subsample)", len(stored))
	}
	for sy := uint64(0); sy < 4; sy++ {
		for sx := uint64(0); sx < 4; sx++ {
			want := uint8(sy*2*8 + sx*2)
			if got := stored[sy*4+sx]; got != want {
				t.Fatalf("stored[%d,%d] = %d, want %d", sx, sy, got, want)
			}
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}
