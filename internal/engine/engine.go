// Package engine implements the multiresolution write engine: it
// owns one image5d.Image5D per pyramid level, tracks how many
// level-0 copy-blocks remain before each memory block is complete,
// and on completion pads the block's border, resamples it into the
// next-coarser level, folds its voxels into the block's histogram
// partition, and hands the finished block to a WriteSink for
// compression and storage.
package engine

import (
	"github.com/deepteams/volumewriter/internal/histogram"
	"github.com/deepteams/volumewriter/internal/image5d"
	"github.com/deepteams/volumewriter/internal/pool"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

// Block is a fully-written memory block handed off to a WriteSink: the
// engine has already padded its border and folded its histogram.
type Block[T any] struct {
	Data               []T
	BX, BY, BZ         uint64
	Time, Chan, Level  uint64
}

// WriteSink receives finished blocks, per-(t,c,level) histograms, and
// every level's finished blocks as thumbnail source data. Implemented by the
// internal/writerpipeline package; kept as an interface here so engine
// has no dependency on the compression/back-pressure machinery.
type WriteSink[T any] interface {
	WriteBlock(b Block[T])
	WriteHistogram(h histogram.Histogram, t, c, level uint64)
	CopyThumbnailSource(b Block[T])
}

// Engine drives one data type's multiresolution pyramid through to
// completion.
type Engine[T any] struct {
	levels        []*image5d.Image5D[T]
	blockShapes   []pyramid.ChunkSize
	sizes         []pyramid.Size
	copyBlocksLeft [][]uint32 // per level: flat over (bx,by,bz,c,t)

	copyBlockSizeXY [2]uint64
	sampleXY        [2]uint64
	rawSizeXY       [2]uint64 // pre-sample client image extent along X/Y
	flipXY          [2]bool   // mirror incoming blocks across the stored X/Y extent

	sizeC, sizeT uint64

	sink       WriteSink[T]
	newBuilder func() histogram.Builder
}

// Budgets carries the pyramid/chunk-size search budgets; a zero field
// falls back to the pyramid package's defaults, used whenever the
// caller (the root Converter) doesn't override them.
type Budgets struct {
	PyramidVoxels  uint64
	ChunkSizeBytes uint64
}

// New builds the pyramid (one image5d.Image5D per resolution level,
// sized per pyramid.Levels/BlockSizes) and initializes every level's
// completion counters.
func New[T any](
	size pyramid.Size, sizeC, sizeT uint64,
	copyBlockSizeXY, sampleXY, rawSizeXY [2]uint64,
	flipXY [2]bool,
	reduceZ, forceBlockSizeZ1 bool,
	budgets Budgets,
	p *pool.Pool[T], newBuilder func() histogram.Builder,
	sink WriteSink[T],
) *Engine[T] {
	pyramidBudget := budgets.PyramidVoxels
	if pyramidBudget == 0 {
		pyramidBudget = pyramid.DefaultPyramidBudget
	}
	chunkBudget := budgets.ChunkSizeBytes
	if chunkBudget == 0 {
		chunkBudget = pyramid.DefaultChunkBudgetBytes
	}
	sizes := pyramid.Levels(size, reduceZ, pyramidBudget)
	blockShapes := pyramid.BlockSizes(sizes, chunkBudget, elemSize[T](), sizeT)
	if forceBlockSizeZ1 {
		for i := range blockShapes {
			blockShapes[i].Z = 1
		}
	}

	levels := make([]*image5d.Image5D[T], len(sizes))
	for i, sz := range sizes {
		levels[i] = image5d.New(sz, blockShapes[i], sizeC, sizeT, p, newBuilder)
	}

	e := &Engine[T]{
		levels:          levels,
		blockShapes:     blockShapes,
		sizes:           sizes,
		copyBlockSizeXY: copyBlockSizeXY,
		sampleXY:        sampleXY,
		rawSizeXY:       rawSizeXY,
		flipXY:          flipXY,
		sizeC:           sizeC,
		sizeT:           sizeT,
		sink:            sink,
		newBuilder:      newBuilder,
	}
	e.copyBlocksLeft = make([][]uint32, len(sizes))
	for r := range sizes {
		e.initCopyBlocksLeft(r)
	}
	return e
}

func elemSize[T any]() int {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32, float32:
		return 4
	default:
		return 4
	}
}

func divEx(num, div uint64) uint64 {
	if div == 0 {
		return 0
	}
	return (num + div - 1) / div
}

// strideToNextResolution reports, per axis, whether level r+1 halves
// that axis relative to level r (1 or 2).
func (e *Engine[T]) strideToNextResolution(r int) [3]uint64 {
	hi, lo := e.sizes[r], e.sizes[r+1]
	stride := [3]uint64{1, 1, 1}
	if lo.X < hi.X {
		stride[0] = 2
	}
	if lo.Y < hi.Y {
		stride[1] = 2
	}
	if lo.Z < hi.Z {
		stride[2] = 2
	}
	return stride
}

func (e *Engine[T]) nBlocks(r int) (uint64, uint64, uint64) {
	return e.levels[r].Image3D(0, 0).NBlocks()
}

func (e *Engine[T]) blockIndex1D(r int, bx, by, bz, c, t uint64) uint64 {
	nx, ny, nz := e.nBlocks(r)
	return bx + nx*(by+ny*(bz+nz*(c+e.sizeC*t)))
}

// initCopyBlocksLeft counts, for every memory block of level r, how
// many level-0-sized copy-blocks (or, for r>0, how many higher-res
// memory blocks) must land before it is complete.
func (e *Engine[T]) initCopyBlocksLeft(r int) {
	img3D := e.levels[r].Image3D(0, 0)
	imgSize := img3D.Size()

	var copyBlockSize [3]uint64
	var nCopyBlocks [3]uint64
	sampleXY := [2]uint64{1, 1}

	if r == 0 {
		sampleXY = e.sampleXY
		copyBlockSize = [3]uint64{e.copyBlockSizeXY[0], e.copyBlockSizeXY[1], 1}
		// The copy-block grid is defined over the raw (pre-sample)
		// client extent, not storedSize*sample: the two differ when
		// the sample stride does not divide the image size, and an
		// over-counted grid would leave border counters that never
		// reach zero.
		nCopyBlocks = [3]uint64{
			divEx(e.rawSizeXY[0], copyBlockSize[0]),
			divEx(e.rawSizeXY[1], copyBlockSize[1]),
			divEx(imgSize.Z, copyBlockSize[2]),
		}
	} else {
		hiShape := e.blockShapes[r-1]
		stride := e.strideToNextResolution(r - 1)
		copyBlockSize = [3]uint64{hiShape.X / stride[0], hiShape.Y / stride[1], hiShape.Z / stride[2]}
		nx, ny, nz := e.levels[r-1].Image3D(0, 0).NBlocks()
		nCopyBlocks = [3]uint64{nx, ny, nz}
	}

	nx, ny, nz := e.nBlocks(r)
	shape := e.blockShapes[r]
	e.copyBlocksLeft[r] = make([]uint32, nx*ny*nz*e.sizeC*e.sizeT)

	for bz := uint64(0); bz < nz; bz++ {
		for by := uint64(0); by < ny; by++ {
			for bx := uint64(0); bx < nx; bx++ {
				// The memory block's stored-voxel interval per axis.
				// On a flipped axis the incoming regions land
				// mirrored, so the overlap count belongs to the
				// mirror image of this interval; reflecting here
				// keeps the counters aligned with the runtime
				// decrements even when the edge blocks are partial.
				aX, bXv := bx*shape.X, (bx+1)*shape.X
				aY, bYv := by*shape.Y, (by+1)*shape.Y
				if r == 0 && e.flipXY[0] {
					aX, bXv = subOrZero(imgSize.X, bXv), imgSize.X-aX
				}
				if r == 0 && e.flipXY[1] {
					aY, bYv = subOrZero(imgSize.Y, bYv), imgSize.Y-aY
				}
				beginX := aX * sampleXY[0] / copyBlockSize[0]
				beginY := aY * sampleXY[1] / copyBlockSize[1]
				beginZ := bz * shape.Z / copyBlockSize[2]
				endX := minU64(divEx(bXv*sampleXY[0], copyBlockSize[0]), nCopyBlocks[0])
				endY := minU64(divEx(bYv*sampleXY[1], copyBlockSize[1]), nCopyBlocks[1])
				endZ := minU64(divEx((bz+1)*shape.Z, copyBlockSize[2]), nCopyBlocks[2])
				count := (endX - beginX) * (endY - beginY) * (endZ - beginZ)

				for t := uint64(0); t < e.sizeT; t++ {
					for c := uint64(0); c < e.sizeC; c++ {
						e.copyBlocksLeft[r][e.blockIndex1D(r, bx, by, bz, c, t)] = uint32(count)
					}
				}
			}
		}
	}
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func subOrZero(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return 0
}

// levelZeroRegion maps a copy-block grid index to the stored-voxel XY
// region its data lands in: the block's raw extent divided by the
// sampling stride, clamped at the image boundary, and reflected across
// the stored extent on any flipped axis.
func (e *Engine[T]) levelZeroRegion(kx, ky uint64, size pyramid.Size) (beginXY, endXY [2]uint64) {
	beginXY[0] = divEx(kx*e.copyBlockSizeXY[0], e.sampleXY[0])
	endXY[0] = minU64(divEx((kx+1)*e.copyBlockSizeXY[0], e.sampleXY[0]), size.X)
	beginXY[1] = divEx(ky*e.copyBlockSizeXY[1], e.sampleXY[1])
	endXY[1] = minU64(divEx((ky+1)*e.copyBlockSizeXY[1], e.sampleXY[1]), size.Y)
	if e.flipXY[0] && beginXY[0] < endXY[0] {
		beginXY[0], endXY[0] = size.X-endXY[0], size.X-beginXY[0]
	}
	if e.flipXY[1] && beginXY[1] < endXY[1] {
		beginXY[1], endXY[1] = size.Y-endXY[1], size.Y-beginXY[1]
	}
	return beginXY, endXY
}

// CopyData writes one level-0 XY row of file data at depth z into the
// copy-block (copyBlockIndexXY) of channel c, timepoint t, applying
// the configured XY sampling stride and flips, then runs completion
// bookkeeping. data must already be in the stored (post-flip)
// orientation; this only places it at the mirrored position.
func (e *Engine[T]) CopyData(t, c, z uint64, copyBlockIndexXY [2]uint64, data []T) {
	img3D := e.levels[0].Image3D(t, c)
	size := img3D.Size()

	beginXY, endXY := e.levelZeroRegion(copyBlockIndexXY[0], copyBlockIndexXY[1], size)
	if beginXY[0] >= endXY[0] || beginXY[1] >= endXY[1] || z >= size.Z {
		return
	}

	e.levels[0].CopyData(t, c, z, beginXY, endXY, data)
	e.onCopiedData(t, c, [3]uint64{copyBlockIndexXY[0], copyBlockIndexXY[1], z}, 0)
}

// onCopiedData maps the just-written copy-block onto the memory
// blocks of level r it overlaps, decrements each one's counter, and
// finalizes any block that reaches zero.
func (e *Engine[T]) onCopiedData(t, c uint64, copyBlockIndexXYZ [3]uint64, r int) {
	img3D := e.levels[r].Image3D(t, c)
	imgSize := img3D.Size()

	var beginXY, endXY [2]uint64
	var beginZ uint64
	if r == 0 {
		// The flipped landing region, so the decrements hit the same
		// memory blocks the data actually landed in.
		beginXY, endXY = e.levelZeroRegion(copyBlockIndexXYZ[0], copyBlockIndexXYZ[1], imgSize)
		beginZ = copyBlockIndexXYZ[2]
	} else {
		hiShape := e.blockShapes[r-1]
		stride := e.strideToNextResolution(r - 1)
		copyBlockSize := [3]uint64{hiShape.X / stride[0], hiShape.Y / stride[1], hiShape.Z / stride[2]}
		beginXY = [2]uint64{copyBlockIndexXYZ[0] * copyBlockSize[0], copyBlockIndexXYZ[1] * copyBlockSize[1]}
		endXY = [2]uint64{(copyBlockIndexXYZ[0] + 1) * copyBlockSize[0], (copyBlockIndexXYZ[1] + 1) * copyBlockSize[1]}
		beginZ = copyBlockIndexXYZ[2] * copyBlockSize[2]
	}
	if beginXY[0] >= imgSize.X || beginXY[1] >= imgSize.Y || beginZ >= imgSize.Z {
		return
	}

	nx, ny, _ := img3D.NBlocks()
	shape := e.blockShapes[r]

	bxBegin := beginXY[0] / shape.X
	byBegin := beginXY[1] / shape.Y
	bz := beginZ / shape.Z
	bxEnd := minU64(divEx(endXY[0], shape.X), nx)
	byEnd := minU64(divEx(endXY[1], shape.Y), ny)

	for by := byBegin; by < byEnd; by++ {
		for bx := bxBegin; bx < bxEnd; bx++ {
			idx := e.blockIndex1D(r, bx, by, bz, c, t)
			e.copyBlocksLeft[r][idx]--
			if e.copyBlocksLeft[r][idx] != 0 {
				continue
			}
			e.finalizeBlock(t, c, bx, by, bz, r)
		}
	}
}

// finalizeBlock pads the block's border, folds its histogram, hands it
// to the sink, and - if a coarser level exists - resamples it down and
// recurses completion bookkeeping for the coarser level's block.
func (e *Engine[T]) finalizeBlock(t, c, bx, by, bz uint64, r int) {
	img3D := e.levels[r].Image3D(t, c)
	img3D.PadBorderChunk(bx, by, bz)

	block := img3D.Block(bx, by, bz)
	data := block.Data()

	img3D.FoldHistogram(bx, by, bz)

	e.sink.WriteBlock(Block[T]{Data: data, BX: bx, BY: by, BZ: bz, Time: t, Chan: c, Level: uint64(r)})
	// Every level's finished blocks are offered to the thumbnail
	// source, not just level 0: the thumbnail builder picks its own
	// resolution level (the coarsest whose X and Y still reach the
	// requested thumbnail size, else level 0) and discards everything else.
	e.sink.CopyThumbnailSource(Block[T]{Data: data, BX: bx, BY: by, BZ: bz, Time: t, Chan: c, Level: uint64(r)})

	if r+1 < len(e.levels) {
		e.resampleBlock(t, c, bx, by, bz, r, data)
	}
}

// resampleBlock average-downsamples one completed block into the next
// coarser level, for the block-aligned case the chosen chunk shapes
// guarantee: higher-res blocks divide evenly into lower-res ones, so
// each higher-res block always maps into exactly one lower-res block.
func (e *Engine[T]) resampleBlock(t, c, bx, by, bz uint64, r int, data []T) {
	stride := e.strideToNextResolution(r)
	hiImg := e.levels[r].Image3D(t, c)
	loImg := e.levels[r+1].Image3D(t, c)
	hiShape := e.blockShapes[r]
	loShape := e.blockShapes[r+1]
	hiSize := hiImg.Size()

	largeMinX, largeMinY, largeMinZ := bx*hiShape.X, by*hiShape.Y, bz*hiShape.Z
	largeMaxX := minU64((bx+1)*hiShape.X, hiSize.X)
	largeMaxY := minU64((by+1)*hiShape.Y, hiSize.Y)
	largeMaxZ := minU64((bz+1)*hiShape.Z, hiSize.Z)
	if largeMinX >= largeMaxX || largeMinY >= largeMaxY || largeMinZ >= largeMaxZ {
		return
	}

	loNx, loNy, loNz := loImg.NBlocks()
	loBx := (largeMinX / stride[0]) / loShape.X
	loBy := (largeMinY / stride[1]) / loShape.Y
	loBz := (largeMinZ / stride[2]) / loShape.Z
	if loBx >= loNx || loBy >= loNy || loBz >= loNz {
		return
	}

	loSize := loImg.Size()
	largeMaxX = minU64(largeMaxX, minU64(largeMinX+loShape.X*stride[0], loSize.X*stride[0]))
	largeMaxY = minU64(largeMaxY, minU64(largeMinY+loShape.Y*stride[1], loSize.Y*stride[1]))
	largeMaxZ = minU64(largeMaxZ, minU64(largeMinZ+loShape.Z*stride[2], loSize.Z*stride[2]))

	regionX := largeMaxX - largeMinX
	regionY := largeMaxY - largeMinY
	regionZ := largeMaxZ - largeMinZ
	if regionX == 0 || regionY == 0 || regionZ == 0 {
		return
	}

	smallBeginX := largeMinX / stride[0]
	smallBeginY := largeMinY / stride[1]
	smallBeginZ := largeMinZ / stride[2]
	smallOffsetX := smallBeginX - loBx*loShape.X
	smallOffsetY := smallBeginY - loBy*loShape.Y
	smallOffsetZ := smallBeginZ - loBz*loShape.Z

	loBlock := loImg.Block(loBx, loBy, loBz)
	loData := loBlock.Data()

	hiBlockSizeX := hiShape.X
	hiBlockSizeXY := hiShape.X * hiShape.Y
	loBlockSizeX := loShape.X
	loBlockSizeXY := loShape.X * loShape.Y

	volume := float64(stride[0] * stride[1] * stride[2])

	for lz, hz := uint64(0), uint64(0); hz < regionZ; lz, hz = lz+1, hz+stride[2] {
		for ly, hy := uint64(0), uint64(0); hy < regionY; ly, hy = ly+1, hy+stride[1] {
			for lx, hx := uint64(0), uint64(0); hx < regionX; lx, hx = lx+1, hx+stride[0] {
				var sum float64
				for oz := uint64(0); oz < stride[2]; oz++ {
					for oy := uint64(0); oy < stride[1]; oy++ {
						for ox := uint64(0); ox < stride[0]; ox++ {
							idx := (hz+oz)*hiBlockSizeXY + (hy+oy)*hiBlockSizeX + (hx + ox)
							sum += toFloat64(data[idx])
						}
					}
				}
				avg := sum / volume
				loIdx := (smallOffsetZ+lz)*loBlockSizeXY + (smallOffsetY+ly)*loBlockSizeX + (smallOffsetX + lx)
				loData[loIdx] = fromFloat64[T](avg)
			}
		}
	}

	e.onCopiedData(t, c, [3]uint64{bx, by, bz}, r+1)
}

func toFloat64[T any](v T) float64 {
	switch x := any(v).(type) {
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return 0
	}
}

func fromFloat64[T any](v float64) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return any(uint8(clampRound(v, 0, 255))).(T)
	case uint16:
		return any(uint16(clampRound(v, 0, 65535))).(T)
	case uint32:
		return any(uint32(clampRound(v, 0, 4294967295))).(T)
	case float32:
		return any(float32(v)).(T)
	default:
		return zero
	}
}

func clampRound(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v + 0.5
}

// FinishWriteDataBlocks flushes every level's per-(t,c) histogram to
// the sink; draining the writer pipeline afterwards is the caller's
// job.
func (e *Engine[T]) FinishWriteDataBlocks() {
	for r, lvl := range e.levels {
		for t := uint64(0); t < e.sizeT; t++ {
			for c := uint64(0); c < e.sizeC; c++ {
				h := lvl.Image3D(t, c).Histogram(1024)
				if h.Total() == 0 {
					continue
				}
				e.sink.WriteHistogram(h, t, c, uint64(r))
			}
		}
	}
}

// LevelHistogram returns one level's (t,c) histogram with at most
// maxBins bins, for metadata attribute writing (the per-channel-group
// HistogramMin/Max attributes).
func (e *Engine[T]) LevelHistogram(level, t, c uint64, maxBins int) histogram.Histogram {
	return e.levels[level].Image3D(t, c).Histogram(maxBins)
}

// ChannelHistogram aggregates channel c's level-0 histogram across
// every timepoint.
func (e *Engine[T]) ChannelHistogram(c uint64) histogram.Histogram {
	lvl := e.levels[0]
	if e.sizeT == 1 {
		return lvl.Image3D(0, c).Histogram(1024)
	}
	perT := make([]histogram.Histogram, e.sizeT)
	for t := uint64(0); t < e.sizeT; t++ {
		perT[t] = lvl.Image3D(t, c).Histogram(256 * 256)
	}
	return histogram.MergeAcrossTime(perT, 1024)
}

// Levels exposes the pyramid's per-level voxel extents, for layout
// metadata and the thumbnail builder.
func (e *Engine[T]) Levels() []pyramid.Size { return e.sizes }

// BlockShapes exposes the pyramid's per-level chunk shapes.
func (e *Engine[T]) BlockShapes() []pyramid.ChunkSize { return e.blockShapes }
