package image3d

import (
	"github.com/deepteams/volumewriter/internal/histogram"
	"github.com/deepteams/volumewriter/internal/pool"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

// ChunkedImage3D is one resolution level of one (channel, timepoint)
// slot: a grid of fixed-size MemBlocks covering [0,sizeX)x[0,sizeY)x
// [0,sizeZ), addressed via shift-by-log2 block indexing so mapping a
// voxel index to a block index never divides.
type ChunkedImage3D[T any] struct {
	size  pyramid.Size
	block pyramid.ChunkSize

	log2X, log2Y, log2Z uint64
	nBlocksX, nBlocksY, nBlocksZ uint64

	blocks []MemBlock[T]

	newBuilder func() histogram.Builder
	histograms []histogram.Builder
}

// New constructs a ChunkedImage3D covering size, split into block-sized
// chunks drawn from p. newBuilder constructs a fresh histogram builder
// of the voxel type's specialization (fixed for u8/u16, adaptive for
// u32/f32); one is lazily created per partition on first touch.
func New[T any](size pyramid.Size, block pyramid.ChunkSize, p *pool.Pool[T], newBuilder func() histogram.Builder) *ChunkedImage3D[T] {
	nBlocksX := divCeil(size.X, block.X)
	nBlocksY := divCeil(size.Y, block.Y)
	nBlocksZ := divCeil(size.Z, block.Z)
	numBlocks := nBlocksX * nBlocksY * nBlocksZ

	voxelsPerBlock := int(block.X * block.Y * block.Z)
	blocks := make([]MemBlock[T], numBlocks)
	for i := range blocks {
		blocks[i] = newMemBlock(p, voxelsPerBlock)
	}

	numPartitions := numBlocks / 64
	if numPartitions > 16 {
		numPartitions = 16
	}
	if numPartitions < 1 {
		numPartitions = 1
	}

	return &ChunkedImage3D[T]{
		size:       size,
		block:      block,
		log2X:      log2BlockSize(block.X),
		log2Y:      log2BlockSize(block.Y),
		log2Z:      log2BlockSize(block.Z),
		nBlocksX:   nBlocksX,
		nBlocksY:   nBlocksY,
		nBlocksZ:   nBlocksZ,
		blocks:     blocks,
		newBuilder: newBuilder,
		histograms: make([]histogram.Builder, numPartitions),
	}
}

func divCeil(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// log2BlockSize returns the smallest n with 2^n >= size. It is only
// ever applied to sizes that are already powers of two; chunk shapes
// are chosen that way by pyramid.BlockSizes.
func log2BlockSize(size uint64) uint64 {
	var n uint64
	for (uint64(1) << n) < size {
		n++
	}
	return n
}

// NBlocks reports the block grid's dimensions.
func (im *ChunkedImage3D[T]) NBlocks() (x, y, z uint64) {
	return im.nBlocksX, im.nBlocksY, im.nBlocksZ
}

// BlockShape reports the voxel shape every block was allocated at.
func (im *ChunkedImage3D[T]) BlockShape() pyramid.ChunkSize { return im.block }

// Size reports the image's logical voxel extent (pre-padding).
func (im *ChunkedImage3D[T]) Size() pyramid.Size { return im.size }

func (im *ChunkedImage3D[T]) blockIndexX(voxelX uint64) uint64 { return voxelX >> im.log2X }
func (im *ChunkedImage3D[T]) blockIndexY(voxelY uint64) uint64 { return voxelY >> im.log2Y }
func (im *ChunkedImage3D[T]) blockIndexZ(voxelZ uint64) uint64 { return voxelZ >> im.log2Z }

func (im *ChunkedImage3D[T]) convertBlockIndex(bx, by, bz uint64) uint64 {
	return bx + by*im.nBlocksX + bz*im.nBlocksX*im.nBlocksY
}

// Block returns a pointer to the memory block at the given block grid
// coordinates.
func (im *ChunkedImage3D[T]) Block(bx, by, bz uint64) *MemBlock[T] {
	return &im.blocks[im.convertBlockIndex(bx, by, bz)]
}

// histogramPartition assigns a block to a histogram builder via a
// fixed mix of block coordinates, spreading the partitioning so
// adjacent blocks (likely to complete around the same time) don't
// serialize on one builder.
func (im *ChunkedImage3D[T]) histogramPartition(bx, by, bz uint64) uint64 {
	return (bx + 4*by + 3*bz) % uint64(len(im.histograms))
}

func (im *ChunkedImage3D[T]) builderForBlock(bx, by, bz uint64) histogram.Builder {
	idx := im.histogramPartition(bx, by, bz)
	if im.histograms[idx] == nil {
		im.histograms[idx] = im.newBuilder()
	}
	return im.histograms[idx]
}

// Histogram merges every partition's builder into one Histogram of at
// most maxBins bins. The merge goes into a fresh builder, so the
// partitions are left unchanged and repeated calls agree.
func (im *ChunkedImage3D[T]) Histogram(maxBins int) histogram.Histogram {
	merged := im.newBuilder()
	for _, h := range im.histograms {
		if h == nil {
			continue
		}
		merged.Merge(h)
	}
	h := merged.Finish()
	return histogram.ResampleBins(h, maxBins)
}

// CopyRegion writes one XY slab at depth index z into whichever blocks
// it spans; it does not touch the histograms (FoldHistogram does that
// once the block is finished). beginXY/endXY are exclusive-end voxel coordinates in the
// full (unblocked) image. data holds (endXY[0]-beginXY[0]) *
// (endXY[1]-beginXY[1]) voxels in row-major XY order; a nil data
// zero-fills instead of copying (used by PadBorderChunk). A region
// spanning a block's whole row width is copied as one contiguous
// slab rather than per row.
func (im *ChunkedImage3D[T]) CopyRegion(z uint64, beginXY, endXY [2]uint64, data []T) {
	if endXY[0] <= beginXY[0] || endXY[1] <= beginXY[1] {
		return
	}

	bx0 := im.blockIndexX(beginXY[0])
	by0 := im.blockIndexY(beginXY[1])
	bz := im.blockIndexZ(z)

	bx1 := min64(im.blockIndexX(endXY[0]-1)+1, im.nBlocksX)
	by1 := min64(im.blockIndexY(endXY[1]-1)+1, im.nBlocksY)

	blockSizeX, blockSizeY, blockSizeZ := im.block.X, im.block.Y, im.block.Z
	blockSizeXY := blockSizeX * blockSizeY

	regionSizeX := endXY[0] - beginXY[0]
	regionSizeXY := regionSizeX * (endXY[1] - beginXY[1])

	zFirst := bz * blockSizeZ
	blockOffsetZ := z - zFirst

	for by := by0; by < by1; by++ {
		yFirst := by * blockSizeY
		yLast := yFirst + blockSizeY
		blockBeginY := subOrZero(beginXY[1], yFirst)
		blockEndY := blockSizeY
		if yLast > endXY[1] {
			blockEndY = blockSizeY - (yLast - endXY[1])
		}

		for bx := bx0; bx < bx1; bx++ {
			xFirst := bx * blockSizeX
			xLast := xFirst + blockSizeX
			blockBeginX := subOrZero(beginXY[0], xFirst)
			blockEndX := blockSizeX
			if xLast > endXY[0] {
				blockEndX = blockSizeX - (xLast - endXY[0])
			}

			block := im.Block(bx, by, bz)

			blockRegionOffsetX := xFirst + blockBeginX - beginXY[0]
			blockRegionSizeX := blockEndX - blockBeginX

			if blockBeginX == 0 && regionSizeX == blockSizeX {
				blockBeginOffset := blockOffsetZ*blockSizeXY + blockBeginY*blockSizeX + blockBeginX
				blockRegionSizeXY := blockRegionSizeX * (blockEndY - blockBeginY)

				if data != nil {
					blockRegionOffset := (zFirst+blockOffsetZ-z)*regionSizeXY +
						(yFirst+blockBeginY-beginXY[1])*regionSizeX +
						blockRegionOffsetX
					block.CopyLinePartToBlock(blockBeginOffset, blockRegionSizeXY, data[blockRegionOffset:])
				} else {
					block.CopyLinePartToBlock(blockBeginOffset, blockRegionSizeXY, nil)
				}
				continue
			}

			for y := blockBeginY; y < blockEndY; y++ {
				blockBeginOffset := blockOffsetZ*blockSizeXY + y*blockSizeX + blockBeginX
				if data != nil {
					blockRegionOffset := (zFirst+blockOffsetZ-z)*regionSizeXY +
						(yFirst+y-beginXY[1])*regionSizeX +
						blockRegionOffsetX
					block.CopyLinePartToBlock(blockBeginOffset, blockRegionSizeX, data[blockRegionOffset:])
				} else {
					block.CopyLinePartToBlock(blockBeginOffset, blockRegionSizeX, nil)
				}
			}
		}
	}
}

// PadBorderChunk zero-fills the out-of-image padding region of the
// block at (bx,by,bz), for any of its three axes that run past the
// image's true extent, and reports whether any padding was needed.
// Zero-fill is routed back through CopyRegion with a nil data slice so
// the same region-splitting logic handles both paths.
func (im *ChunkedImage3D[T]) PadBorderChunk(bx, by, bz uint64) bool {
	padded := false
	blockSizeX, blockSizeY, blockSizeZ := im.block.X, im.block.Y, im.block.Z

	if bx+1 == im.nBlocksX && (bx+1)*blockSizeX > im.size.X {
		padded = true
		beginXY := [2]uint64{im.size.X, by * blockSizeY}
		endXY := [2]uint64{im.nBlocksX * blockSizeX, (by + 1) * blockSizeY}
		for z := bz * blockSizeZ; z < (bz+1)*blockSizeZ; z++ {
			im.CopyRegion(z, beginXY, endXY, nil)
		}
	}
	if by+1 == im.nBlocksY && (by+1)*blockSizeY > im.size.Y {
		padded = true
		beginXY := [2]uint64{bx * blockSizeX, im.size.Y}
		endXY := [2]uint64{(bx + 1) * blockSizeX, im.nBlocksY * blockSizeY}
		for z := bz * blockSizeZ; z < (bz+1)*blockSizeZ; z++ {
			im.CopyRegion(z, beginXY, endXY, nil)
		}
	}
	if bz+1 == im.nBlocksZ && (bz+1)*blockSizeZ > im.size.Z {
		padded = true
		beginXY := [2]uint64{bx * blockSizeX, by * blockSizeY}
		endXY := [2]uint64{(bx + 1) * blockSizeX, (by + 1) * blockSizeY}
		for z := im.size.Z; z < im.nBlocksZ*blockSizeZ; z++ {
			im.CopyRegion(z, beginXY, endXY, nil)
		}
	}
	return padded
}

// FoldHistogram folds every in-range voxel currently stored in the
// block at (bx,by,bz) into that block's histogram partition. Called
// once per block, when the block is finalized (whether its data
// arrived via CopyRegion or was written directly by a resample step):
// histogram accumulation is a dedicated pass over the finished block,
// never folded into the voxel copy itself.
func (im *ChunkedImage3D[T]) FoldHistogram(bx, by, bz uint64) {
	blockSizeX, blockSizeY, blockSizeZ := im.block.X, im.block.Y, im.block.Z
	minX, minY, minZ := bx*blockSizeX, by*blockSizeY, bz*blockSizeZ
	maxX := min64(minX+blockSizeX, im.size.X)
	maxY := min64(minY+blockSizeY, im.size.Y)
	maxZ := min64(minZ+blockSizeZ, im.size.Z)
	if minX >= maxX || minY >= maxY || minZ >= maxZ {
		return
	}

	builder := im.builderForBlock(bx, by, bz)
	data := im.Block(bx, by, bz).Data()
	blockSizeXY := blockSizeX * blockSizeY

	regionX, regionY, regionZ := maxX-minX, maxY-minY, maxZ-minZ
	for z := uint64(0); z < regionZ; z++ {
		for y := uint64(0); y < regionY; y++ {
			offset := z*blockSizeXY + y*blockSizeX
			for x := uint64(0); x < regionX; x++ {
				builder.AddValue(toFloat64(data[offset+x]), 1)
			}
		}
	}
}

// toFloat64 converts any voxel value to float64 for histogram bucketing
// via a type switch, since Go generics have no numeric-to-float
// conversion constraint that spans both integer and floating kinds.
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

func subOrZero(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return 0
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
