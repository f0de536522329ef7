// Package thumbnail implements the thumbnail builder: it picks
// the coarsest pyramid level whose X and Y still reach the requested
// thumbnail size (level 0 if none does), accumulates per-channel maximum-intensity (MIP) and
// mid-Z-slice (Middle) projections from that level's finished blocks,
// colorizes and resizes both to an isotropic-pixel target size, scores
// each by a luma/distribution quality heuristic, and keeps the better
// one.
package thumbnail

import (
	"math"
	"sort"
	"sync"

	"github.com/deepteams/volumewriter/internal/colormodel"
	"github.com/deepteams/volumewriter/internal/engine"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

// Thumbnail is a resized, colorized RGBA image (8 bits/channel).
type Thumbnail struct {
	Width, Height uint64
	RGBA          []byte
}

// ComputeIndexR picks the coarsest-to-finest-searched resolution level
// whose X and Y both meet the requested thumbnail size, stopping at
// level 0.
func ComputeIndexR(levelSizes []pyramid.Size, thumbnailSizeXY uint64) int {
	r := len(levelSizes) - 1
	for r > 0 && (levelSizes[r].X < thumbnailSizeXY || levelSizes[r].Y < thumbnailSizeXY) {
		r--
	}
	return r
}

// computeSizeXY maps the chosen level's image size to a thumbnail
// size with isotropic pixels. extentDeltaX/Y are the image's physical
// extents (ExtentMax-ExtentMin) along X/Y.
func computeSizeXY(thumbnailSizeXY uint64, imageSize pyramid.Size, extentDeltaX, extentDeltaY float32) (uint64, uint64) {
	voxelSizeX := extentDeltaX / float32(imageSize.X)
	voxelSizeY := extentDeltaY / float32(imageSize.Y)

	isoX := imageSize.X
	if voxelSizeX > voxelSizeY {
		isoX = uint64(extentDeltaX / voxelSizeY)
	}
	isoY := imageSize.Y
	if voxelSizeY > voxelSizeX {
		isoY = uint64(extentDeltaY / voxelSizeX)
	}

	factorX := float32(thumbnailSizeXY) / float32(isoX)
	factorY := float32(thumbnailSizeXY) / float32(isoY)
	factor := factorX
	if factorY < factor {
		factor = factorY
	}

	sizeX := uint64(float32(isoX)*factor + 0.5)
	sizeY := uint64(float32(isoY)*factor + 0.5)
	if sizeX == 0 {
		sizeX = 1
	}
	if sizeY == 0 {
		sizeY = 1
	}
	return sizeX, sizeY
}

// quality scores a thumbnail: a luma-median quality component (high
// when bright and dark areas are balanced) times a luma-variance
// component (high when values are well spread), combined as the cube
// root of their product.
func quality(t Thumbnail) float32 {
	size := t.Width * t.Height
	if size == 0 {
		return 0.001
	}

	luma := make([]float32, size)
	var sum, squaresSum float64
	for i := uint64(0); i < size; i++ {
		r := float32(t.RGBA[i*4+0])
		g := float32(t.RGBA[i*4+1])
		b := float32(t.RGBA[i*4+2])
		v := 0.299*r + 0.587*g + 0.114*b
		luma[i] = v
		sum += float64(v)
		squaresSum += float64(v) * float64(v)
	}
	sort.Slice(luma, func(i, j int) bool { return luma[i] < luma[j] })

	qualityLuma := float32(0.001)
	delta := luma[size-1] - luma[0]
	if delta > 0 {
		half := (luma[0] + luma[size-1]) / 2
		qualityLuma = 1 - 2*float32(math.Abs(float64(luma[size/2]-half)))/delta
		qualityLuma = clamp01(qualityLuma)
	}

	mean := sum / float64(size)
	variance := squaresSum/float64(size) - mean*mean
	if variance < 0 {
		variance = 0
	}
	qualityDistribution := clamp01(float32(math.Sqrt(variance) / 255))

	return pow32(qualityLuma*qualityDistribution, 1.0/3.0)
}

func clamp01(v float32) float32 {
	if v < 0.001 {
		return 0.001
	}
	if v > 1 {
		return 1
	}
	return v
}

func pow32(base, exp float32) float32 {
	return float32(math.Pow(float64(base), float64(exp)))
}

func divEx(num, div uint64) uint64 {
	if div == 0 {
		return 0
	}
	return (num + div - 1) / div
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

type channelBlock[T any] struct {
	data    []T
	present bool
}

// Builder accumulates the chosen level's finished blocks, per channel,
// until Build composes the final thumbnail. It implements
// writerpipeline.ThumbnailSink.
type Builder[T any] struct {
	mu sync.Mutex

	thumbnailSizeXY uint64
	indexR          int
	imageSize       pyramid.Size
	blockShape      pyramid.ChunkSize
	nBlocks         [3]uint64
	blocks          [][]channelBlock[T] // [channel][blockIndex]
}

// NewBuilder picks the thumbnail's source resolution level from
// levelSizes/blockShapes and allocates per-channel block slots.
func NewBuilder[T any](thumbnailSizeXY uint64, levelSizes []pyramid.Size, blockShapes []pyramid.ChunkSize, sizeC uint64) *Builder[T] {
	indexR := ComputeIndexR(levelSizes, thumbnailSizeXY)
	imageSize := levelSizes[indexR]
	blockShape := blockShapes[indexR]
	nBlocks := [3]uint64{
		divEx(imageSize.X, blockShape.X),
		divEx(imageSize.Y, blockShape.Y),
		divEx(imageSize.Z, blockShape.Z),
	}
	n := nBlocks[0] * nBlocks[1] * nBlocks[2]
	blocks := make([][]channelBlock[T], sizeC)
	for c := range blocks {
		blocks[c] = make([]channelBlock[T], n)
	}
	return &Builder[T]{
		thumbnailSizeXY: thumbnailSizeXY,
		indexR:          indexR,
		imageSize:       imageSize,
		blockShape:      blockShape,
		nBlocks:         nBlocks,
		blocks:          blocks,
	}
}

// AddBlock implements writerpipeline.ThumbnailSink: only the first
// timepoint and the builder's chosen level are retained.
func (b *Builder[T]) AddBlock(blk engine.Block[T]) {
	if blk.Time != 0 || int(blk.Level) != b.indexR {
		return
	}
	if blk.Chan >= uint64(len(b.blocks)) {
		return
	}
	idx := blk.BX + b.nBlocks[0]*(blk.BY+b.nBlocks[1]*blk.BZ)

	b.mu.Lock()
	defer b.mu.Unlock()
	if idx >= uint64(len(b.blocks[blk.Chan])) {
		return
	}
	b.blocks[blk.Chan][idx] = channelBlock[T]{data: blk.Data, present: true}
}

// Build composes the final thumbnail from every channel's accumulated
// blocks, colorizing and choosing between the MIP and Middle
// projections by quality score. colors must have at least as many
// entries as channels supplied to NewBuilder; extras are ignored.
// extentDelta is (ExtentMaxX-ExtentMinX, ExtentMaxY-ExtentMinY).
func (b *Builder[T]) Build(colors []colormodel.ColorInfo, extentDeltaX, extentDeltaY float32) Thumbnail {
	sizeC := len(b.blocks)
	if len(colors) < sizeC {
		sizeC = len(colors)
	}

	sizeX, sizeY := computeSizeXY(b.thumbnailSizeXY, b.imageSize, extentDeltaX, extentDeltaY)
	r := newResampler[T](sizeX, sizeY, sizeC)

	for bz := uint64(0); bz < b.nBlocks[2]; bz++ {
		for by := uint64(0); by < b.nBlocks[1]; by++ {
			for bx := uint64(0); bx < b.nBlocks[0]; bx++ {
				for c := 0; c < sizeC; c++ {
					idx := bx + b.nBlocks[0]*(by+b.nBlocks[1]*bz)
					blk := b.blocks[c][idx]
					if !blk.present {
						continue
					}
					r.resampleBlock(uint64(c), bx, by, bz, blk.data, b.blockShape, b.imageSize)
				}
			}
		}
	}

	mip := r.colorize(r.mip, colors)
	middle := r.colorize(r.middle, colors)

	mipThumb := Thumbnail{Width: sizeX, Height: sizeY, RGBA: mip}
	middleThumb := Thumbnail{Width: sizeX, Height: sizeY, RGBA: middle}

	if quality(mipThumb) >= quality(middleThumb) {
		return mipThumb
	}
	return middleThumb
}
