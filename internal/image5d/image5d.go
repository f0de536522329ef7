// Package image5d implements the per-resolution-level X,Y,Z,C,T
// image: a T-by-C grid of independent image3d.ChunkedImage3D values,
// one per (timepoint, channel) slot, all sharing one resolution level's
// voxel and block shape.
package image5d

import (
	"github.com/deepteams/volumewriter/internal/histogram"
	"github.com/deepteams/volumewriter/internal/image3d"
	"github.com/deepteams/volumewriter/internal/pool"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

// Image5D holds one resolution level's voxel data across every
// timepoint and channel.
type Image5D[T any] struct {
	sizeC, sizeT uint64
	images       [][]*image3d.ChunkedImage3D[T] // images[t][c]
}

// New constructs an Image5D with sizeT*sizeC independent
// ChunkedImage3D grids, each covering size and split into block-shaped
// chunks drawn from p. newBuilder is called once per histogram
// partition per (t,c) slot, lazily, matching image3d.New's contract.
func New[T any](size pyramid.Size, block pyramid.ChunkSize, sizeC, sizeT uint64, p *pool.Pool[T], newBuilder func() histogram.Builder) *Image5D[T] {
	images := make([][]*image3d.ChunkedImage3D[T], sizeT)
	for t := range images {
		row := make([]*image3d.ChunkedImage3D[T], sizeC)
		for c := range row {
			row[c] = image3d.New(size, block, p, newBuilder)
		}
		images[t] = row
	}
	return &Image5D[T]{sizeC: sizeC, sizeT: sizeT, images: images}
}

// SizeC reports the channel count.
func (im *Image5D[T]) SizeC() uint64 { return im.sizeC }

// SizeT reports the timepoint count.
func (im *Image5D[T]) SizeT() uint64 { return im.sizeT }

// Image3D returns the (t,c) slot's chunked 3D image.
func (im *Image5D[T]) Image3D(t, c uint64) *image3d.ChunkedImage3D[T] {
	return im.images[t][c]
}

// CopyData writes one XY slab at depth z into the (t,c) slot.
func (im *Image5D[T]) CopyData(t, c, z uint64, beginXY, endXY [2]uint64, data []T) {
	im.Image3D(t, c).CopyRegion(z, beginXY, endXY, data)
}

// PadBorderChunk zero-fills the (t,c) slot's block at the given block
// grid coordinates.
func (im *Image5D[T]) PadBorderChunk(bx, by, bz, c, t uint64) bool {
	return im.Image3D(t, c).PadBorderChunk(bx, by, bz)
}
