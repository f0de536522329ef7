// Package image3d implements the chunked 3D image: a voxel grid
// split into fixed-size memory blocks, written region-by-region as
// acquisition data streams in, with border blocks padded to full size
// and per-block histogram accumulation partitioned across a handful of
// builders to keep contention low.
package image3d

import "github.com/deepteams/volumewriter/internal/pool"

// MemBlock is one fixed-size chunk of a ChunkedImage3D's voxel grid,
// backed by a pool-recycled buffer so repeated allocation/free cycles
// across a long acquisition don't pressure the GC (internal/pool's
// single free-list of voxel slices of any type).
type MemBlock[T any] struct {
	pool   *pool.Pool[T]
	voxels int
	buf    pool.Buffer[T]
}

func newMemBlock[T any](p *pool.Pool[T], voxels int) MemBlock[T] {
	return MemBlock[T]{pool: p, voxels: voxels}
}

// ensure allocates the backing buffer on first touch, so blocks never
// cost memory before data lands in them. Pool buffers arrive
// uninitialized; every in-image voxel is overwritten before the block
// completes, and the out-of-image overhang is zeroed by border
// padding.
func (b *MemBlock[T]) ensure() {
	if b.buf.Data != nil {
		return
	}
	b.buf = b.pool.Get(b.voxels)
}

// Data returns the block's backing voxel slice, allocating it if no
// write has touched this block yet.
func (b *MemBlock[T]) Data() []T {
	b.ensure()
	return b.buf.Data
}

// CopyLinePartToBlock writes n contiguous voxels starting at offset
// within the block. src == nil means zero-fill, used by border-block
// padding.
func (b *MemBlock[T]) CopyLinePartToBlock(offset, n uint64, src []T) {
	b.ensure()
	dst := b.buf.Data[offset : offset+n]
	if src == nil {
		var zero T
		for i := range dst {
			dst[i] = zero
		}
		return
	}
	copy(dst, src[:n])
}
