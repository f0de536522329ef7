package volumewriter

import "github.com/deepteams/volumewriter/internal/voxel"

// Writer drives one conversion from start to finish: CopyBlock accepts
// the client's raw voxel blocks in any order, NeedCopyBlock lets a
// client skip blocks it knows are already represented (e.g. resuming a
// partial conversion upstream of this package), and Finish flushes
// every still-buffered histogram, derives auto color ranges, builds
// the thumbnail, writes every metadata attribute, and closes the
// container.
type Writer interface {
	// NeedCopyBlock reports whether idx has not yet been supplied to
	// CopyBlock. It never blocks and never mutates converter state.
	NeedCopyBlock(idx Index5D) bool

	// CopyBlock accepts one client block: data must be a slice of the
	// converter's configured DataType ([]uint8, []uint16, []uint32, or
	// []float32), laid out per Options.BlockDimOrder. Concurrent calls
	// from multiple goroutines are safe; engine bookkeeping serializes
	// internally.
	CopyBlock(data any, idx Index5D) error

	// Finish completes the conversion: every channel's histogram is
	// flushed, auto color ranges are computed if requested, the
	// thumbnail is built and written, every metadata attribute is
	// stamped, and the container is closed. Finish must be called
	// exactly once, after every CopyBlock call has returned.
	Finish() error
}

// Open builds a Writer for opts, choosing the generic converter
// instantiation matching opts.DataType. All type dispatch happens
// here, once; every internal stage below is generic over the voxel
// type.
func Open(opts Options) (Writer, error) {
	switch opts.DataType {
	case voxel.U8:
		return newConverter[uint8](opts)
	case voxel.U16:
		return newConverter[uint16](opts)
	case voxel.U32:
		return newConverter[uint32](opts)
	case voxel.F32:
		return newConverter[float32](opts)
	default:
		return nil, errUnsupportedVoxelType()
	}
}
