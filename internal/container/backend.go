package container

// FilterFlags records which on-disk filters were applied to a chunk's
// bytes before the write, mirroring the HDF5 filter-pipeline bitmask
// the real container records per chunk.
type FilterFlags uint32

const (
	FilterNone    FilterFlags = 0
	FilterShuffle FilterFlags = 1 << 0
	FilterDeflate FilterFlags = 1 << 1
	FilterLZ4     FilterFlags = 1 << 2
)

// LZ4FilterID is the registered HDF5 filter identifier for LZ4. No
// backend here writes it to the file; LZ4 chunks are marked only by
// FilterLZ4 in their per-chunk flags.
const LZ4FilterID = 32004

// Backend is the write-only container-file adapter the engine and
// writer pipeline target. It is deliberately narrow: one raw-chunk
// write primitive addressed by dataset path and chunk origin, plus
// histogram/attribute/thumbnail sinks - a capability set rather than a
// wide interface. A real production build would target an HDF5
// library through this same interface; no such Go binding was
// available here, so ChunkFile below is the one concrete
// implementation shipped (see DESIGN.md).
type Backend interface {
	// WriteChunk stores one compressed memory block at dataset path
	// (e.g. "/DataSet/ResolutionLevel 0/TimePoint 0/Channel 0/Data"),
	// chunk origin (z,y,x) in voxels, and the chunk's full voxel shape
	// (z,y,x). flags and compressionLevel are recorded so the file's
	// attribute schema can describe the filter pipeline later.
	WriteChunk(datasetPath string, origin, shape [3]uint64, flags FilterFlags, compressionLevel int, data []byte) error

	// WriteHistogram stores a flushed histogram's bin counts at
	// datasetPath (e.g. ".../Histogram" or ".../Histogram1024").
	WriteHistogram(datasetPath string, bins []uint64) error

	// WriteAttribute stores a string attribute on a group or dataset
	// path, encoded per EncodeName's hierarchical round-trip rule.
	WriteAttribute(groupPath, name, value string) error

	// WriteThumbnail stores the composed RGBA thumbnail raster,
	// width x height pixels, 4 bytes per pixel, row-major.
	WriteThumbnail(width, height uint64, rgba []byte) error

	// Close flushes any trailing index structures (the table of
	// contents, for chunkfile.Backend) and releases the underlying
	// file handle.
	Close() error
}
