package volumewriter

import (
	"io"

	"go.uber.org/zap"

	"github.com/deepteams/volumewriter/internal/caltime"
	"github.com/deepteams/volumewriter/internal/codec"
	"github.com/deepteams/volumewriter/internal/colormodel"
	"github.com/deepteams/volumewriter/internal/voxel"
)

// Voxel type constants, re-exported from internal/voxel.
const (
	U8  = voxel.U8
	U16 = voxel.U16
	U32 = voxel.U32
	F32 = voxel.F32
)

// Dimension names one axis of the 5D (X,Y,Z,C,T) image.
type Dimension int

const (
	DimX Dimension = iota
	DimY
	DimZ
	DimC
	DimT
)

// AxisOrder lists all five Dimension values in the order a client's
// in-memory block lays them out, fastest-varying first.
type AxisOrder [5]Dimension

// DefaultAxisOrder is X,Y,Z,C,T fastest-to-slowest, the layout a
// caller gets if it never reorders its blocks.
var DefaultAxisOrder = AxisOrder{DimX, DimY, DimZ, DimC, DimT}

// Size5D is a voxel extent in full (X,Y,Z,C,T) form.
type Size5D struct {
	X, Y, Z, C, T uint64
}

// Index5D addresses one client-supplied block. BlockX/BlockY are block
// grid coordinates at the configured copy-block size; BlockZ is the
// absolute raw Z voxel depth index, not a block-grid coordinate - every
// copy-block is exactly one Z plane deep. Channel/Time are plain
// channel and timepoint indices.
type Index5D struct {
	BlockX, BlockY, BlockZ uint64
	Channel, Time          uint64
}

// ImageExtent is the image's physical (non-voxel) bounding box, used
// for the DataSetInfo/Image Ext{Min,Max}{0,1,2} attributes and to
// compute the thumbnail's isotropic pixel size.
type ImageExtent struct {
	MinX, MinY, MinZ float32
	MaxX, MaxY, MaxZ float32
}

// ChannelOptions describes one channel's metadata and display color.
type ChannelOptions struct {
	Name            string
	Description     string
	Color           ColorInfo
	GammaCorrection float32
	RangeMin        float32 // used only when AutoAdjustColorRange is false
	RangeMax        float32
}

// ColorInfo is re-exported from internal/colormodel so callers building
// Options never need to import an internal package directly.
type ColorInfo = colormodel.ColorInfo

// Color is re-exported from internal/colormodel.
type Color = colormodel.Color

// Options configures a single conversion run: image geometry, layout
// hints, compression, thumbnail size, and the metadata every converted
// file carries.
type Options struct {
	// DataType selects which of the four generic converter
	// instantiations Open builds; see voxel.Type.
	DataType voxel.Type

	// Output is the container file the conversion is written to. Open
	// takes ownership and closes it via Finish.
	Output io.WriteCloser

	ImageSize Size5D
	Extent    ImageExtent

	// BlockDimOrder is the axis order CopyBlock's data slices are laid
	// out in; DefaultAxisOrder if zero.
	BlockDimOrder AxisOrder
	// CopyBlockSizeXY is the client's chosen block granularity along X
	// and Y; Z blocks are always exactly one voxel deep. Zero picks
	// 256x256.
	CopyBlockSizeXY [2]uint64
	// SampleXY downsamples incoming data by this stride along X/Y
	// before it reaches level 0. {1,1} if zero.
	SampleXY [2]uint64
	// FlipX/FlipY mirror each incoming block's voxel content along X
	// and Y; FlipZ stores each plane at the depth-reversed Z index.
	// Together they mirror the whole stored image along the flipped
	// axes.
	FlipX, FlipY, FlipZ bool
	// ForceFileBlockSizeZ1 pins every pyramid level's chunk shape to a
	// single Z plane, trading compression ratio for per-slice random
	// access.
	ForceFileBlockSizeZ1 bool
	// DisablePyramid writes only resolution level 0 - no resampling,
	// no coarser levels.
	DisablePyramid bool

	Compression CompressionOptions

	ThumbnailSizeXY uint64 // 0 disables the thumbnail

	Channels []ChannelOptions
	// AutoAdjustColorRange derives each channel's display range from
	// its histogram instead of using ChannelOptions'
	// RangeMin/RangeMax.
	AutoAdjustColorRange bool

	RecordingDate caltime.TimeInfo
	TimePoints    []caltime.TimeInfo // one per T, RecordingDate if empty
	Unit          string             // voxel physical unit, e.g. "um"

	// PyramidVoxelBudget/ChunkByteBudget override the pyramid and
	// chunk-shape search budgets (internal/pyramid); zero uses the
	// package defaults.
	PyramidVoxelBudget uint64
	ChunkByteBudget    uint64
	// ByteBudget bounds in-flight raw+compressed bytes in the writer
	// pipeline; zero is unbounded.
	ByteBudget uint64
	// CompressionWorkers bounds concurrent compression goroutines; <=0
	// defaults to 1.
	CompressionWorkers int

	// Progress, if set, is called from a single dedicated goroutine
	// with a monotonically increasing fraction in [0,1] and the number
	// of bytes written to the container so far.
	Progress func(fraction float64, bytesWritten uint64)

	Logger *zap.Logger
}

// CompressionOptions selects the codec applied to every data chunk.
type CompressionOptions struct {
	Kind         CompressionKind
	DeflateLevel int // 1-9, recorded as the chunks' compression level for kinds that carry no deflate level of their own (Gzip kinds record theirs)
}

// CompressionKind re-exports internal/codec's wire-level selector so
// Options never needs an internal import.
type CompressionKind = codec.Kind

// Compression kind constants, re-exported from internal/codec.
const (
	CompressionNone         = codec.None
	CompressionGzip1        = codec.Gzip1
	CompressionGzip2        = codec.Gzip2
	CompressionGzip3        = codec.Gzip3
	CompressionGzip4        = codec.Gzip4
	CompressionGzip5        = codec.Gzip5
	CompressionGzip6        = codec.Gzip6
	CompressionGzip7        = codec.Gzip7
	CompressionGzip8        = codec.Gzip8
	CompressionGzip9        = codec.Gzip9
	CompressionShuffleGzip1 = codec.ShuffleGzip1
	CompressionShuffleGzip2 = codec.ShuffleGzip2
	CompressionShuffleGzip3 = codec.ShuffleGzip3
	CompressionShuffleGzip4 = codec.ShuffleGzip4
	CompressionShuffleGzip5 = codec.ShuffleGzip5
	CompressionShuffleGzip6 = codec.ShuffleGzip6
	CompressionShuffleGzip7 = codec.ShuffleGzip7
	CompressionShuffleGzip8 = codec.ShuffleGzip8
	CompressionShuffleGzip9 = codec.ShuffleGzip9
	CompressionLZ4          = codec.LZ4
	CompressionShuffleLZ4   = codec.ShuffleLZ4
)
