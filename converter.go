package volumewriter

import (
	"sync"

	"go.uber.org/zap"

	"github.com/deepteams/volumewriter/internal/codec"
	"github.com/deepteams/volumewriter/internal/container"
	"github.com/deepteams/volumewriter/internal/engine"
	"github.com/deepteams/volumewriter/internal/errkind"
	"github.com/deepteams/volumewriter/internal/histogram"
	"github.com/deepteams/volumewriter/internal/pool"
	"github.com/deepteams/volumewriter/internal/pyramid"
	"github.com/deepteams/volumewriter/internal/thumbnail"
	"github.com/deepteams/volumewriter/internal/voxel"
	"github.com/deepteams/volumewriter/internal/writerpipeline"
)

// converterT is the one concrete Writer implementation, generic over
// the four voxel types Open dispatches between. It wires together the
// pyramid engine, the compress-and-write pipeline, the thumbnail
// builder, and the container backend.
type converterT[T voxel.Numeric] struct {
	opts       Options
	rawSizeXY  [2]uint64 // raw (pre-sample) full image extent, X/Y
	storedSize pyramid.Size

	copyBlockSizeXY [2]uint64
	sampleXY        [2]uint64
	axisOrder       AxisOrder

	nCopyBlocksX, nCopyBlocksY uint64

	engine   *engine.Engine[T]
	pipeline *writerpipeline.Pipeline[T]
	thumb    *thumbnail.Builder[T]
	backend  *countingBackend
	progress *progressReporter
	compute  *computeQueue
	log      *zap.Logger

	levels      []pyramid.Size
	blockShapes []pyramid.ChunkSize

	mu       sync.Mutex
	copied   []bool
	finished bool
}

func newConverter[T voxel.Numeric](opts Options) (*converterT[T], error) {
	if opts.ImageSize.X == 0 || opts.ImageSize.Y == 0 || opts.ImageSize.Z == 0 ||
		opts.ImageSize.C == 0 || opts.ImageSize.T == 0 {
		return nil, errZeroImageSize()
	}
	if len(opts.Channels) != int(opts.ImageSize.C) {
		return nil, errInvalidChannelCount()
	}
	if opts.Output == nil {
		return nil, errkind.New(errkind.Config, "Output destination is required")
	}

	axisOrder := opts.BlockDimOrder
	if axisOrder == (AxisOrder{}) {
		axisOrder = DefaultAxisOrder
	}
	copyBlockSizeXY := opts.CopyBlockSizeXY
	if copyBlockSizeXY[0] == 0 {
		copyBlockSizeXY[0] = 256
	}
	if copyBlockSizeXY[1] == 0 {
		copyBlockSizeXY[1] = 256
	}
	sampleXY := opts.SampleXY
	if sampleXY[0] == 0 {
		sampleXY[0] = 1
	}
	if sampleXY[1] == 0 {
		sampleXY[1] = 1
	}

	storedSize := pyramid.Size{
		X: divCeil(opts.ImageSize.X, sampleXY[0]),
		Y: divCeil(opts.ImageSize.Y, sampleXY[1]),
		Z: opts.ImageSize.Z,
	}

	pyramidBudget := opts.PyramidVoxelBudget
	if opts.DisablePyramid {
		pyramidBudget = storedSize.Voxels()
	}
	chunkBudget := opts.ChunkByteBudget

	levels, blockShapes := planPyramid(storedSize, !opts.ForceFileBlockSizeZ1, pyramidBudget, chunkBudget, elemSizeOf[T](), opts.ImageSize.T, opts.ForceFileBlockSizeZ1)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chunkFile, err := container.NewChunkFile(opts.Output)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, err, "volumewriter: opening container")
	}

	nCopyBlocksX := divCeil(opts.ImageSize.X, copyBlockSizeXY[0])
	nCopyBlocksY := divCeil(opts.ImageSize.Y, copyBlockSizeXY[1])

	c := &converterT[T]{
		opts:            opts,
		rawSizeXY:       [2]uint64{opts.ImageSize.X, opts.ImageSize.Y},
		storedSize:      storedSize,
		copyBlockSizeXY: copyBlockSizeXY,
		sampleXY:        sampleXY,
		axisOrder:       axisOrder,
		nCopyBlocksX:    nCopyBlocksX,
		nCopyBlocksY:    nCopyBlocksY,
		compute:         newComputeQueue(),
		log:             logger,
		levels:          levels,
		blockShapes:     blockShapes,
		copied:          make([]bool, nCopyBlocksX*nCopyBlocksY*opts.ImageSize.Z*opts.ImageSize.C*opts.ImageSize.T),
	}

	backend := &countingBackend{Backend: chunkFile}

	var thumb *thumbnail.Builder[T]
	var thumbSink writerpipeline.ThumbnailSink[T]
	if opts.ThumbnailSizeXY > 0 {
		thumb = thumbnail.NewBuilder[T](opts.ThumbnailSizeXY, levels, blockShapes, opts.ImageSize.C)
		thumbSink = thumb
	}
	backend.notify = func() {
		if c.progress != nil {
			c.progress.wake()
		}
	}
	c.backend = backend

	flags := opts.Compression.Kind
	cdc, err := codec.New(flags, voxel.TypeOf[T](0).Size())
	if err != nil {
		return nil, err
	}
	deflateLevel := flags.DeflateLevel()
	if deflateLevel == 0 {
		deflateLevel = opts.Compression.DeflateLevel
	}

	c.pipeline = writerpipeline.New[T](writerpipeline.Options{
		ByteBudget:         opts.ByteBudget,
		CompressionWorkers: opts.CompressionWorkers,
		Codec:              cdc,
		CompressionKind:    flags,
		DeflateLevel:       deflateLevel,
		Shuffled:           flags.IsShuffled() && voxel.TypeOf[T](0).Size() > 1,
		Backend:            backend,
		BlockShapes:        blockShapes,
		Logger:             logger,
	}, thumbSink)
	c.thumb = thumb

	p := pool.New[T]()
	c.engine = engine.New[T](
		storedSize, opts.ImageSize.C, opts.ImageSize.T,
		copyBlockSizeXY, sampleXY, [2]uint64{opts.ImageSize.X, opts.ImageSize.Y},
		[2]bool{opts.FlipX, opts.FlipY},
		!opts.ForceFileBlockSizeZ1, opts.ForceFileBlockSizeZ1,
		engine.Budgets{PyramidVoxels: pyramidBudget, ChunkSizeBytes: chunkBudget},
		p, newHistogramBuilder[T],
		c.pipeline,
	)

	totalBlocks := nCopyBlocksX * nCopyBlocksY * opts.ImageSize.Z * opts.ImageSize.C * opts.ImageSize.T
	c.progress = newProgressReporter(opts.Progress, totalBlocks, backend)

	logger.Info("converter opened",
		zap.Stringer("dataType", opts.DataType),
		zap.Uint64("sizeX", opts.ImageSize.X),
		zap.Uint64("sizeY", opts.ImageSize.Y),
		zap.Uint64("sizeZ", opts.ImageSize.Z),
		zap.Uint64("channels", opts.ImageSize.C),
		zap.Uint64("timepoints", opts.ImageSize.T),
		zap.Int("resolutionLevels", len(levels)),
		zap.Uint64("copyBlocks", totalBlocks),
	)

	return c, nil
}

// planPyramid mirrors engine.New's own level/chunk-shape derivation so
// the top-level converter can build the thumbnail builder and pipeline
// options before the engine exists. It repeats engine.New's budget
// defaulting, so the two must apply the same defaults.
func planPyramid(size pyramid.Size, reduceZ bool, pyramidBudget, chunkBudget uint64, elemBytes int, sizeT uint64, forceBlockSizeZ1 bool) ([]pyramid.Size, []pyramid.ChunkSize) {
	if pyramidBudget == 0 {
		pyramidBudget = pyramid.DefaultPyramidBudget
	}
	if chunkBudget == 0 {
		chunkBudget = pyramid.DefaultChunkBudgetBytes
	}
	levels := pyramid.Levels(size, reduceZ, pyramidBudget)
	shapes := pyramid.BlockSizes(levels, chunkBudget, elemBytes, sizeT)
	if forceBlockSizeZ1 {
		for i := range shapes {
			shapes[i].Z = 1
		}
	}
	return levels, shapes
}

func elemSizeOf[T voxel.Numeric]() int {
	return voxel.TypeOf[T](0).Size()
}

func newHistogramBuilder[T voxel.Numeric]() histogram.Builder {
	switch voxel.TypeOf[T](0) {
	case voxel.U8:
		return histogram.NewFixedU8()
	case voxel.U16:
		return histogram.NewFixedU16()
	default:
		return histogram.NewAdaptive()
	}
}

func divCeil(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// copyBlockIndex1D flattens a (bx,by,z,c,t) copy-block address, used
// to dedup already-copied blocks.
func (c *converterT[T]) copyBlockIndex1D(idx Index5D) uint64 {
	return idx.BlockX + c.nCopyBlocksX*(idx.BlockY+c.nCopyBlocksY*(idx.BlockZ+c.opts.ImageSize.Z*(idx.Channel+c.opts.ImageSize.C*idx.Time)))
}

func (c *converterT[T]) inBounds(idx Index5D) bool {
	return idx.BlockX < c.nCopyBlocksX && idx.BlockY < c.nCopyBlocksY &&
		idx.BlockZ < c.opts.ImageSize.Z && idx.Channel < c.opts.ImageSize.C && idx.Time < c.opts.ImageSize.T
}

// NeedCopyBlock implements Writer.
func (c *converterT[T]) NeedCopyBlock(idx Index5D) bool {
	if !c.inBounds(idx) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.copied[c.copyBlockIndex1D(idx)]
}

// CopyBlock implements Writer: validates idx and data, reorders/flips/
// subsamples the raw block into stored-resolution voxels, and runs the
// engine update on the single compute goroutine.
func (c *converterT[T]) CopyBlock(data any, idx Index5D) error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return errAlreadyFinished()
	}
	if !c.inBounds(idx) {
		c.mu.Unlock()
		return errNoOverlap()
	}
	blockIdx := c.copyBlockIndex1D(idx)
	if c.copied[blockIdx] {
		c.mu.Unlock()
		return errBlockAlreadyCopied()
	}
	c.mu.Unlock()

	raw, ok := data.([]T)
	if !ok {
		return errDataTypeMismatch()
	}

	rawW, rawH := c.clippedRawShape(idx)
	if uint64(len(raw)) != rawW*rawH {
		return errInvalidDataSize()
	}

	storedRow := c.resample(raw, idx, rawW, rawH)
	if len(storedRow) == 0 {
		// Fully outside the stored image after sampling; nothing to
		// copy, but still mark it done so NeedCopyBlock doesn't loop.
		c.markCopied(blockIdx)
		c.progress.blockDone()
		return nil
	}

	// X and Y mirror in resample (content) and in the engine's region
	// mapping (placement); Z mirrors here, by storing the plane at the
	// depth-reversed index.
	z := idx.BlockZ
	if c.opts.FlipZ {
		z = c.opts.ImageSize.Z - 1 - idx.BlockZ
	}

	err := c.compute.Run(func() error {
		c.engine.CopyData(idx.Time, idx.Channel, z, [2]uint64{idx.BlockX, idx.BlockY}, storedRow)
		return nil
	})
	if err != nil {
		return err
	}

	c.markCopied(blockIdx)
	c.progress.blockDone()
	return nil
}

func (c *converterT[T]) markCopied(blockIdx uint64) {
	c.mu.Lock()
	c.copied[blockIdx] = true
	c.mu.Unlock()
}

// clippedRawShape returns the raw (pre-sample) voxel extent the client
// is expected to supply for idx's X/Y block, clipped at the image
// boundary.
func (c *converterT[T]) clippedRawShape(idx Index5D) (w, h uint64) {
	w = c.copyBlockSizeXY[0]
	if begin := idx.BlockX * c.copyBlockSizeXY[0]; begin+w > c.rawSizeXY[0] {
		w = c.rawSizeXY[0] - begin
	}
	h = c.copyBlockSizeXY[1]
	if begin := idx.BlockY * c.copyBlockSizeXY[1]; begin+h > c.rawSizeXY[1] {
		h = c.rawSizeXY[1] - begin
	}
	return w, h
}

// resample reorders raw per c.axisOrder, mirrors the content per
// Options.FlipX/FlipY (the engine mirrors the block's landing
// position to match), and subsamples it down to the stored-resolution
// row engine.CopyData expects. Z is never subsampled; Options.FlipZ
// acts on the plane's depth index in CopyBlock, not on the plane's
// content here.
func (c *converterT[T]) resample(raw []T, idx Index5D, rawW, rawH uint64) []T {
	posX, posY := axisPosition(c.axisOrder, DimX), axisPosition(c.axisOrder, DimY)
	transposed := posY < posX

	rawAt := func(x, y uint64) T {
		if transposed {
			return raw[x*rawH+y]
		}
		return raw[y*rawW+x]
	}

	rawOriginX := idx.BlockX * c.copyBlockSizeXY[0]
	rawOriginY := idx.BlockY * c.copyBlockSizeXY[1]

	beginX := divCeil0(rawOriginX, c.sampleXY[0])
	beginY := divCeil0(rawOriginY, c.sampleXY[1])
	endX := divCeil0(rawOriginX+rawW, c.sampleXY[0])
	endY := divCeil0(rawOriginY+rawH, c.sampleXY[1])
	if endX > c.storedSize.X {
		endX = c.storedSize.X
	}
	if endY > c.storedSize.Y {
		endY = c.storedSize.Y
	}
	if beginX >= endX || beginY >= endY {
		return nil
	}

	storedW, storedH := endX-beginX, endY-beginY
	out := make([]T, storedW*storedH)
	for sy := uint64(0); sy < storedH; sy++ {
		// The raw coordinate of the sy-th output row, relative to this
		// block's origin. Not simply sy*sample: the block origin
		// itself need not be sample-aligned. A flipped axis walks the
		// block's stored range backwards, so the mirror is over the
		// whole image rather than within one block.
		srcY := beginY + sy
		if c.opts.FlipY {
			srcY = endY - 1 - sy
		}
		y := srcY*c.sampleXY[1] - rawOriginY
		for sx := uint64(0); sx < storedW; sx++ {
			srcX := beginX + sx
			if c.opts.FlipX {
				srcX = endX - 1 - sx
			}
			x := srcX*c.sampleXY[0] - rawOriginX
			out[sy*storedW+sx] = rawAt(x, y)
		}
	}

	return out
}

func divCeil0(a, b uint64) uint64 {
	if b == 0 {
		b = 1
	}
	return (a + b - 1) / b
}

func axisPosition(order AxisOrder, d Dimension) int {
	for i, a := range order {
		if a == d {
			return i
		}
	}
	return -1
}

// Finish implements Writer.
func (c *converterT[T]) Finish() error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return errAlreadyFinished()
	}
	c.finished = true
	c.mu.Unlock()

	if err := c.compute.Run(func() error {
		c.engine.FinishWriteDataBlocks()
		return nil
	}); err != nil {
		return err
	}
	c.compute.Close()

	if err := c.writeMetadata(); err != nil {
		c.pipeline.Finish()
		c.progress.finish()
		return err
	}

	err := c.pipeline.Finish()
	c.progress.finish()
	if err != nil {
		c.log.Error("conversion failed", zap.Error(err))
	} else {
		c.log.Info("conversion finished", zap.Uint64("bytesWritten", c.backend.bytes()))
	}
	return err
}
