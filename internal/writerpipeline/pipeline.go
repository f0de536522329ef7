// Package writerpipeline implements the bounded-memory, pipelined
// compress-and-write stage: a compression pool that runs codec
// compression only (resampling into coarser levels is done by the
// engine on the compute goroutine, not in this pool), and a single
// writer goroutine that applies the results to the container backend
// in the exact order they were submitted. A semaphore-backed byte
// budget is the back-pressure mechanism: a caller submitting faster
// than the writer can drain blocks inside submit once the free-byte
// budget would go negative. Grounded on a row-pipelined parallel
// encoder (a fixed pool of goroutines draining a shared work counter,
// with a synchronization primitive gating a downstream serial pass on
// upstream completion) generalized from per-row submission order to
// this pipeline's arbitrary submission order, and on a single ordered
// chunk-append discipline for the writer side.
package writerpipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/deepteams/volumewriter/internal/codec"
	"github.com/deepteams/volumewriter/internal/container"
	"github.com/deepteams/volumewriter/internal/engine"
	"github.com/deepteams/volumewriter/internal/errkind"
	"github.com/deepteams/volumewriter/internal/histogram"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

// maxRunningJobsPerThread bounds level-0 submissions' pending compute
// work.
const maxRunningJobsPerThread = 32

// backgroundCtx is used for the byte-budget semaphore's Acquire calls,
// which this package never cancels: the pipeline exposes no
// cancellation or timeout surface of its own.
var backgroundCtx = context.Background()

// job is one compression-then-write task. Jobs are pushed onto the
// ordered queue in submission order; the writer goroutine pops them
// in that same order and blocks on done before invoking write, which
// is what gives the pipeline its FIFO-at-the-container guarantee
// regardless of which compression worker finishes first.
type job struct {
	done    chan struct{}
	err     error
	write   func() error // runs on the single writer goroutine only
	reserve int64        // byte-budget reservation, released after write
}

// Pipeline is the one concrete engine.WriteSink: it compresses and
// writes memory blocks, flushes histograms, and forwards finished
// blocks of every level to a thumbnail accumulator, all through one
// container backend.
type Pipeline[T any] struct {
	codec            codec.Codec
	compressionLevel int
	flags            container.FilterFlags
	backend          container.Backend
	blockShapes      []pyramid.ChunkSize
	log              *zap.Logger

	budget    *semaphore.Weighted // byte-budget back-pressure gate
	budgetCap int64

	compSem *semaphore.Weighted // bounds concurrent compression goroutines

	mu       sync.Mutex
	queue    []*job
	notEmpty *sync.Cond
	drained  *sync.Cond // signaled whenever the writer pops a job
	closed   bool

	writerDone chan struct{}

	errMu    sync.Mutex
	firstErr error

	pending sync.WaitGroup // outstanding compression goroutines

	thumbMu sync.Mutex
	thumb   ThumbnailSink[T]
}

// ThumbnailSink receives every finished block of every level (it keeps
// only the ones it needs) so the thumbnail builder can accumulate its MIP/Middle projections
// without the writer pipeline knowing anything about thumbnailing.
type ThumbnailSink[T any] interface {
	AddBlock(b engine.Block[T])
}

// Options configures a Pipeline.
type Options struct {
	// ByteBudget bounds in-flight raw+compressed bytes across both
	// pools, the back-pressure mechanism that keeps a fast producer
	// from outrunning a slow writer. Zero disables the gate
	// (unbounded).
	ByteBudget uint64
	// CompressionWorkers bounds concurrent compression goroutines.
	CompressionWorkers int
	Codec               codec.Codec
	CompressionKind     codec.Kind
	DeflateLevel        int
	Shuffled            bool
	Backend             container.Backend
	BlockShapes         []pyramid.ChunkSize
	Logger              *zap.Logger
}

// New builds a Pipeline and starts its single writer goroutine.
func New[T any](opts Options, thumb ThumbnailSink[T]) *Pipeline[T] {
	budget := opts.ByteBudget
	if budget == 0 {
		budget = 1 << 62 // effectively unbounded
	}
	workers := opts.CompressionWorkers
	if workers <= 0 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	flags := container.FilterNone
	if opts.Shuffled {
		flags |= container.FilterShuffle
	}
	if opts.CompressionKind.IsLZ4() {
		flags |= container.FilterLZ4
	} else if opts.CompressionKind.DeflateLevel() > 0 {
		flags |= container.FilterDeflate
	}

	p := &Pipeline[T]{
		codec:            opts.Codec,
		compressionLevel: opts.DeflateLevel,
		flags:            flags,
		backend:          opts.Backend,
		blockShapes:      opts.BlockShapes,
		log:              logger,
		budget:           semaphore.NewWeighted(int64(budget)),
		budgetCap:        int64(budget),
		compSem:          semaphore.NewWeighted(int64(workers)),
		writerDone:       make(chan struct{}),
		thumb:            thumb,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.drained = sync.NewCond(&p.mu)
	go p.runWriter()
	return p
}

// submit reserves budget bytes, appends an ordered job, and dispatches
// compress (a closure producing the compressed payload and a write
// closure) on a pool goroutine. highPriority jobs (resample-cascade
// writes) are still appended in submission order like any other job:
// "priority" here only affects how eagerly the caller is willing to
// block in waitSome before enqueuing more work, not the writer's FIFO
// order, which must hold regardless.
func (p *Pipeline[T]) submit(rawLen int, highPriority bool, compress func() ([]byte, error), write func([]byte) error) {
	maxCompressed := p.codec.MaxCompressedSize(rawLen)
	reserve := int64(rawLen) + int64(maxCompressed)
	if reserve > p.budgetCap {
		// A single block larger than the whole budget must still make
		// progress; it simply occupies the gate exclusively.
		reserve = p.budgetCap
	}

	if err := p.budget.Acquire(backgroundCtx, reserve); err != nil {
		p.recordErr(errkind.New(errkind.Internal, "writerpipeline: acquiring byte budget: %v", err))
		return
	}

	j := &job{done: make(chan struct{}), reserve: reserve}
	p.enqueueOrdered(j)

	if !highPriority {
		p.waitSome(maxRunningJobsPerThread)
	}

	p.pending.Add(1)
	if err := p.compSem.Acquire(backgroundCtx, 1); err != nil {
		p.pending.Done()
		j.err = errkind.New(errkind.Internal, "writerpipeline: acquiring compression worker slot: %v", err)
		close(j.done)
		return
	}
	go func() {
		defer p.pending.Done()
		defer p.compSem.Release(1)
		defer close(j.done)

		compressed, err := compress()
		if err != nil {
			j.err = errkind.New(errkind.Codec, "writerpipeline: compressing block: %v", err)
			return
		}
		j.write = func() error { return write(compressed) }
	}()
}

func (p *Pipeline[T]) enqueueOrdered(j *job) {
	p.mu.Lock()
	p.queue = append(p.queue, j)
	p.mu.Unlock()
	p.notEmpty.Signal()
}

// waitSome blocks until the number of outstanding (not-yet-written)
// jobs is at most maxDepth, bounding pending compute work so a fast
// producer cannot pile up arbitrarily many queued compressions.
func (p *Pipeline[T]) waitSome(maxDepth int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > maxDepth {
		p.drained.Wait()
	}
}

func (p *Pipeline[T]) runWriter() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.notEmpty.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			close(p.writerDone)
			return
		}
		j := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		p.drained.Broadcast()

		<-j.done
		if j.err != nil {
			p.recordErr(j.err)
		} else if err := j.write(); err != nil {
			p.recordErr(errkind.New(errkind.IO, "writerpipeline: writing chunk: %v", err))
		}
		// The byte-budget reservation covers the job until its write
		// has run, not just until compression finished: the compressed
		// payload stays in memory while queued behind earlier jobs.
		if j.reserve > 0 {
			p.budget.Release(j.reserve)
		}
	}
}

func (p *Pipeline[T]) recordErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.firstErr == nil {
		p.firstErr = err
		p.log.Error("writerpipeline: task failed", zap.Error(err))
	}
}

// WriteBlock implements engine.WriteSink: compresses and writes one
// memory block. Resampling is not done here: engine.finalizeBlock
// calls WriteBlock and then resamples the same block into the next
// level synchronously on the compute thread, so there is no separate
// pre_fn step - the engine package folds that concern in rather than
// this one, per the single-compute-thread model the converter runs
// bookkeeping on.
func (p *Pipeline[T]) WriteBlock(b engine.Block[T]) {
	raw := voxelBytes(b.Data)
	shape := p.blockShapes[b.Level]
	origin := [3]uint64{b.BZ * shape.Z, b.BY * shape.Y, b.BX * shape.X}
	voxelShape := [3]uint64{shape.Z, shape.Y, shape.X}
	path := container.ResolutionLevelPath(b.Level, b.Time, b.Chan, "Data")

	highPriority := b.Level > 0
	p.submit(len(raw), highPriority,
		func() ([]byte, error) {
			dst := make([]byte, p.codec.MaxCompressedSize(len(raw)))
			n, err := p.codec.Compress(raw, dst)
			if err != nil {
				return nil, err
			}
			return dst[:n], nil
		},
		func(compressed []byte) error {
			return p.backend.WriteChunk(path, origin, voxelShape, p.flags, p.compressionLevel, compressed)
		},
	)
}

// WriteHistogram implements engine.WriteSink: flushes one level's
// (t,c) histogram to the container. Histograms never need
// compression, so this is submitted as an already-completed job that
// still passes through the ordered writer queue, preserving the
// relative arrival order guaranteed for the writer thread. The
// default "Histogram" dataset always has at most 256 bins; when h
// arrives with more than that, a second "Histogram1024" dataset is
// written alongside it at h's own (finer) resolution.
func (p *Pipeline[T]) WriteHistogram(h histogram.Histogram, t, c, level uint64) {
	if len(h.Bins) > 256 {
		path1024 := container.ResolutionLevelPath(level, t, c, "Histogram1024")
		j := &job{done: make(chan struct{})}
		j.write = func() error { return p.backend.WriteHistogram(path1024, h.Bins) }
		close(j.done)
		p.enqueueOrdered(j)
		h = histogram.ResampleBins(h, 256)
	}
	path := container.ResolutionLevelPath(level, t, c, "Histogram")
	j := &job{done: make(chan struct{})}
	j.write = func() error { return p.backend.WriteHistogram(path, h.Bins) }
	close(j.done)
	p.enqueueOrdered(j)
}

// CopyThumbnailSource implements engine.WriteSink: forwards the
// block, whatever its level, to the thumbnail accumulator, if one was
// configured.
func (p *Pipeline[T]) CopyThumbnailSource(b engine.Block[T]) {
	if p.thumb == nil {
		return
	}
	p.thumbMu.Lock()
	defer p.thumbMu.Unlock()
	p.thumb.AddBlock(b)
}

// WriteThumbnail submits the composed RGBA thumbnail through the
// ordered writer queue, once it is available at Finish time. Like
// WriteAttribute, the write itself is asynchronous and any failure
// surfaces through Finish's firstErr, so this always returns nil.
func (p *Pipeline[T]) WriteThumbnail(width, height uint64, rgba []byte) error {
	j := &job{done: make(chan struct{})}
	j.write = func() error { return p.backend.WriteThumbnail(width, height, rgba) }
	close(j.done)
	p.enqueueOrdered(j)
	return nil
}

// WriteAttribute implements container.AttributeWriter: submits a
// single attribute write through the ordered writer queue. The write
// itself is asynchronous - any failure surfaces through Finish's
// firstErr, matching every other Write* method here - so this always
// returns nil immediately.
func (p *Pipeline[T]) WriteAttribute(groupPath, name, value string) error {
	j := &job{done: make(chan struct{})}
	j.write = func() error { return p.backend.WriteAttribute(groupPath, name, value) }
	close(j.done)
	p.enqueueOrdered(j)
	return nil
}

// Finish waits for every outstanding compression task to complete,
// drains the writer queue, closes the container backend, and returns
// the first error observed by any task, if any.
func (p *Pipeline[T]) Finish() error {
	p.pending.Wait()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.notEmpty.Signal()

	<-p.writerDone

	if err := p.backend.Close(); err != nil {
		p.recordErr(errkind.New(errkind.IO, "writerpipeline: closing container: %v", err))
	}

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.firstErr
}
