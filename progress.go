package volumewriter

import (
	"sync/atomic"

	"github.com/deepteams/volumewriter/internal/container"
)

// countingBackend wraps a container.Backend and tallies the bytes
// handed to every chunk, histogram and thumbnail write (attribute
// writes pass through uncounted), so progress reporting has a concrete,
// monotonically increasing measure of output produced regardless of
// how well any particular chunk compressed.
type countingBackend struct {
	container.Backend
	bytesWritten uint64 // atomic
	notify       func()
}

func (c *countingBackend) WriteChunk(datasetPath string, origin, shape [3]uint64, flags container.FilterFlags, level int, data []byte) error {
	if err := c.Backend.WriteChunk(datasetPath, origin, shape, flags, level, data); err != nil {
		return err
	}
	atomic.AddUint64(&c.bytesWritten, uint64(len(data)))
	c.notify()
	return nil
}

func (c *countingBackend) WriteHistogram(datasetPath string, bins []uint64) error {
	if err := c.Backend.WriteHistogram(datasetPath, bins); err != nil {
		return err
	}
	atomic.AddUint64(&c.bytesWritten, uint64(8*len(bins)))
	c.notify()
	return nil
}

func (c *countingBackend) WriteThumbnail(width, height uint64, rgba []byte) error {
	if err := c.Backend.WriteThumbnail(width, height, rgba); err != nil {
		return err
	}
	atomic.AddUint64(&c.bytesWritten, uint64(len(rgba)))
	c.notify()
	return nil
}

func (c *countingBackend) bytes() uint64 {
	return atomic.LoadUint64(&c.bytesWritten)
}

// progressReporter drives a client's progress callback from a single
// dedicated goroutine, so a slow or reentrant callback can never be
// called concurrently with itself and can never block a compute or
// writer goroutine.
type progressReporter struct {
	callback    func(fraction float64, bytesWritten uint64)
	totalBlocks uint64
	doneBlocks  uint64 // atomic

	backend *countingBackend

	signal chan struct{}
	done   chan struct{}
}

func newProgressReporter(callback func(fraction float64, bytesWritten uint64), totalBlocks uint64, backend *countingBackend) *progressReporter {
	r := &progressReporter{
		callback:    callback,
		totalBlocks: totalBlocks,
		backend:     backend,
		signal:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	if callback != nil {
		go r.run()
	}
	return r
}

func (r *progressReporter) run() {
	for range r.signal {
		r.report()
	}
	close(r.done)
}

// report invokes the callback once, recovering from any panic so a
// misbehaving client callback can never bring down the conversion.
func (r *progressReporter) report() {
	defer func() { recover() }()
	done := atomic.LoadUint64(&r.doneBlocks)
	fraction := 1.0
	if r.totalBlocks > 0 {
		fraction = float64(done) / float64(r.totalBlocks)
	}
	r.callback(fraction, r.backend.bytes())
}

// wake schedules one report, coalescing bursts of calls that arrive
// before the reporter goroutine catches up.
func (r *progressReporter) wake() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *progressReporter) blockDone() {
	atomic.AddUint64(&r.doneBlocks, 1)
	r.wake()
}

// finish sends a final report and waits for the reporter goroutine to
// exit.
func (r *progressReporter) finish() {
	if r.callback == nil {
		return
	}
	r.wake()
	close(r.signal)
	<-r.done
}
