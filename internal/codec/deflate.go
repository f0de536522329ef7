package codec

import (
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/deepteams/volumewriter/internal/errkind"
)

// deflateCodec wraps klauspost/compress/flate, a drop-in faster
// replacement for compress/flate. Compress runs a one-shot
// Writer/Close cycle per call rather than keeping a streaming Writer
// open, because each compression-pool task compresses exactly one
// memory block's worth of bytes.
type deflateCodec struct {
	level int
	pool  sync.Pool
}

func newDeflate(level int) (*deflateCodec, error) {
	if level < 1 || level > 9 {
		return nil, errkind.New(errkind.Config, "codec: deflate level %d out of range [1,9]", level)
	}
	d := &deflateCodec{level: level}
	d.pool.New = func() any {
		w, _ := flate.NewWriter(nil, d.level)
		return w
	}
	return d, nil
}

// MaxCompressedSize follows the classic zlib compressBound formula:
// worst case deflate expands stored (uncompressible) data by roughly
// 0.1% plus a fixed 12-byte block overhead.
func (d *deflateCodec) MaxCompressedSize(n int) int {
	return n + n/1000 + 12
}

func (d *deflateCodec) Compress(src, dst []byte) (int, error) {
	fw := &fixedWriter{dst: dst}
	w := d.pool.Get().(*flate.Writer)
	w.Reset(fw)
	if _, err := w.Write(src); err != nil {
		d.pool.Put(w)
		return 0, errkind.Wrap(errkind.Codec, err, "deflate: write")
	}
	if err := w.Close(); err != nil {
		d.pool.Put(w)
		return 0, errkind.Wrap(errkind.Codec, err, "deflate: close")
	}
	d.pool.Put(w)
	return fw.n, nil
}
