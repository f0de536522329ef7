// Package codec implements the chunk compression codecs: deflate at
// levels 1-9, LZ4, and an optional byte-shuffle pre-filter, behind one
// small capability-set interface.
package codec

import "github.com/deepteams/volumewriter/internal/errkind"

// Codec is the capability set every compressor implements: compute an
// upper bound on compressed size, then compress into a caller-owned
// destination.
type Codec interface {
	// MaxCompressedSize returns an upper bound on the number of bytes
	// Compress may write for an input of n bytes. The writer pipeline
	// reserves this many bytes from its memory budget before the
	// compression task runs.
	MaxCompressedSize(n int) int

	// Compress writes the compressed form of src into dst and returns
	// the number of bytes written. dst must have length >=
	// MaxCompressedSize(len(src)).
	Compress(src []byte, dst []byte) (int, error)
}

// Kind is the wire-level compression selector. Values are fixed and
// must not be renumbered: they are persisted nowhere in this
// repository's output, but mirror the host-facing enum a C facade
// (out of scope here) marshals from.
type Kind int

const (
	None          Kind = 0
	Gzip1         Kind = 1
	Gzip2         Kind = 2
	Gzip3         Kind = 3
	Gzip4         Kind = 4
	Gzip5         Kind = 5
	Gzip6         Kind = 6
	Gzip7         Kind = 7
	Gzip8         Kind = 8
	Gzip9         Kind = 9
	ShuffleGzip1  Kind = 11
	ShuffleGzip2  Kind = 12
	ShuffleGzip3  Kind = 13
	ShuffleGzip4  Kind = 14
	ShuffleGzip5  Kind = 15
	ShuffleGzip6  Kind = 16
	ShuffleGzip7  Kind = 17
	ShuffleGzip8  Kind = 18
	ShuffleGzip9  Kind = 19
	LZ4           Kind = 21
	ShuffleLZ4    Kind = 31
)

// IsShuffled reports whether the wire kind applies the byte-shuffle
// pre-filter before the inner codec.
func (k Kind) IsShuffled() bool {
	return (k >= ShuffleGzip1 && k <= ShuffleGzip9) || k == ShuffleLZ4
}

// IsLZ4 reports whether the wire kind's inner codec is LZ4.
func (k Kind) IsLZ4() bool {
	return k == LZ4 || k == ShuffleLZ4
}

// DeflateLevel returns the deflate level (1-9) this kind selects, or 0
// if the kind is not a deflate variant.
func (k Kind) DeflateLevel() int {
	switch {
	case k >= Gzip1 && k <= Gzip9:
		return int(k)
	case k >= ShuffleGzip1 && k <= ShuffleGzip9:
		return int(k) - 10
	default:
		return 0
	}
}

// New builds the Codec for a wire Kind and element size in bytes,
// which is needed only to decide whether the shuffle wrapper applies:
// shuffling is a no-op on 1-byte elements. None returns an identity
// codec, so uncompressed blocks still travel the same chunk write path
// with zero filter flags.
func New(k Kind, elemSize int) (Codec, error) {
	var inner Codec
	switch {
	case k == None:
		return identity{}, nil
	case k.IsLZ4():
		inner = newLZ4()
	default:
		level := k.DeflateLevel()
		if level < 1 || level > 9 {
			return nil, errkind.New(errkind.Config, "codec: unrecognized compression kind %d", k)
		}
		var err error
		inner, err = newDeflate(level)
		if err != nil {
			return nil, err
		}
	}
	if k.IsShuffled() && (elemSize == 2 || elemSize == 4) {
		return newShuffle(inner, elemSize), nil
	}
	return inner, nil
}

// fixedWriter is an io.Writer over a caller-owned, fixed-capacity
// destination slice. Unlike bytes.Buffer it never reallocates, so a
// codec that streams through it is guaranteed to either fit inside the
// reservation the writer pipeline made via MaxCompressedSize or report
// an error - it can never silently hand back a detached buffer.
type fixedWriter struct {
	dst []byte
	n   int
}

func (w *fixedWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > len(w.dst) {
		return 0, errkind.New(errkind.Codec, "codec: compressed output exceeds reserved %d bytes", len(w.dst))
	}
	copy(w.dst[w.n:], p)
	w.n += len(p)
	return len(p), nil
}

// identity is the None codec: Compress copies src to dst unchanged.
type identity struct{}

func (identity) MaxCompressedSize(n int) int { return n }

func (identity) Compress(src, dst []byte) (int, error) {
	return copy(dst, src), nil
}
