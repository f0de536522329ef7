package codec

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"

	"github.com/deepteams/volumewriter/internal/errkind"
)

// lz4HeaderSize is the 16-byte header prefixed to every LZ4 block: an
// 8-byte big-endian original size, a 4-byte original size (repeated,
// matching the HDF5 LZ4 filter's on-disk framing so the container
// backend's raw-chunk write path never has to special-case the
// codec), and a 4-byte compressed size.
const lz4HeaderSize = 16

// lz4Codec wraps pierrec/lz4/v4 for block compression.
type lz4Codec struct{}

func newLZ4() *lz4Codec { return &lz4Codec{} }

func (lz4Codec) MaxCompressedSize(n int) int {
	return lz4HeaderSize + lz4.CompressBlockBound(n)
}

func (lz4Codec) Compress(src, dst []byte) (int, error) {
	if len(dst) < lz4HeaderSize {
		return 0, errkind.New(errkind.Codec, "lz4: destination too small for header")
	}
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst[lz4HeaderSize:])
	if err != nil {
		return 0, errkind.Wrap(errkind.Codec, err, "lz4: compress block")
	}
	if n == 0 {
		// CompressBlock returns n==0 when the input is incompressible
		// under the chosen format; fall back to storing it raw so the
		// pipeline always has valid output to write.
		if len(dst) < lz4HeaderSize+len(src) {
			return 0, errkind.New(errkind.Codec, "lz4: destination too small for incompressible fallback")
		}
		n = copy(dst[lz4HeaderSize:], src)
	}

	binary.BigEndian.PutUint64(dst[0:8], uint64(len(src)))
	binary.BigEndian.PutUint32(dst[8:12], uint32(len(src)))
	binary.BigEndian.PutUint32(dst[12:16], uint32(n))

	return lz4HeaderSize + n, nil
}
