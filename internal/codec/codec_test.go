package codec

import (
	"bytes"
	"compress/flate"
	"io"
	"math/rand"
	"testing"

	"github.com/pierrec/lz4/v4"
)

func deflateDecompress(t *testing.T, compressed []byte) []byte {
	t.Helper()
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	return out
}

func TestDeflateRoundTrip(t *testing.T) {
	for level := 1; level <= 9; level++ {
		c, err := newDeflate(level)
		if err != nil {
			t.Fatalf("newDeflate(%d): %v", level, err)
		}
		src := bytes.Repeat([]byte("abcdefgh"), 1000)
		dst := make([]byte, c.MaxCompressedSize(len(src)))
		n, err := c.Compress(src, dst)
		if err != nil {
			t.Fatalf("level %d: compress: %v", level, err)
		}
		got := deflateDecompress(t, dst[:n])
		if !bytes.Equal(got, src) {
			t.Fatalf("level %d: round trip mismatch", level)
		}
	}
}

func TestDeflateInvalidLevel(t *testing.T) {
	if _, err := newDeflate(0); err == nil {
		t.Fatal("expected error for level 0")
	}
	if _, err := newDeflate(10); err == nil {
		t.Fatal("expected error for level 10")
	}
}

func TestLZ4RoundTrip(t *testing.T) {
	c := newLZ4()
	src := bytes.Repeat([]byte{1, 2, 3, 4}, 5000)
	dst := make([]byte, c.MaxCompressedSize(len(src)))
	n, err := c.Compress(src, dst)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	out := dst[:n]

	origSize1 := uint64(out[0])<<56 | uint64(out[1])<<48 | uint64(out[2])<<40 | uint64(out[3])<<32 |
		uint64(out[4])<<24 | uint64(out[5])<<16 | uint64(out[6])<<8 | uint64(out[7])
	origSize2 := uint32(out[8])<<24 | uint32(out[9])<<16 | uint32(out[10])<<8 | uint32(out[11])
	compSize := uint32(out[12])<<24 | uint32(out[13])<<16 | uint32(out[14])<<8 | uint32(out[15])

	if origSize1 != uint64(len(src)) || origSize2 != uint32(len(src)) {
		t.Fatalf("header original size mismatch: got %d/%d want %d", origSize1, origSize2, len(src))
	}
	if int(compSize) != len(out)-lz4HeaderSize {
		t.Fatalf("header compressed size %d != actual %d", compSize, len(out)-lz4HeaderSize)
	}

	decoded := make([]byte, len(src))
	dn, err := lz4.UncompressBlock(out[lz4HeaderSize:], decoded)
	if err != nil {
		t.Fatalf("uncompress: %v", err)
	}
	if !bytes.Equal(decoded[:dn], src) {
		t.Fatal("lz4 round trip mismatch")
	}
}

func TestShuffleRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, elemSize := range []int{2, 4} {
		count := 1000
		src := make([]byte, count*elemSize)
		rng.Read(src)

		shuffled := make([]byte, len(src))
		shuffle(src, shuffled, elemSize)

		back := make([]byte, len(src))
		unshuffle(shuffled, back, elemSize)

		if !bytes.Equal(back, src) {
			t.Fatalf("elemSize %d: shuffle/unshuffle round trip mismatch", elemSize)
		}
	}
}

func TestShuffleThenCodecRoundTrip(t *testing.T) {
	for _, k := range []Kind{ShuffleGzip6, ShuffleLZ4} {
		for _, elemSize := range []int{2, 4} {
			c, err := New(k, elemSize)
			if err != nil {
				t.Fatalf("New(%d,%d): %v", k, elemSize, err)
			}
			count := 2000
			src := make([]byte, count*elemSize)
			rng := rand.New(rand.NewSource(int64(k)*10 + int64(elemSize)))
			rng.Read(src)

			dst := make([]byte, c.MaxCompressedSize(len(src)))
			n, err := c.Compress(src, dst)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}

			var shuffledBack []byte
			if k.IsLZ4() {
				out := dst[:n]
				compSize := uint32(out[12])<<24 | uint32(out[13])<<16 | uint32(out[14])<<8 | uint32(out[15])
				shuffledBack = make([]byte, len(src))
				dn, err := lz4.UncompressBlock(out[lz4HeaderSize:lz4HeaderSize+int(compSize)], shuffledBack)
				if err != nil {
					t.Fatalf("lz4 uncompress: %v", err)
				}
				shuffledBack = shuffledBack[:dn]
			} else {
				shuffledBack = deflateDecompress(t, dst[:n])
			}

			restored := make([]byte, len(src))
			unshuffle(shuffledBack, restored, elemSize)
			if !bytes.Equal(restored, src) {
				t.Fatalf("kind %d elemSize %d: decompress(compress(x)) != x", k, elemSize)
			}
		}
	}
}

func TestIdentityCodec(t *testing.T) {
	c, err := New(None, 2)
	if err != nil {
		t.Fatal(err)
	}
	src := []byte{1, 2, 3, 4, 5}
	dst := make([]byte, c.MaxCompressedSize(len(src)))
	n, err := c.Compress(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst[:n], src) {
		t.Fatal("identity codec altered data")
	}
}
