// Package container implements the write-only chunked container
// backend: a hierarchical group/dataset/attribute store modeled
// on the HDF5-based format it replaces, simplified to a single
// sequential, append-only chunk stream, since this writer never reads
// its own output back. Chunk framing - a FourCC tag plus a
// length-prefixed payload - generalizes a RIFF-style fixed chunk
// vocabulary to an open-ended, path-addressed one.
package container

import "encoding/binary"

// FourCC packs four ASCII bytes into a little-endian tag, the same
// encoding RIFF-family formats use for chunk IDs.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Chunk tags. Dset carries one memory block's compressed voxel
// payload, Hist a flushed histogram, Attr a group/dataset attribute,
// Thmb the RGBA thumbnail, and TOC the trailing table of contents
// written once at Close.
var (
	TagFile = FourCC('B', 'P', 'I', 'M')
	TagDset = FourCC('D', 'S', 'E', 'T')
	TagHist = FourCC('H', 'I', 'S', 'T')
	TagAttr = FourCC('A', 'T', 'T', 'R')
	TagThmb = FourCC('T', 'H', 'M', 'B')
	TagTOC  = FourCC('T', 'O', 'C', ' ')
)

// FileMagic is the container's 4-byte file signature, written once at
// the start of the stream before any chunk.
var FileMagic = [4]byte{'B', 'P', 'I', 'M'}

// FormatVersion is bumped whenever the chunk framing or TOC layout
// changes incompatibly.
const FormatVersion = 1

// ChunkHeaderSize is the fixed-size prefix before every chunk's
// variable-length name and payload: tag (4) + name length (2) +
// payload length (8).
const ChunkHeaderSize = 4 + 2 + 8

func putLE16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }
func putLE32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func putLE64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }

func readLE16(src []byte) uint16 { return binary.LittleEndian.Uint16(src) }
func readLE32(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }
func readLE64(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }
