package container

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// entry records one written chunk's name and byte offset so Close can
// emit a trailing table of contents: a two-pass "stream the chunks,
// then stamp a directory" shape (payload first, container framing
// around it).
type entry struct {
	name   string
	offset uint64
	length uint64
	tag    uint32
}

// ChunkFile is the one concrete Backend: a sequential, append-only,
// write-only chunked container. Every WriteChunk/WriteHistogram/
// WriteAttribute/WriteThumbnail call appends one length-prefixed,
// FourCC-tagged chunk (see constants.go) to the underlying io.Writer.
// Close appends a TOC chunk enumerating every prior chunk's name,
// offset and length, standing in for the directory metadata a real
// HDF5 file would maintain internally. Safe for concurrent callers:
// the single mutex matches the writer pipeline's single writer-thread
// discipline, so contention here indicates a caller bug rather than
// expected concurrency.
type ChunkFile struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	offset  uint64
	entries []entry
}

// NewChunkFile wraps an io.WriteCloser (typically an *os.File) as a
// Backend, writing the file magic and format version immediately.
func NewChunkFile(wc io.WriteCloser) (*ChunkFile, error) {
	cf := &ChunkFile{w: bufio.NewWriterSize(wc, 1<<20), closer: wc}
	header := make([]byte, 4+2)
	copy(header[0:4], FileMagic[:])
	putLE16(header[4:6], FormatVersion)
	if err := cf.write(header); err != nil {
		return nil, errors.Wrap(err, "container: writing file header")
	}
	return cf, nil
}

func (cf *ChunkFile) write(p []byte) error {
	n, err := cf.w.Write(p)
	cf.offset += uint64(n)
	return err
}

// appendChunk writes one framed chunk and records it in the TOC.
// Caller must hold cf.mu.
func (cf *ChunkFile) appendChunk(tag uint32, name string, payload []byte) error {
	if len(name) > 1<<16-1 {
		return errors.Errorf("container: chunk name %q exceeds 65535 bytes", name)
	}
	hdr := make([]byte, ChunkHeaderSize)
	putLE32(hdr[0:4], tag)
	putLE16(hdr[4:6], uint16(len(name)))
	putLE64(hdr[6:14], uint64(len(payload)))

	start := cf.offset
	if err := cf.write(hdr); err != nil {
		return errors.Wrapf(err, "container: writing chunk header for %q", name)
	}
	if err := cf.write([]byte(name)); err != nil {
		return errors.Wrapf(err, "container: writing chunk name for %q", name)
	}
	if err := cf.write(payload); err != nil {
		return errors.Wrapf(err, "container: writing chunk payload for %q", name)
	}
	cf.entries = append(cf.entries, entry{name: name, offset: start, length: uint64(len(payload)), tag: tag})
	return nil
}

// WriteChunk implements Backend. The chunk's container name encodes
// the dataset path plus its voxel origin, so the TOC alone can locate
// any memory block without a separate index structure.
func (cf *ChunkFile) WriteChunk(datasetPath string, origin, shape [3]uint64, flags FilterFlags, compressionLevel int, data []byte) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	name := datasetPath + "/" + chunkOriginName(origin, shape, flags, compressionLevel)
	return cf.appendChunk(TagDset, name, data)
}

func chunkOriginName(origin, shape [3]uint64, flags FilterFlags, level int) string {
	b := make([]byte, 0, 64)
	b = appendU64(b, origin[0])
	b = append(b, '_')
	b = appendU64(b, origin[1])
	b = append(b, '_')
	b = appendU64(b, origin[2])
	b = append(b, '_')
	b = appendU64(b, shape[0])
	b = append(b, '_')
	b = appendU64(b, shape[1])
	b = append(b, '_')
	b = appendU64(b, shape[2])
	b = append(b, '_')
	b = appendU64(b, uint64(flags))
	b = append(b, '_')
	b = appendU64(b, uint64(level))
	return string(b)
}

func appendU64(dst []byte, v uint64) []byte {
	var tmp [20]byte
	i := len(tmp)
	if v == 0 {
		return append(dst, '0')
	}
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(dst, tmp[i:]...)
}

// WriteHistogram implements Backend, serializing bin counts as
// consecutive little-endian u64 values.
func (cf *ChunkFile) WriteHistogram(datasetPath string, bins []uint64) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	payload := make([]byte, 8*len(bins))
	for i, v := range bins {
		putLE64(payload[i*8:i*8+8], v)
	}
	return cf.appendChunk(TagHist, datasetPath, payload)
}

// WriteAttribute implements Backend, storing the value as a raw byte
// string: a 1D array of 1-byte characters.
func (cf *ChunkFile) WriteAttribute(groupPath, name, value string) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	path := groupPath + "/" + EncodeName(name)
	if strings.HasSuffix(groupPath, "/") {
		path = groupPath + EncodeName(name)
	}
	return cf.appendChunk(TagAttr, path, []byte(value))
}

// WriteThumbnail implements Backend, storing the RGBA raster with a
// small header recording its pixel dimensions.
func (cf *ChunkFile) WriteThumbnail(width, height uint64, rgba []byte) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	payload := make([]byte, 16+len(rgba))
	putLE64(payload[0:8], width)
	putLE64(payload[8:16], height)
	copy(payload[16:], rgba)
	return cf.appendChunk(TagThmb, "/Thumbnail/Data", payload)
}

// Close writes the trailing table of contents and flushes/closes the
// underlying writer. After Close, the ChunkFile must not be reused.
func (cf *ChunkFile) Close() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	toc := make([]byte, 0, 32*len(cf.entries)+8)
	countBuf := make([]byte, 8)
	putLE64(countBuf, uint64(len(cf.entries)))
	toc = append(toc, countBuf...)
	for _, e := range cf.entries {
		rec := make([]byte, 4+2+8+8+len(e.name))
		putLE32(rec[0:4], e.tag)
		putLE16(rec[4:6], uint16(len(e.name)))
		putLE64(rec[6:14], e.offset)
		putLE64(rec[14:22], e.length)
		copy(rec[22:], e.name)
		toc = append(toc, rec...)
	}
	if err := cf.appendChunk(TagTOC, "/TOC", toc); err != nil {
		return errors.Wrap(err, "container: writing table of contents")
	}
	if err := cf.w.Flush(); err != nil {
		return errors.Wrap(err, "container: flushing buffered writer")
	}
	return cf.closer.Close()
}
