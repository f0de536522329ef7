package writerpipeline

import (
	"encoding/binary"
	"math"
)

// voxelBytes serializes a voxel slice to its little-endian on-disk
// byte representation. The codec and container packages operate on
// raw bytes (see codec.Codec.Compress, container.Backend.WriteChunk);
// this is the one place the writer pipeline crosses from the typed
// image domain into the byte domain.
func voxelBytes[T any](data []T) []byte {
	var zero T
	switch any(zero).(type) {
	case uint8:
		out := make([]byte, len(data))
		for i, v := range data {
			out[i] = byte(any(v).(uint8))
		}
		return out
	case uint16:
		out := make([]byte, len(data)*2)
		for i, v := range data {
			binary.LittleEndian.PutUint16(out[i*2:], any(v).(uint16))
		}
		return out
	case uint32:
		out := make([]byte, len(data)*4)
		for i, v := range data {
			binary.LittleEndian.PutUint32(out[i*4:], any(v).(uint32))
		}
		return out
	case float32:
		out := make([]byte, len(data)*4)
		for i, v := range data {
			bits := math.Float32bits(any(v).(float32))
			binary.LittleEndian.PutUint32(out[i*4:], bits)
		}
		return out
	default:
		return nil
	}
}
