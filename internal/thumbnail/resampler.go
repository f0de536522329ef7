package thumbnail

import (
	"github.com/deepteams/volumewriter/internal/colormodel"
	"github.com/deepteams/volumewriter/internal/pyramid"
)

// resampler holds the in-progress per-channel MIP/Middle projection
// buffers at the target thumbnail resolution.
type resampler[T any] struct {
	sizeX, sizeY uint64
	mip          [][]T
	middle       [][]T
}

func newResampler[T any](sizeX, sizeY uint64, sizeC int) *resampler[T] {
	r := &resampler[T]{sizeX: sizeX, sizeY: sizeY}
	r.mip = make([][]T, sizeC)
	r.middle = make([][]T, sizeC)
	for c := 0; c < sizeC; c++ {
		r.mip[c] = make([]T, sizeX*sizeY)
		r.middle[c] = make([]T, sizeX*sizeY)
	}
	return r
}

// resampleBlock projects one finished block's XY slices into the
// target-resolution MIP/Middle buffers for channel c.
func (r *resampler[T]) resampleBlock(c, bx, by, bz uint64, data []T, blockShape pyramid.ChunkSize, imageSize pyramid.Size) {
	beginXY := [2]uint64{bx * blockShape.X, by * blockShape.Y}
	endXY := [2]uint64{
		minU64((bx+1)*blockShape.X, imageSize.X),
		minU64((by+1)*blockShape.Y, imageSize.Y),
	}
	beginZ := bz * blockShape.Z

	for iz := uint64(0); iz < blockShape.Z; iz++ {
		z := beginZ + iz
		if z >= imageSize.Z {
			break
		}
		slice := data[blockShape.X*blockShape.Y*iz : blockShape.X*blockShape.Y*(iz+1)]
		r.copyData(c, z, beginXY, endXY, slice, blockShape.X, imageSize)
	}
}

func (r *resampler[T]) copyData(c, z uint64, beginXY, endXY [2]uint64, blockData []T, blockDataSizeX uint64, imageSize pyramid.Size) {
	beginDestXY := [2]uint64{
		beginXY[0] * r.sizeX / imageSize.X,
		beginXY[1] * r.sizeY / imageSize.Y,
	}
	endDestXY := [2]uint64{
		minU64((endXY[0]*r.sizeX+imageSize.X-1)/imageSize.X, r.sizeX),
		minU64((endXY[1]*r.sizeY+imageSize.Y-1)/imageSize.Y, r.sizeY),
	}

	mid := imageSize.Z / 2
	mipChan := r.mip[c]
	middleChan := r.middle[c]

	for iy := beginDestXY[1]; iy < endDestXY[1]; iy++ {
		y := iy * imageSize.Y / r.sizeY
		if y < beginXY[1] || y >= endXY[1] {
			continue
		}
		for ix := beginDestXY[0]; ix < endDestXY[0]; ix++ {
			x := ix * imageSize.X / r.sizeX
			if x < beginXY[0] || x >= endXY[0] {
				continue
			}
			src := (x - beginXY[0]) + (y-beginXY[1])*blockDataSizeX
			dst := ix + iy*r.sizeX
			v := blockData[src]
			if greater(v, mipChan[dst]) {
				mipChan[dst] = v
			}
			if z == mid {
				middleChan[dst] = v
			}
		}
	}
}

// colorize merges each channel's projection buffer into one RGBA
// image, max-merging per color component. u8/u16 channels use a
// precomputed lookup table; everything else evaluates ColorInfo's
// ramp per pixel.
func (r *resampler[T]) colorize(channels [][]T, colors []colormodel.ColorInfo) []byte {
	if len(channels) == 0 {
		return nil
	}
	rgba := make([]byte, len(channels[0])*4)
	for c, channel := range channels {
		lut := buildTable[T](colors[c])
		for i, v := range channel {
			color := colorFor(v, colors[c], lut)
			maxMergeByte(&rgba[i*4+0], color.R)
			maxMergeByte(&rgba[i*4+1], color.G)
			maxMergeByte(&rgba[i*4+2], color.B)
			maxMergeByte(&rgba[i*4+3], color.A)
		}
	}
	return rgba
}

func maxMergeByte(dst *byte, component float32) {
	v := byte(component * 255)
	if v > *dst {
		*dst = v
	}
}

// buildTable precomputes a 256- or 65536-entry color cache for u8/u16
// voxel types; it returns nil for every other type, where
// colorFor evaluates ColorInfo on the fly instead.
func buildTable[T any](ci colormodel.ColorInfo) []colormodel.Color {
	var zero T
	var n int
	switch any(zero).(type) {
	case uint8:
		n = 1 << 8
	case uint16:
		n = 1 << 16
	default:
		return nil
	}
	table := make([]colormodel.Color, n)
	for i := 0; i < n; i++ {
		table[i] = ci.GetColor(float32(i))
	}
	return table
}

func colorFor[T any](v T, ci colormodel.ColorInfo, lut []colormodel.Color) colormodel.Color {
	switch x := any(v).(type) {
	case uint8:
		if lut != nil {
			return lut[x]
		}
	case uint16:
		if lut != nil {
			return lut[x]
		}
	}
	return ci.GetColor(valueToFloat32(v))
}

func valueToFloat32[T any](v T) float32 {
	switch x := any(v).(type) {
	case uint8:
		return float32(x)
	case uint16:
		return float32(x)
	case uint32:
		return float32(x)
	case float32:
		return x
	default:
		return 0
	}
}

func greater[T any](a, b T) bool {
	switch x := any(a).(type) {
	case uint8:
		return x > any(b).(uint8)
	case uint16:
		return x > any(b).(uint16)
	case uint32:
		return x > any(b).(uint32)
	case float32:
		return x > any(b).(float32)
	default:
		return false
	}
}
