// Package colormodel holds the per-channel color model used by the
// thumbnail colorizer and the Channel attribute schema's ColorMode:
// either a single base color scaled by a normalized voxel value, or an
// indexed color table, both gated by a display range and an optional
// gamma correction.
package colormodel

// Color is a normalized (0..1) RGBA color.
type Color struct {
	R, G, B, A float32
}

// ColorInfo is one channel's display color: either BaseColorMode
// (scale BaseColor by the normalized, gamma-corrected voxel value) or
// an indexed ColorTable (pick an entry by the normalized, gamma
// corrected voxel value), both clamped at RangeMin/RangeMax.
type ColorInfo struct {
	BaseColorMode   bool
	BaseColor       Color
	ColorTable      []Color
	Opacity         float32
	RangeMin        float32
	RangeMax        float32
	GammaCorrection float32
}

// GetColor maps a raw voxel value to a display color.
func (ci ColorInfo) GetColor(value float32) Color {
	if ci.BaseColorMode {
		if value <= ci.RangeMin {
			return Color{0, 0, 0, 1}
		}
		if value >= ci.RangeMax {
			return ci.BaseColor
		}
		t := normalize(value, ci.RangeMin, ci.RangeMax, ci.GammaCorrection)
		return Color{t * ci.BaseColor.R, t * ci.BaseColor.G, t * ci.BaseColor.B, 1}
	}

	if len(ci.ColorTable) == 0 {
		return Color{0, 0, 0, 1}
	}
	if value <= ci.RangeMin {
		return ci.ColorTable[0]
	}
	if value >= ci.RangeMax {
		return ci.ColorTable[len(ci.ColorTable)-1]
	}
	t := normalize(value, ci.RangeMin, ci.RangeMax, ci.GammaCorrection)
	idx := int(t * float32(len(ci.ColorTable)-1))
	return ci.ColorTable[idx]
}

func normalize(value, rangeMin, rangeMax, gamma float32) float32 {
	t := (value - rangeMin) / (rangeMax - rangeMin)
	if gamma != 1.0 {
		t = powf32(t, 1.0/gamma)
	}
	return t
}
