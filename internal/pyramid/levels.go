// Package pyramid implements the pyramid and chunk-size planner: a
// deterministic, pure pair of cost searches that derive the resolution
// levels and the per-level chunk shapes from the stored image size.
package pyramid

// Size is a resolution level's per-axis extent, X/Y/Z only - C and T
// never participate in the pyramid or chunk-shape search.
type Size struct {
	X, Y, Z uint64
}

// Voxels returns X*Y*Z.
func (s Size) Voxels() uint64 { return s.X * s.Y * s.Z }

// DefaultPyramidBudget is the default voxel-count stopping threshold:
// subdivision stops once a level would drop to about 1 Mi voxels.
const DefaultPyramidBudget = uint64(1) << 20

// Levels computes the resolution pyramid [R0..R(L-1)] for a stored
// image of the given full-resolution size. When reduceZ is false (the
// client requested flat, Z-pinned chunks), Z counts as 1 in the
// reduce predicate and is never halved.
func Levels(full Size, reduceZ bool, budget uint64) []Size {
	result := []Size{full}
	size := full

	for size.Voxels() > budget {
		effZ := size.Z
		if !reduceZ {
			effZ = 1
		}
		reduceX := size.X > 1 && sq(10*size.X) > size.Y*effZ
		reduceY := size.Y > 1 && sq(10*size.Y) > size.X*effZ
		reduceZAxis := effZ > 1 && sq(10*effZ) > size.X*size.Y

		if !reduceX && !reduceY && !reduceZAxis {
			break
		}
		if reduceX {
			size.X /= 2
		}
		if reduceY {
			size.Y /= 2
		}
		if reduceZAxis {
			size.Z /= 2
		}
		result = append(result, size)
	}
	return result
}

func sq(v uint64) uint64 { return v * v }
