package pyramid

import "testing"

func TestLevelsStaysSingleWhenUnderBudget(t *testing.T) {
	// A 4x4x1 u16 flat image stays at a single resolution level
	// under the default ~1Mi voxel budget.
	levels := Levels(Size{X: 4, Y: 4, Z: 1}, true, DefaultPyramidBudget)
	if len(levels) != 1 {
		t.Fatalf("expected 1 level, got %d: %v", len(levels), levels)
	}
}

func TestLevelsReducesLargeImage(t *testing.T) {
	levels := Levels(Size{X: 4096, Y: 4096, Z: 256}, true, DefaultPyramidBudget)
	if len(levels) < 2 {
		t.Fatalf("expected multiple levels for a large image, got %d", len(levels))
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].Voxels() >= levels[i-1].Voxels() {
			t.Fatalf("level %d did not shrink relative to level %d", i, i-1)
		}
	}
	last := levels[len(levels)-1]
	if last.Voxels() > DefaultPyramidBudget {
		// The loop may legitimately stop above budget if no axis
		// qualifies any further, but for a cube-ish image it should
		// converge under budget.
		t.Logf("final level voxel count %d (budget %d)", last.Voxels(), DefaultPyramidBudget)
	}
}

func TestLevelsPinnedZNeverReduces(t *testing.T) {
	levels := Levels(Size{X: 2048, Y: 2048, Z: 64}, false, DefaultPyramidBudget)
	for i, l := range levels {
		if l.Z != 64 {
			t.Fatalf("level %d: Z reduced to %d despite pinning", i, l.Z)
		}
	}
}

func TestLevelsStopsAtSingleVoxel(t *testing.T) {
	levels := Levels(Size{X: 1, Y: 1, Z: 1}, true, 0)
	if len(levels) != 1 {
		t.Fatalf("expected pyramid of 1x1x1 to have exactly one level, got %d", len(levels))
	}
}

func TestBlockSizesAdmissible3D(t *testing.T) {
	sizes := []Size{{X: 256, Y: 256, Z: 256}}
	chunks := BlockSizes(sizes, DefaultChunkBudgetBytes, 1, 1)
	c := chunks[0]
	if c.X != c.Y {
		t.Fatalf("3D chunk shape must be square in X/Y, got %+v", c)
	}
	if c.Z <= 2 {
		t.Fatalf("3D chunk shape must have Z > 2, got %+v", c)
	}
	if c.Voxels() == 0 {
		t.Fatalf("chunk shape has zero voxels: %+v", c)
	}
}

func TestBlockSizesAdmissible2D(t *testing.T) {
	sizes := []Size{{X: 512, Y: 512, Z: 1}}
	chunks := BlockSizes(sizes, DefaultChunkBudgetBytes, 1, 1)
	c := chunks[0]
	if c.Z != 1 {
		t.Fatalf("2D chunk shape must have Z == 1, got %+v", c)
	}
	if c.X > 4*c.Y || c.Y > 4*c.X {
		t.Fatalf("2D chunk shape must satisfy X<=4Y and Y<=4X, got %+v", c)
	}
}

func TestBlockSizesLowerBoundAcrossLevels(t *testing.T) {
	sizes := Levels(Size{X: 2048, Y: 2048, Z: 256}, true, DefaultPyramidBudget)
	chunks := BlockSizes(sizes, DefaultChunkBudgetBytes, 2, 1)
	if len(chunks) != len(sizes) {
		t.Fatalf("expected %d chunk shapes, got %d", len(sizes), len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].X == 0 || chunks[i].Y == 0 || chunks[i].Z == 0 {
			t.Fatalf("level %d produced a degenerate chunk shape: %+v", i, chunks[i])
		}
	}
}

func TestBlockSizesDeterministic(t *testing.T) {
	sizes := []Size{{X: 1024, Y: 1024, Z: 128}}
	a := BlockSizes(sizes, DefaultChunkBudgetBytes, 4, 1)
	b := BlockSizes(sizes, DefaultChunkBudgetBytes, 4, 1)
	if a[0] != b[0] {
		t.Fatalf("block size search is not deterministic: %+v vs %+v", a[0], b[0])
	}
}
