package spec_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rasterstore/go-mrf/mrf/spec"
	"github.com/rasterstore/go-mrf/raster"
)

func testGeometry(t *testing.T) spec.Geometry {
	t.Helper()

	m := &spec.Metadata{
		Driver:    spec.Driver,
		Version:   spec.Version,
		SizeX:     1000,
		SizeY:     700,
		PageX:     256,
		PageY:     256,
		Bands:     6,
		PageBands: 3,
		DataType:  raster.Byte,
		ByteOrder: spec.OrderBig,
		Levels:    2,
		Scale:     2,
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	return spec.NewGeometry(m.Images())
}

func TestGeometryEntries(t *testing.T) {
	g := testGeometry(t)

	// 4x3 + 2x2 + 1x1 pages, two band groups each.
	if got, want := g.Entries(), int64(2*(12+4+1)); got != want {
		t.Errorf("Entries() = %d, want %d", got, want)
	}
}

func TestGeometryPositionFormula(t *testing.T) {
	g := testGeometry(t)

	// Base of level 1 is after both groups of level 0's 4x3 grid.
	pos, err := g.Position(1, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := pos, int64(2*12+1*4+1*2+1)*spec.EntrySize; got != want {
		t.Errorf("Position(1, 1, 1, 1) = %d, want %d", got, want)
	}
}

func TestGeometryPositionInjective(t *testing.T) {
	g := testGeometry(t)

	grids := [][2]int{{4, 3}, {2, 2}, {1, 1}}
	seen := make(map[int64]bool)
	for level, grid := range grids {
		for group := 0; group < 2; group++ {
			for y := 0; y < grid[1]; y++ {
				for x := 0; x < grid[0]; x++ {
					pos, err := g.Position(level, group, x, y)
					if err != nil {
						t.Fatalf("Position(%d, %d, %d, %d) failed: %v", level, group, x, y, err)
					}
					if pos%spec.EntrySize != 0 {
						t.Fatalf("Position(%d, %d, %d, %d) = %d, not entry-aligned", level, group, x, y, pos)
					}
					if seen[pos] {
						t.Fatalf("Position(%d, %d, %d, %d) = %d collides", level, group, x, y, pos)
					}
					seen[pos] = true
				}
			}
		}
	}
	if got, want := int64(len(seen)), g.Entries(); got != want {
		t.Errorf("covered %d positions, want %d", got, want)
	}
}

func TestGeometryPositionOutOfRange(t *testing.T) {
	g := testGeometry(t)

	for _, tc := range []struct {
		Name               string
		Level, Group, X, Y int
	}{
		{Name: "Level", Level: 3},
		{Name: "NegativeLevel", Level: -1},
		{Name: "Group", Group: 2},
		{Name: "X", X: 4},
		{Name: "Y", Y: 3},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			if _, err := g.Position(tc.Level, tc.Group, tc.X, tc.Y); err == nil {
				t.Errorf("Position(%d, %d, %d, %d) succeeded, want error",
					tc.Level, tc.Group, tc.X, tc.Y)
			}
		})
	}
}

func TestEntryRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.idx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Truncate(4 * spec.EntrySize); err != nil {
		t.Fatal(err)
	}

	want := spec.Entry{Offset: 0x0102030405060708, Size: 42}
	if err := spec.WriteEntry(f, 2*spec.EntrySize, want); err != nil {
		t.Fatal(err)
	}

	got, err := spec.ReadEntry(f, 2*spec.EntrySize)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ReadEntry = %+v, want %+v", got, want)
	}

	// Entries are stored big-endian.
	raw := make([]byte, spec.EntrySize)
	if _, err := f.ReadAt(raw, 2*spec.EntrySize); err != nil {
		t.Fatal(err)
	}
	wantRaw := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 42}
	if !bytes.Equal(raw, wantRaw) {
		t.Errorf("stored entry = % x, want % x", raw, wantRaw)
	}

	// Untouched entries read back as zero.
	zero, err := spec.ReadEntry(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if zero != (spec.Entry{}) {
		t.Errorf("untouched entry = %+v, want zero", zero)
	}
}
