package mrf_test

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rasterstore/go-mrf/mrf"
	"github.com/rasterstore/go-mrf/mrf/internal"
	"github.com/rasterstore/go-mrf/mrf/spec"
	"github.com/rasterstore/go-mrf/raster"
	"github.com/stretchr/testify/require"
)

// sourceBlock extracts one band's worth of one page from a synthetic raster.
func sourceBlock(src *internal.MemRaster, band, x, y, pageX, pageY int) []byte {
	buf := make([]byte, pageX*pageY*src.DataType.Size())
	for row := 0; row < pageY; row++ {
		for col := 0; col < pageX; col++ {
			raster.PutValue(buf, row*pageX+col, src.DataType, src.At(band, x*pageX+col, y*pageY+row))
		}
	}
	return buf
}

func TestCacheFill(t *testing.T) {
	const pageX, pageY = 64, 64

	src := internal.NewGradient(128, 128, 1, raster.UInt16)
	path := filepath.Join(t.TempDir(), "test.mrf")
	store, err := mrf.Create(path, mrf.Options{
		SizeX: 128, SizeY: 128,
		PageX: pageX, PageY: pageY,
		DataType: raster.UInt16,
		Codec:    spec.CodecZstd,
		Source:   "synthetic",
	}, mrf.WithSource(src))
	require.NoError(t, err)
	defer store.Close()

	want := sourceBlock(src, 0, 1, 0, pageX, pageY)
	got := make([]byte, len(want))
	require.NoError(t, store.ReadBlock(0, 0, 1, 0, got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fetched page mismatch (-want +got):\n%s", diff)
	}

	// The fetch persisted the page; later reads come from storage.
	entry, err := store.Entry(0, 0, 1, 0)
	require.NoError(t, err)
	if entry.Size == 0 {
		t.Fatalf("fetched page was not persisted")
	}
	got2 := make([]byte, len(want))
	require.NoError(t, store.ReadBlock(0, 0, 1, 0, got2))
	if diff := cmp.Diff(want, got2); diff != "" {
		t.Errorf("stored readback mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheFillConfirmsEmptyPages(t *testing.T) {
	const pageX, pageY = 64, 64

	// Page (0, 0) of the source is all NoData.
	src := internal.NewGradient(128, 128, 1, raster.Byte)
	for y := 0; y < pageY; y++ {
		for x := 0; x < pageX; x++ {
			src.Set(0, x, y, 7)
		}
	}

	path := filepath.Join(t.TempDir(), "test.mrf")
	store, err := mrf.Create(path, mrf.Options{
		SizeX: 128, SizeY: 128,
		PageX: pageX, PageY: pageY,
		DataType: raster.Byte,
		NoData:   []float64{7},
		Source:   "synthetic",
	}, mrf.WithSource(src))
	require.NoError(t, err)
	defer store.Close()

	want := make([]byte, pageX*pageY)
	raster.Fill(want, raster.Pattern(raster.Byte, 7))
	got := make([]byte, pageX*pageY)
	require.NoError(t, store.ReadBlock(0, 0, 0, 0, got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("empty fetch mismatch (-want +got):\n%s", diff)
	}

	// Confirmed empty: marked in the index, no bytes stored, never refetched.
	entry, err := store.Entry(0, 0, 0, 0)
	require.NoError(t, err)
	if entry.Offset != spec.EmptyOffset || entry.Size != 0 {
		t.Errorf("entry = %+v, want offset %d, size 0", entry, spec.EmptyOffset)
	}
	if got := datSize(t, path); got != 0 {
		t.Errorf("data size = %d, want 0", got)
	}
}

func TestCacheFillClipsToSource(t *testing.T) {
	const pageX, pageY = 64, 64

	// The page grid extends past the 100x90 source; the uncovered part of an
	// edge page must come back as NoData.
	src := internal.NewGradient(100, 90, 1, raster.Byte)
	path := filepath.Join(t.TempDir(), "test.mrf")
	store, err := mrf.Create(path, mrf.Options{
		SizeX: 100, SizeY: 90,
		PageX: pageX, PageY: pageY,
		DataType: raster.Byte,
		NoData:   []float64{255},
		Source:   "synthetic",
	}, mrf.WithSource(src))
	require.NoError(t, err)
	defer store.Close()

	got := make([]byte, pageX*pageY)
	require.NoError(t, store.ReadBlock(0, 0, 1, 1, got))

	for row := 0; row < pageY; row++ {
		for col := 0; col < pageX; col++ {
			sx, sy := pageX+col, pageY+row
			want := byte(255)
			if sx < 100 && sy < 90 {
				want = byte(src.At(0, sx, sy))
			}
			if got[row*pageX+col] != want {
				t.Fatalf("pixel %d,%d = %d, want %d", col, row, got[row*pageX+col], want)
			}
		}
	}
}

func TestCacheFillOverviewDecimates(t *testing.T) {
	const pageX, pageY = 64, 64

	src := internal.NewGradient(128, 128, 1, raster.Byte)
	path := filepath.Join(t.TempDir(), "test.mrf")
	store, err := mrf.Create(path, mrf.Options{
		SizeX: 128, SizeY: 128,
		PageX: pageX, PageY: pageY,
		DataType: raster.Byte,
		Levels:   1,
		Source:   "synthetic",
	}, mrf.WithSource(src))
	require.NoError(t, err)
	defer store.Close()

	got := make([]byte, pageX*pageY)
	require.NoError(t, store.ReadBlock(0, 1, 0, 0, got))

	for row := 0; row < pageY; row++ {
		for col := 0; col < pageX; col++ {
			want := byte(src.At(0, 2*col, 2*row))
			if got[row*pageX+col] != want {
				t.Fatalf("pixel %d,%d = %d, want %d", col, row, got[row*pageX+col], want)
			}
		}
	}
}

// TestCacheFillFractionalScale fetches an overview of a store whose pyramid
// shrinks by 1.5 per level. The source window and the destination buffer must
// follow the actual level geometry, not an integer decimation.
func TestCacheFillFractionalScale(t *testing.T) {
	const pageX, pageY = 64, 64

	src := internal.NewGradient(96, 96, 1, raster.Byte)
	path := filepath.Join(t.TempDir(), "test.mrf")
	store, err := mrf.Create(path, mrf.Options{
		SizeX: 96, SizeY: 96,
		PageX: pageX, PageY: pageY,
		DataType: raster.Byte,
		Levels:   1,
		Scale:    1.5,
		Source:   "synthetic",
	}, mrf.WithSource(src))
	require.NoError(t, err)
	defer store.Close()

	// Level 1 is ceil(96/1.5) = 64 pixels, exactly one page.
	got := make([]byte, pageX*pageY)
	require.NoError(t, store.ReadBlock(0, 1, 0, 0, got))

	for row := 0; row < pageY; row++ {
		for col := 0; col < pageX; col++ {
			want := byte(src.At(0, col*96/64, row*96/64))
			if got[row*pageX+col] != want {
				t.Fatalf("pixel %d,%d = %d, want %d", col, row, got[row*pageX+col], want)
			}
		}
	}
}

func TestCacheFillInterleaved(t *testing.T) {
	const pageX, pageY, bands = 64, 64, 3

	src := internal.NewGradient(64, 64, bands, raster.UInt16)
	path := filepath.Join(t.TempDir(), "test.mrf")
	store, err := mrf.Create(path, mrf.Options{
		SizeX: 64, SizeY: 64,
		PageX: pageX, PageY: pageY,
		Bands:        bands,
		Interleaved:  true,
		DataType:     raster.UInt16,
		LittleEndian: true,
		Codec:        spec.CodecZstd,
		Source:       "synthetic",
	}, mrf.WithSource(src))
	require.NoError(t, err)
	defer store.Close()

	// One band's read fetches and persists the whole page.
	for band := 0; band < bands; band++ {
		want := sourceBlock(src, band, 0, 0, pageX, pageY)
		got := make([]byte, len(want))
		require.NoError(t, store.ReadBlock(band, 0, 0, 0, got))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("band %d mismatch (-want +got):\n%s", band, diff)
		}
	}
}

func TestCloneFetch(t *testing.T) {
	const pageX, pageY = 64, 64
	dir := t.TempDir()

	options := mrf.Options{
		SizeX: 128, SizeY: 128,
		PageX: pageX, PageY: pageY,
		DataType: raster.Byte,
		Codec:    spec.CodecZstd,
	}

	base, err := mrf.Create(filepath.Join(dir, "base.mrf"), options)
	require.NoError(t, err)
	want := gradientBlock(raster.Byte, pageX, pageY, 0)
	require.NoError(t, base.WriteBlock(0, 0, 1, 0, want))
	baseEntry, err := base.Entry(0, 0, 1, 0)
	require.NoError(t, err)
	require.NoError(t, base.Close())

	options.Source = "base.mrf"
	options.Clone = true
	clone, err := mrf.Create(filepath.Join(dir, "clone.mrf"), options)
	require.NoError(t, err)
	defer clone.Close()

	t.Run("Transplant", func(t *testing.T) {
		got := make([]byte, len(want))
		require.NoError(t, clone.ReadBlock(0, 0, 1, 0, got))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("cloned page mismatch (-want +got):\n%s", diff)
		}

		// The stored bytes moved verbatim, not through a decode/encode cycle.
		entry, err := clone.Entry(0, 0, 1, 0)
		require.NoError(t, err)
		if entry.Size != baseEntry.Size {
			t.Errorf("cloned page is %d bytes, want %d", entry.Size, baseEntry.Size)
		}
	})

	t.Run("ConfirmedEmpty", func(t *testing.T) {
		got := make([]byte, pageX*pageY)
		require.NoError(t, clone.ReadBlock(0, 0, 0, 1, got))
		if !raster.IsZero(got) {
			t.Fatalf("unstored cloned page did not read back as fill")
		}
		entry, err := clone.Entry(0, 0, 0, 1)
		require.NoError(t, err)
		if entry.Offset != spec.EmptyOffset || entry.Size != 0 {
			t.Errorf("entry = %+v, want confirmed empty", entry)
		}
	})

	t.Run("ReadOnlyDelegates", func(t *testing.T) {
		// A read-only clone serves unfetched pages straight from the sibling
		// store without persisting anything.
		fresh, err := mrf.Create(filepath.Join(dir, "clone2.mrf"), options)
		require.NoError(t, err)
		require.NoError(t, fresh.Close())

		ro, err := mrf.Open(filepath.Join(dir, "clone2.mrf"), mrf.WithReadOnly())
		require.NoError(t, err)
		defer ro.Close()

		got := make([]byte, len(want))
		require.NoError(t, ro.ReadBlock(0, 0, 1, 0, got))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("read-only clone mismatch (-want +got):\n%s", diff)
		}
		entry, err := ro.Entry(0, 0, 1, 0)
		require.NoError(t, err)
		if entry != (spec.Entry{}) {
			t.Errorf("read-only clone persisted entry %+v", entry)
		}
	})
}
