package mrf

import "fmt"

// Band is a stateless per-band, per-level view of a store. Overview selection
// is a pure function of the level number; no live object exists per level.
type Band struct {
	store *Store
	band  int
	level int
}

// Band returns the base-level view of one band.
func (s *Store) Band(band int) (Band, error) {
	if err := s.checkBand(band); err != nil {
		return Band{}, err
	}
	return Band{store: s, band: band}, nil
}

// OverviewCount returns the number of overview levels past this one.
func (b Band) OverviewCount() int { return b.store.meta.Levels - b.level }

// Overview returns the view of the i-th coarser overview of this band.
func (b Band) Overview(i int) (Band, error) {
	level := b.level + 1 + i
	if i < 0 || level > b.store.meta.Levels {
		return Band{}, fmt.Errorf("mrf: no overview %d at level %d", i, b.level)
	}
	return Band{store: b.store, band: b.band, level: level}, nil
}

// Level returns the resolution level this view addresses.
func (b Band) Level() int { return b.level }

// Size returns the raster dimensions of this band at this level.
func (b Band) Size() (int, int) {
	img := b.store.images[b.level]
	return img.SizeX, img.SizeY
}

// BlockSize returns the page dimensions in pixels.
func (b Band) BlockSize() (int, int) {
	return b.store.meta.PageX, b.store.meta.PageY
}

// Blocks returns the page grid dimensions at this level.
func (b Band) Blocks() (int, int) {
	img := b.store.images[b.level]
	return img.PagesX, img.PagesY
}

func (b Band) ReadBlock(x, y int, dst []byte) error {
	return b.store.ReadBlock(b.band, b.level, x, y, dst)
}

func (b Band) WriteBlock(x, y int, src []byte) error {
	return b.store.WriteBlock(b.band, b.level, x, y, src)
}

func (b Band) NoData() (float64, bool) { return b.store.NoData(b.band) }
func (b Band) Min() (float64, bool)    { return b.store.Min(b.band) }
func (b Band) Max() (float64, bool)    { return b.store.Max(b.band) }
