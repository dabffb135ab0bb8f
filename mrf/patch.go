package mrf

import (
	"fmt"

	"github.com/rasterstore/go-mrf/mrf/spec"
	"github.com/rasterstore/go-mrf/raster"
)

// Region is a rectangle of pages at one level.
type Region struct {
	X, Y          int
	Width, Height int
}

// NextLevel maps the region one level coarser. Width and height round up,
// and start on an odd page adds one more: the coarser region always covers
// every page whose footprint overlaps the finer one, at the cost of an
// occasional extra page.
func (r Region) NextLevel() Region {
	return Region{
		X:      r.X / 2,
		Y:      r.Y / 2,
		Width:  r.Width/2 + r.Width&1 + r.X&1,
		Height: r.Height/2 + r.Height&1 + r.Y&1,
	}
}

// PatchOverviews regenerates the overview pyramid over a changed base-level
// page region. Levels are rebuilt strictly in order, each resampled from the
// level below, and pending writes are flushed between levels so level n reads
// the final pixel values of level n-1. Source levels outside
// [startLevel, stopLevel) are skipped, but the region geometry still advances
// through them. A nil resampler averages.
func (s *Store) PatchOverviews(region Region, startLevel, stopLevel int, resample Resampler) error {
	if s.readOnly {
		return ErrReadOnly
	}
	// The 2x2 staging and the region rounding rule are defined for halving
	// pyramids only; other scales are read-side features.
	if s.meta.Scale != 2 {
		return fmt.Errorf("%w: overview patching requires scale 2, store has %v",
			spec.ErrGeometry, s.meta.Scale)
	}
	if resample == nil {
		resample = ResampleAverage
	}
	if stopLevel < 0 || stopLevel > s.meta.Levels {
		stopLevel = s.meta.Levels
	}

	r := region
	for srcLevel := 0; srcLevel < s.meta.Levels; srcLevel++ {
		if srcLevel >= startLevel && srcLevel < stopLevel {
			if err := s.patchLevel(srcLevel, r, resample); err != nil {
				return fmt.Errorf("mrf: patching level %d: %w", srcLevel+1, err)
			}
			if err := s.Flush(); err != nil {
				return err
			}
		}
		r = r.NextLevel()
	}
	return nil
}

// patchLevel rewrites the pages of level srcLevel+1 covering region r of
// level srcLevel, resampling from srcLevel.
func (s *Store) patchLevel(srcLevel int, r Region, resample Resampler) error {
	src := s.images[srcLevel]
	dst := s.images[srcLevel+1]
	d := r.NextLevel()

	blockSize := src.BlockSizeBytes()
	staging := make([]byte, 4*blockSize) // 2x2 source pages
	tmp := make([]byte, blockSize)
	out := make([]byte, blockSize)
	first := make([]byte, blockSize)

	x1 := min(d.X+d.Width, dst.PagesX)
	y1 := min(d.Y+d.Height, dst.PagesY)

	for y := d.Y; y < y1; y++ {
		for x := d.X; x < x1; x++ {
			for group := 0; group < dst.Bands/dst.PageBands; group++ {
				for i := 0; i < dst.PageBands; i++ {
					band := group*dst.PageBands + i

					s.fillBlock(staging, band)
					for j := 0; j < 2; j++ {
						for k := 0; k < 2; k++ {
							sx, sy := 2*x+k, 2*y+j
							if sx >= src.PagesX || sy >= src.PagesY {
								continue
							}
							if err := s.ReadBlock(band, srcLevel, sx, sy, tmp); err != nil {
								return err
							}
							stageQuadrant(staging, tmp, k, j, src)
						}
					}

					target := out
					if i == 0 {
						target = first
					}
					resample(target, dst.PageX, dst.PageY, staging, 2*src.PageX, 2*src.PageY, dst.DataType)

					if dst.PageBands > 1 {
						// Make every band resident so the single group write
						// assembles the whole page.
						s.cache.Put(raster.BlockKey{Band: band, Level: srcLevel + 1, X: x, Y: y}, target)
					} else if err := s.WriteBlock(band, srcLevel+1, x, y, target); err != nil {
						return err
					}
				}
				if dst.PageBands > 1 {
					if err := s.WriteBlock(group*dst.PageBands, srcLevel+1, x, y, first); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// stageQuadrant copies one source page into quadrant (k, j) of the 2x2
// staging buffer.
func stageQuadrant(staging, block []byte, k, j int, img spec.Image) {
	elem := img.PixelSize()
	lineBytes := img.PageX * elem
	stagingLine := 2 * lineBytes
	for row := 0; row < img.PageY; row++ {
		d := (j*img.PageY+row)*stagingLine + k*lineBytes
		copy(staging[d:d+lineBytes], block[row*lineBytes:(row+1)*lineBytes])
	}
}
