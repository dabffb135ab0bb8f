package mrf

import (
	"fmt"

	"github.com/rasterstore/go-mrf/mrf/spec"
)

// Size returns the base-level raster dimensions, making the store usable as
// a raster source for another store's cache fill or insert.
func (s *Store) Size() (int, int) { return s.meta.SizeX, s.meta.SizeY }

// GeoTransform returns the persisted affine transform.
func (s *Store) GeoTransform() [6]float64 { return s.meta.GeoTransform }

// ReadWindow implements raster.Source over the base level: it reads the w×h
// pixel window at (x0, y0) into a bufW×bufH strided buffer, decimating by
// nearest pixel when the buffer is smaller than the window.
func (s *Store) ReadWindow(x0, y0, w, h, bufW, bufH int, bands []int, buf []byte,
	pixelStride, lineStride, bandStride int) error {

	img := s.images[0]
	if x0 < 0 || y0 < 0 || w <= 0 || h <= 0 || x0+w > img.SizeX || y0+h > img.SizeY {
		return fmt.Errorf("%w: window %d,%d %dx%d", spec.ErrOutOfRange, x0, y0, w, h)
	}
	if bufW <= 0 || bufH <= 0 {
		return fmt.Errorf("%w: buffer %dx%d", spec.ErrOutOfRange, bufW, bufH)
	}

	elem := img.PixelSize()
	block := make([]byte, img.BlockSizeBytes())
	haveBand, haveX, haveY := -1, -1, -1

	for bi, band := range bands {
		for row := 0; row < bufH; row++ {
			srcY := y0 + row*h/bufH
			by := srcY / img.PageY
			inY := srcY % img.PageY
			for col := 0; col < bufW; col++ {
				srcX := x0 + col*w/bufW
				bx := srcX / img.PageX

				if band != haveBand || bx != haveX || by != haveY {
					if err := s.ReadBlock(band, 0, bx, by, block); err != nil {
						return err
					}
					haveBand, haveX, haveY = band, bx, by
				}

				src := (inY*img.PageX + srcX%img.PageX) * elem
				dst := bi*bandStride + row*lineStride + col*pixelStride
				copy(buf[dst:dst+elem], block[src:src+elem])
			}
		}
	}
	return nil
}
