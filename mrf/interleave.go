package mrf

import "github.com/rasterstore/go-mrf/raster"

// copyStrided copies count elements of elem bytes each, advancing dst by
// dstStride elements and src by srcStride elements per step.
func copyStrided(dst, src []byte, elem, count, dstStride, srcStride int) {
	if elem == 1 {
		di, si := 0, 0
		for c := 0; c < count; c++ {
			dst[di] = src[si]
			di += dstStride
			si += srcStride
		}
		return
	}
	di, si := 0, 0
	ds, ss := dstStride*elem, srcStride*elem
	for c := 0; c < count; c++ {
		copy(dst[di:di+elem], src[si:si+elem])
		di += ds
		si += ss
	}
}

// deinterleave splits a decoded pixel-interleaved page into per-band blocks.
// The requested band lands in dst; sibling bands go to the block cache so a
// page is unpacked once, not once per band.
func (s *Store) deinterleave(band, level, x, y int, page, dst []byte) error {
	img := s.images[level]
	elem := img.PixelSize()
	count := img.PageX * img.PageY
	first := (band / img.PageBands) * img.PageBands

	for i := 0; i < img.PageBands; i++ {
		b := first + i
		out := dst
		var release func()
		if b != band {
			if s.cache == nil {
				continue
			}
			key := raster.BlockKey{Band: b, Level: level, X: x, Y: y}
			out, release = s.cache.GetRef(key, img.BlockSizeBytes())
		}
		copyStrided(out, page[i*elem:], elem, count, 1, img.PageBands)
		if release != nil {
			release()
		}
	}
	return nil
}
