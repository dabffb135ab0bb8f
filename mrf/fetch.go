package mrf

import (
	"fmt"
	"math"

	"github.com/rasterstore/go-mrf/mrf/spec"
)

// fetchBlock populates a missing page of a caching store from the source
// raster, persists it, and serves the request from the fetch buffer without
// a re-read.
func (s *Store) fetchBlock(band, level, x, y int, dst []byte) error {
	src, err := s.sourceRaster()
	if err != nil {
		return err
	}
	img := s.images[level]
	pos, err := s.geom.Position(level, band/img.PageBands, x, y)
	if err != nil {
		return err
	}
	s.logger.Debug("mrf: fetch block", "band", band, "level", level, "x", x, "y", y)

	// Window in source pixels. The per-axis factor comes from the actual
	// level sizes, never from scale^level, so fractional scales cannot
	// drift from the level geometry. Level 0 uses factor 1 exactly.
	scaleX, scaleY := 1.0, 1.0
	if level > 0 {
		base := s.images[0]
		scaleX = float64(base.SizeX) / float64(img.SizeX)
		scaleY = float64(base.SizeY) / float64(img.SizeY)
	}
	xoff := int(float64(x*img.PageX)*scaleX + 0.5)
	yoff := int(float64(y*img.PageY)*scaleY + 0.5)
	readX := int(float64(img.PageX)*scaleX + 0.5)
	readY := int(float64(img.PageY)*scaleY + 0.5)

	srcX, srcY := src.Size()
	clipped := false
	if xoff+readX > srcX {
		readX = srcX - xoff
		clipped = true
	}
	if yoff+readY > srcY {
		readY = srcY - yoff
		clipped = true
	}

	target := dst
	if img.PageBands != 1 {
		target = s.rawArea()
	}
	// Out-of-bounds pixels default to background.
	if clipped {
		s.fillBlock(target, band)
	}

	bands := []int{band}
	if img.PageBands != 1 {
		first := (band / img.PageBands) * img.PageBands
		bands = make([]int, img.PageBands)
		for i := range bands {
			bands[i] = first + i
		}
	}

	// The buffer covers the window at this level's resolution and never
	// exceeds the page.
	bufW := min(img.PageX, int(math.Ceil(float64(readX)/scaleX)))
	bufH := min(img.PageY, int(math.Ceil(float64(readY)/scaleY)))
	vsz := img.PixelSize()
	pixelStride := vsz * img.PageBands
	err = src.ReadWindow(xoff, yoff, readX, readY, bufW, bufH, bands, target,
		pixelStride, pixelStride*img.PageX, vsz)
	if err != nil {
		return fmt.Errorf("mrf: source read failed: %w", err)
	}

	// A page that fetched entirely empty is confirmed empty so the source
	// is never consulted for it again.
	if s.emptyBlock(target, band) {
		if err := s.writeTile(pos, nil, true); err != nil {
			return err
		}
		s.fillBlock(dst, band)
		return nil
	}

	if s.needSwap() {
		spec.Swab(target, vsz)
	}
	n, err := s.codec.Encode(s.packedArea(), target)
	if err != nil {
		return err
	}
	packed := s.packedArea()[:n]
	if s.deflater != nil {
		packed, err = s.deflater.Pack(s.packedArea(), n)
		if err != nil {
			return err
		}
	}
	if err := s.writeTile(pos, packed, false); err != nil {
		return err
	}
	if s.needSwap() {
		// Restore the fetch buffer, it still serves this request.
		spec.Swab(target, vsz)
	}

	if img.PageBands == 1 {
		return nil
	}
	return s.deinterleave(band, level, x, y, target, dst)
}

// fetchClonedBlock serves a missing page of a clone store. Read-only clones
// delegate the read; writable clone caches transplant the raw stored bytes
// from the sibling store verbatim and re-issue the read.
func (s *Store) fetchClonedBlock(band, level, x, y int, dst []byte) error {
	clone, err := s.cloneStore()
	if err != nil {
		return err
	}
	if s.readOnly {
		return clone.ReadBlock(band, level, x, y, dst)
	}

	img := s.images[level]
	pos, err := s.geom.Position(level, band/img.PageBands, x, y)
	if err != nil {
		return err
	}
	clonePos, err := clone.geom.Position(level, band/img.PageBands, x, y)
	if err != nil {
		return err
	}
	entry, err := spec.ReadEntry(clone.idx, clonePos)
	if err != nil {
		return fmt.Errorf("mrf: cannot read cloned index entry: %w", err)
	}

	if entry.Size == 0 {
		if err := s.writeTile(pos, nil, true); err != nil {
			return err
		}
		s.fillBlock(dst, band)
		return nil
	}

	raw := make([]byte, entry.Size)
	if _, err := clone.dat.ReadAt(raw, int64(entry.Offset)); err != nil {
		return fmt.Errorf("mrf: cannot read cloned page: %w", err)
	}
	// Bytes are transplanted, not re-encoded.
	if err := s.writeTile(pos, raw, false); err != nil {
		return err
	}
	return s.ReadBlock(band, level, x, y, dst)
}
