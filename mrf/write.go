package mrf

import (
	"fmt"

	"github.com/rasterstore/go-mrf/mrf/spec"
	"github.com/rasterstore/go-mrf/raster"
)

// WriteBlock writes one band's worth of one page from src. A page whose
// bands are all empty is recorded as a zero-length index entry with no bytes
// stored. A failed compression or I/O step leaves the previous index entry
// for the page unchanged.
func (s *Store) WriteBlock(band, level, x, y int, src []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	img, err := s.image(level)
	if err != nil {
		return err
	}
	if err := s.checkBand(band); err != nil {
		return err
	}
	if len(src) != img.BlockSizeBytes() {
		return fmt.Errorf("mrf: block buffer is %d bytes, want %d", len(src), img.BlockSizeBytes())
	}

	pos, err := s.geom.Position(level, band/img.PageBands, x, y)
	if err != nil {
		return err
	}
	s.logger.Debug("mrf: write block", "band", band, "level", level, "x", x, "y", y)

	if img.PageBands == 1 {
		return s.writeSeparate(pos, band, src)
	}
	return s.writeInterleaved(pos, band, level, x, y, img, src)
}

func (s *Store) writeSeparate(pos int64, band int, src []byte) error {
	if s.emptyBlock(src, band) {
		return s.writeTile(pos, nil, false)
	}

	input := src
	if s.needSwap() {
		// Swap a scratch copy, the caller keeps its buffer.
		raw := s.rawArea()
		copy(raw, src)
		spec.Swab(raw, s.meta.DataType.Size())
		input = raw
	}

	n, err := s.codec.Encode(s.packedArea(), input)
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
	return s.writeTile(pos, packed, false)
}

// writeInterleaved assembles the full page from the band being written plus
// the sibling bands' resident cache blocks. A band whose block is not
// resident is skipped and keeps its previous page content stale; interleaved
// writes are expected to arrive with all bands dirty in one pass.
func (s *Store) writeInterleaved(pos int64, band, level, x, y int, img spec.Image, src []byte) error {
	page := s.rawArea()
	elem := img.PixelSize()
	count := img.PageX * img.PageY
	first := (band / img.PageBands) * img.PageBands
	all := uint64(1)<<img.PageBands - 1

	var dirty, empties uint64
	for i := 0; i < img.PageBands; i++ {
		b := first + i
		buf := src
		var release func()
		if b != band {
			if s.cache == nil {
				continue
			}
			data, rel, ok := s.cache.TryGetRef(raster.BlockKey{Band: b, Level: level, X: x, Y: y})
			if !ok {
				continue
			}
			buf, release = data, rel
		}
		dirty |= 1 << i
		if s.emptyBlock(buf, b) {
			empties |= 1 << i
		}
		copyStrided(page[i*elem:], buf, elem, count, img.PageBands, 1)
		if release != nil {
			release()
		}
	}

	// Elide only when every band in the group is empty; partial elision is
	// not representable in this layout.
	if empties == all {
		return s.writeTile(pos, nil, false)
	}
	if dirty != all {
		s.logger.Warn("mrf: interleaved page written with missing bands",
			"x", x, "y", y, "level", level, "dirty", fmt.Sprintf("%#x", dirty))
	}

	if s.needSwap() {
		spec.Swab(page, elem)
	}
	n, err := s.codec.Encode(s.packedArea(), page)
	if err != nil {
		return err
	}
	packed := s.packedArea()[:n]
	if s.deflater != nil {
		// The raw page is spent; move the packed bytes to the front so the
		// whole scratch becomes growth room.
		copy(s.scratch[:n], packed)
		packed, err = s.deflater.Pack(s.scratch, n)
		if err != nil {
			return err
		}
	}
	return s.writeTile(pos, packed, false)
}
