package mrf

import (
	"fmt"

	"github.com/rasterstore/go-mrf/mrf/spec"
)

// ReadBlock reads one band's worth of one page into dst, which must hold
// exactly PageX*PageY values. Unstored pages read back as fill unless the
// store can fetch them from a source or clone.
func (s *Store) ReadBlock(band, level, x, y int, dst []byte) error {
	img, err := s.image(level)
	if err != nil {
		return err
	}
	if err := s.checkBand(band); err != nil {
		return err
	}
	if len(dst) != img.BlockSizeBytes() {
		return fmt.Errorf("mrf: block buffer is %d bytes, want %d", len(dst), img.BlockSizeBytes())
	}

	pos, err := s.geom.Position(level, band/img.PageBands, x, y)
	if err != nil {
		return err
	}
	entry, err := spec.ReadEntry(s.idx, pos)
	if err != nil {
		return err
	}
	s.logger.Debug("mrf: read block",
		"band", band, "level", level, "x", x, "y", y,
		"offset", entry.Offset, "size", entry.Size)

	if entry.Size == 0 {
		// Offset != 0 marks a confirmed-empty page; never refetch those.
		if entry.Offset == 0 && s.hasSource() {
			if s.meta.Clone {
				return s.fetchClonedBlock(band, level, x, y, dst)
			}
			if !s.readOnly {
				return s.fetchBlock(band, level, x, y, dst)
			}
		}
		s.fillBlock(dst, band)
		return nil
	}

	if entry.Size > uint64(s.packedSize) {
		return fmt.Errorf("%w: stored page of %d bytes exceeds the worst case", spec.ErrCodec, entry.Size)
	}
	stored := make([]byte, entry.Size)
	if _, err := s.dat.ReadAt(stored, int64(entry.Offset)); err != nil {
		return fmt.Errorf("mrf: cannot read page at %d: %w", entry.Offset, err)
	}

	src := stored
	if s.deflater != nil {
		n, err := s.deflater.Unpack(s.packedArea(), stored)
		if err != nil {
			// Recoverable: assume the page was stored without the wrapper
			// and let the codec try the original bytes.
			s.logger.Warn("mrf: cannot inflate page, assuming plain", "error", err)
		} else {
			src = s.packedArea()[:n]
		}
	}

	target := dst
	if img.PageBands != 1 {
		target = s.rawArea()
	}
	if err := s.codec.Decode(target, src); err != nil {
		return err
	}
	if s.needSwap() {
		spec.Swab(target, img.PixelSize())
	}

	if img.PageBands == 1 {
		return nil
	}
	return s.deinterleave(band, level, x, y, target, dst)
}
