package spec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Entry locates one page's stored bytes in the data file. Size 0 means the
// page is not stored: Offset 0 is "never touched", a nonzero Offset with
// Size 0 is "confirmed empty".
type Entry struct {
	Offset uint64
	Size   uint64
}

// EntrySize is the fixed on-disk width of one index entry.
const EntrySize = 16

// EmptyOffset is the offset recorded for a confirmed-empty page.
const EmptyOffset = 1

var ErrOutOfRange = errors.New("mrf: page coordinate out of range")

type levelGeometry struct {
	pagesX, pagesY int
	groups         int
	base           int64 // entries of all finer levels
}

// Geometry computes index positions. A position is a pure function of
// (level, group, x, y): levels are concatenated finest to coarsest, groups
// are major within a level, rows within a group.
type Geometry struct {
	levels  []levelGeometry
	entries int64
}

func NewGeometry(images []Image) Geometry {
	g := Geometry{levels: make([]levelGeometry, 0, len(images))}
	for _, img := range images {
		lg := levelGeometry{
			pagesX: img.PagesX,
			pagesY: img.PagesY,
			groups: img.Bands / img.PageBands,
			base:   g.entries,
		}
		g.levels = append(g.levels, lg)
		g.entries += int64(lg.groups) * int64(lg.pagesX) * int64(lg.pagesY)
	}
	return g
}

// Entries returns the total index entry count across all levels.
func (g Geometry) Entries() int64 { return g.entries }

// Position returns the byte position of the entry for (level, group, x, y)
// within the index file.
func (g Geometry) Position(level, group, x, y int) (int64, error) {
	if level < 0 || level >= len(g.levels) {
		return 0, fmt.Errorf("%w: level %d", ErrOutOfRange, level)
	}
	lg := g.levels[level]
	if group < 0 || group >= lg.groups || x < 0 || x >= lg.pagesX || y < 0 || y >= lg.pagesY {
		return 0, fmt.Errorf("%w: group %d page %d,%d at level %d", ErrOutOfRange, group, x, y, level)
	}
	pos := lg.base +
		int64(group)*int64(lg.pagesX)*int64(lg.pagesY) +
		int64(y)*int64(lg.pagesX) +
		int64(x)
	return pos * EntrySize, nil
}

// Pages returns the page grid dimensions of a level.
func (g Geometry) Pages(level int) (x, y int) {
	lg := g.levels[level]
	return lg.pagesX, lg.pagesY
}

// ReadEntry reads the entry at byte position pos. Entries are stored
// big-endian.
func ReadEntry(r io.ReaderAt, pos int64) (Entry, error) {
	var buf [EntrySize]byte
	if _, err := r.ReadAt(buf[:], pos); err != nil {
		return Entry{}, err
	}
	return Entry{
		Offset: binary.BigEndian.Uint64(buf[0:8]),
		Size:   binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}

// WriteEntry writes the entry at byte position pos.
func WriteEntry(w io.WriterAt, pos int64, e Entry) error {
	var buf [EntrySize]byte
	binary.BigEndian.PutUint64(buf[0:8], e.Offset)
	binary.BigEndian.PutUint64(buf[8:16], e.Size)
	_, err := w.WriteAt(buf[:], pos)
	return err
}
