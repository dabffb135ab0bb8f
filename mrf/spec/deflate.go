package spec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Deflate wrapper flags. The low nibble carries the 0-9 compression level,
// the framing bits select gzip or raw deflate (zlib otherwise), and the
// strategy sits above them.
const (
	ZLevelMask = 0x0F
	ZFlagGZ    = 0x10
	ZFlagRaw   = 0x20

	zStrategyShift = 6
	zStrategyMask  = 0x7
)

// Strategy selects the deflate strategy of the wrapper.
type Strategy uint8

const (
	StrategyDefault Strategy = iota
	StrategyHuffmanOnly
	StrategyRLE
	StrategyFiltered
	StrategyFixed
)

var strategyNames = map[string]Strategy{
	"":               StrategyDefault,
	"Z_HUFFMAN_ONLY": StrategyHuffmanOnly,
	"Z_RLE":          StrategyRLE,
	"Z_FILTERED":     StrategyFiltered,
	"Z_FIXED":        StrategyFixed,
}

// ParseStrategy resolves a strategy by its conventional zlib name. Unknown
// names fall back to the default strategy.
func ParseStrategy(name string) Strategy {
	return strategyNames[name]
}

// PackDeflateFlags packs the wrapper configuration into one integer.
// quality is the 0-100 metadata scale.
func PackDeflateFlags(quality int, gz, raw bool, strategy Strategy) int {
	flags := (quality / 10) & ZLevelMask
	if gz {
		flags |= ZFlagGZ
	} else if raw {
		flags |= ZFlagRaw
	}
	flags |= int(strategy&zStrategyMask) << zStrategyShift
	return flags
}

var ErrDeflate = errors.New("mrf: deflate failure")

// Deflater is the secondary compression stage applied after the page codec.
// Alloc is the temporary-buffer allocator; tests instrument it, nil means
// plain make.
type Deflater struct {
	Flags int
	Alloc func(int) []byte
}

func (d *Deflater) alloc(n int) []byte {
	if d.Alloc != nil {
		return d.Alloc(n)
	}
	return make([]byte, n)
}

func (d *Deflater) level() int {
	level := d.Flags & ZLevelMask
	switch Strategy((d.Flags >> zStrategyShift) & zStrategyMask) {
	case StrategyHuffmanOnly:
		return flate.HuffmanOnly
	case StrategyRLE:
		return flate.BestSpeed
	}
	return level
}

// growMargin is the extra room required to compress in place: the trailing
// free space must hold at least the input size plus this margin.
const growMargin = 64

// deflateBound is a safe output size for incompressible input: stored blocks
// cost about 5 bytes per 64 KiB, plus the stream framing. growMargin alone is
// not enough past roughly 800 KiB.
func deflateBound(size int) int {
	return size + size/250 + growMargin
}

// Pack compresses scratch[:size] using the free space that follows it in
// scratch. When the trailing space is large enough the packed bytes land
// there directly; otherwise a temporary buffer is used and the result is
// copied back over the input. The returned slice aliases scratch either way.
func (d *Deflater) Pack(scratch []byte, size int) ([]byte, error) {
	input := scratch[:size]
	extra := len(scratch) - size

	if extra >= size+growMargin {
		n, err := d.compress(scratch[size:], input)
		if err != nil {
			return nil, err
		}
		return scratch[size : size+n], nil
	}

	tmp := d.alloc(deflateBound(size))
	if tmp == nil {
		return nil, fmt.Errorf("%w: cannot allocate %d bytes", ErrDeflate, deflateBound(size))
	}
	n, err := d.compress(tmp, input)
	if err != nil {
		return nil, err
	}
	if n > len(scratch) {
		return nil, fmt.Errorf("%w: packed page of %d bytes does not fit the scratch buffer", ErrDeflate, n)
	}
	copy(scratch[:n], tmp[:n])
	return scratch[:n], nil
}

func (d *Deflater) compress(dst, src []byte) (int, error) {
	sw := sliceWriter{buf: dst}

	var w io.WriteCloser
	var err error
	switch {
	case d.Flags&ZFlagGZ != 0:
		w, err = gzip.NewWriterLevel(&sw, d.level())
	case d.Flags&ZFlagRaw != 0:
		w, err = flate.NewWriter(&sw, d.level())
	default:
		w, err = zlib.NewWriterLevel(&sw, d.level())
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeflate, err)
	}

	if _, err := w.Write(src); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeflate, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeflate, err)
	}
	return sw.n, nil
}

// Unpack inflates src into dst and returns the inflated size, which may be
// smaller than len(dst) but never larger.
func (d *Deflater) Unpack(dst, src []byte) (int, error) {
	var r io.ReadCloser
	var err error
	switch {
	case d.Flags&ZFlagGZ != 0:
		r, err = gzip.NewReader(bytes.NewReader(src))
	case d.Flags&ZFlagRaw != 0:
		r = flate.NewReader(bytes.NewReader(src))
	default:
		r, err = zlib.NewReader(bytes.NewReader(src))
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeflate, err)
	}
	defer r.Close()

	total := 0
	for {
		if total == len(dst) {
			var tail [1]byte
			if n, _ := r.Read(tail[:]); n != 0 {
				return 0, fmt.Errorf("%w: inflates past %d bytes", ErrDeflate, len(dst))
			}
			return total, nil
		}
		n, err := r.Read(dst[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("%w: %w", ErrDeflate, err)
		}
	}
}
