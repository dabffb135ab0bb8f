package spec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies the primary per-page compressor.
type Codec uint8

const (
	CodecUnknown Codec = iota
	CodecRaw
	CodecZstd
	CodecDeflate
)

var codecNames = map[Codec]string{
	CodecRaw:     "raw",
	CodecZstd:    "zstd",
	CodecDeflate: "deflate",
}

var ErrCodec = errors.New("mrf: codec failure")

func (c Codec) String() string {
	name, found := codecNames[c]
	if !found {
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
	return name
}

func ParseCodec(name string) (Codec, error) {
	for c, n := range codecNames {
		if n == name {
			return c, nil
		}
	}
	return CodecUnknown, fmt.Errorf("unknown codec %q", name)
}

func (c Codec) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Codec) UnmarshalText(text []byte) error {
	parsed, err := ParseCodec(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ByteOriented reports whether the codec stores multi-byte values verbatim,
// making the page sensitive to byte order.
func (c Codec) ByteOriented() bool {
	switch c {
	case CodecRaw, CodecZstd, CodecDeflate:
		return true
	}
	return false
}

// PageCodec transforms raw pages of a fixed size to and from their stored
// form. One instance per store; not safe for concurrent use beyond what the
// underlying zstd coder allows.
type PageCodec struct {
	codec Codec
	level int
	zenc  *zstd.Encoder
	zdec  *zstd.Decoder
}

// NewPageCodec builds a codec for the store. quality is the 0-100 scale from
// the metadata.
func NewPageCodec(codec Codec, quality int) (*PageCodec, error) {
	pc := &PageCodec{codec: codec, level: deflateLevel(quality)}
	switch codec {
	case CodecRaw, CodecDeflate:
	case CodecZstd:
		var err error
		pc.zenc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(quality)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCodec, err)
		}
		pc.zdec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCodec, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported codec %v", ErrCodec, codec)
	}
	return pc, nil
}

func zstdLevel(quality int) zstd.EncoderLevel {
	switch {
	case quality <= 25:
		return zstd.SpeedFastest
	case quality <= 50:
		return zstd.SpeedDefault
	case quality <= 75:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func deflateLevel(quality int) int {
	level := quality / 10
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	return level
}

// Encode compresses the raw page src into dst and returns the stored size.
// dst is the caller's scratch area, sized for the worst case; a page that
// does not fit is a codec failure.
func (pc *PageCodec) Encode(dst, src []byte) (int, error) {
	switch pc.codec {
	case CodecRaw:
		if len(src) > len(dst) {
			return 0, fmt.Errorf("%w: raw page of %d bytes exceeds scratch", ErrCodec, len(src))
		}
		return copy(dst, src), nil

	case CodecZstd:
		packed := pc.zenc.EncodeAll(src, dst[:0])
		if len(packed) > len(dst) {
			return 0, fmt.Errorf("%w: zstd page grew to %d bytes", ErrCodec, len(packed))
		}
		// EncodeAll may have switched to its own allocation.
		if &packed[0] != &dst[0] {
			copy(dst, packed)
		}
		return len(packed), nil

	case CodecDeflate:
		sw := sliceWriter{buf: dst}
		fw, err := flate.NewWriter(&sw, pc.level)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrCodec, err)
		}
		if _, err := fw.Write(src); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrCodec, err)
		}
		if err := fw.Close(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrCodec, err)
		}
		return sw.n, nil
	}
	return 0, fmt.Errorf("%w: unsupported codec %v", ErrCodec, pc.codec)
}

// Decode reconstructs exactly len(dst) raw page bytes from src.
func (pc *PageCodec) Decode(dst, src []byte) error {
	switch pc.codec {
	case CodecRaw:
		if len(src) != len(dst) {
			return fmt.Errorf("%w: raw page is %d bytes, want %d", ErrCodec, len(src), len(dst))
		}
		copy(dst, src)
		return nil

	case CodecZstd:
		raw, err := pc.zdec.DecodeAll(src, dst[:0])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCodec, err)
		}
		if len(raw) != len(dst) {
			return fmt.Errorf("%w: zstd page is %d bytes, want %d", ErrCodec, len(raw), len(dst))
		}
		if &raw[0] != &dst[0] {
			copy(dst, raw)
		}
		return nil

	case CodecDeflate:
		fr := flate.NewReader(bytes.NewReader(src))
		defer fr.Close()
		if _, err := io.ReadFull(fr, dst); err != nil {
			return fmt.Errorf("%w: %w", ErrCodec, err)
		}
		// The page must decode to exactly the raw size.
		var tail [1]byte
		if n, _ := fr.Read(tail[:]); n != 0 {
			return fmt.Errorf("%w: page decodes past %d bytes", ErrCodec, len(dst))
		}
		return nil
	}
	return fmt.Errorf("%w: unsupported codec %v", ErrCodec, pc.codec)
}

// sliceWriter writes into a fixed slice and fails when it runs out of room.
type sliceWriter struct {
	buf []byte
	n   int
}

var errScratchFull = errors.New("mrf: scratch buffer full")

func (w *sliceWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > len(w.buf) {
		return 0, errScratchFull
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}
