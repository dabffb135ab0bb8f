// Package raster provides common raster types and the host-framework
// interfaces consumed by the mrf storage engine.
//
// Pixel buffers exchanged with the engine hold values in canonical
// (big-endian) byte order. Stores that declare little-endian storage are
// swapped at the raw stage on their way in and out.
package raster

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType identifies the pixel datatype of a raster band.
type DataType uint8

const (
	Byte DataType = iota
	Int16
	UInt16
	Int32
	UInt32
	Float32
	Float64
)

var dataTypeNames = map[DataType]string{
	Byte:    "byte",
	Int16:   "int16",
	UInt16:  "uint16",
	Int32:   "int32",
	UInt32:  "uint32",
	Float32: "float32",
	Float64: "float64",
}

// Size returns the storage size of one value in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Byte:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	default:
		return 8
	}
}

func (dt DataType) String() string {
	name, found := dataTypeNames[dt]
	if !found {
		return fmt.Sprintf("DataType(%d)", uint8(dt))
	}
	return name
}

func ParseDataType(name string) (DataType, error) {
	for dt, n := range dataTypeNames {
		if n == name {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown datatype %q", name)
}

func (dt DataType) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

func (dt *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// Pattern returns the canonical-order byte encoding of value v as dt.
// Integer types truncate the way a C cast would.
func Pattern(dt DataType, v float64) []byte {
	buf := make([]byte, dt.Size())
	PutValue(buf, 0, dt, v)
	return buf
}

// GetValue decodes the idx-th element of buf as dt.
func GetValue(buf []byte, idx int, dt DataType) float64 {
	switch dt {
	case Byte:
		return float64(buf[idx])
	case Int16:
		return float64(int16(binary.BigEndian.Uint16(buf[idx*2:])))
	case UInt16:
		return float64(binary.BigEndian.Uint16(buf[idx*2:]))
	case Int32:
		return float64(int32(binary.BigEndian.Uint32(buf[idx*4:])))
	case UInt32:
		return float64(binary.BigEndian.Uint32(buf[idx*4:]))
	case Float32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf[idx*4:])))
	default:
		return math.Float64frombits(binary.BigEndian.Uint64(buf[idx*8:]))
	}
}

// PutValue encodes v as dt into the idx-th element of buf.
func PutValue(buf []byte, idx int, dt DataType, v float64) {
	switch dt {
	case Byte:
		buf[idx] = byte(int64(v))
	case Int16:
		binary.BigEndian.PutUint16(buf[idx*2:], uint16(int16(int64(v))))
	case UInt16:
		binary.BigEndian.PutUint16(buf[idx*2:], uint16(int64(v)))
	case Int32:
		binary.BigEndian.PutUint32(buf[idx*4:], uint32(int32(int64(v))))
	case UInt32:
		binary.BigEndian.PutUint32(buf[idx*4:], uint32(int64(v)))
	case Float32:
		binary.BigEndian.PutUint32(buf[idx*4:], math.Float32bits(float32(v)))
	default:
		binary.BigEndian.PutUint64(buf[idx*8:], math.Float64bits(v))
	}
}

// Fill fills buf with repetitions of pattern. Single-byte patterns take the
// fast path.
func Fill(buf []byte, pattern []byte) {
	if len(pattern) == 1 {
		for i := range buf {
			buf[i] = pattern[0]
		}
		return
	}
	n := copy(buf, pattern)
	for n < len(buf) {
		n += copy(buf[n:], buf[:n])
	}
}

// Filled reports whether buf consists entirely of repetitions of pattern.
func Filled(buf []byte, pattern []byte) bool {
	if len(pattern) == 1 {
		for _, b := range buf {
			if b != pattern[0] {
				return false
			}
		}
		return true
	}
	for i, b := range buf {
		if b != pattern[i%len(pattern)] {
			return false
		}
	}
	return true
}

// IsZero reports whether every byte of buf is zero.
func IsZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Source supplies pixel windows from a backing raster. It is the contract a
// caching store reads through when populating tiles.
type Source interface {
	// Size returns the raster dimensions in pixels.
	Size() (x, y int)

	// ReadWindow reads the w×h pixel window at (x0, y0) into a bufW×bufH
	// buffer, decimating when the buffer is smaller than the window.
	// bands lists zero-based band indices; strides are in bytes between
	// consecutive pixels, lines and bands of buf.
	ReadWindow(x0, y0, w, h, bufW, bufH int, bands []int, buf []byte,
		pixelStride, lineStride, bandStride int) error
}

// Dataset extends Source with the georeferencing the insert tool needs.
type Dataset interface {
	Source

	// GeoTransform returns the affine transform in the usual six-element
	// form: origin x, pixel width, row rotation, origin y, column rotation,
	// pixel height (negative for north-up).
	GeoTransform() [6]float64
}

// ClippedRead works like Source.ReadWindow without decimation, except that it
// trims the request to the source bounds and leaves the out-of-range parts of
// buf untouched.
func ClippedRead(src Source, x0, y0, w, h int, bands []int, buf []byte,
	pixelStride, lineStride, bandStride int) error {

	sizeX, sizeY := src.Size()

	if x0 < 0 {
		buf = buf[-x0*pixelStride:]
		w += x0
		x0 = 0
	}
	if x0+w > sizeX {
		w = sizeX - x0
	}
	if y0 < 0 {
		buf = buf[-y0*lineStride:]
		h += y0
		y0 = 0
	}
	if y0+h > sizeY {
		h = sizeY - y0
	}
	if w <= 0 || h <= 0 {
		return nil
	}

	return src.ReadWindow(x0, y0, w, h, w, h, bands, buf, pixelStride, lineStride, bandStride)
}
