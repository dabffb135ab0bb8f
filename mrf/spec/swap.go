package spec

import (
	"encoding/binary"
	"math/bits"

	"github.com/rasterstore/go-mrf/raster"
)

// OrderDependent reports whether pages of this datatype under this codec are
// sensitive to byte order.
func OrderDependent(dt raster.DataType, codec Codec) bool {
	return dt.Size() > 1 && codec.ByteOriented()
}

// Swab swaps multi-byte words of buf in place. wordSize is 2, 4 or 8.
// Swapping twice restores the buffer exactly.
func Swab(buf []byte, wordSize int) {
	switch wordSize {
	case 2:
		for i := 0; i+2 <= len(buf); i += 2 {
			v := binary.BigEndian.Uint16(buf[i:])
			binary.BigEndian.PutUint16(buf[i:], bits.ReverseBytes16(v))
		}
	case 4:
		for i := 0; i+4 <= len(buf); i += 4 {
			v := binary.BigEndian.Uint32(buf[i:])
			binary.BigEndian.PutUint32(buf[i:], bits.ReverseBytes32(v))
		}
	case 8:
		for i := 0; i+8 <= len(buf); i += 8 {
			v := binary.BigEndian.Uint64(buf[i:])
			binary.BigEndian.PutUint64(buf[i:], bits.ReverseBytes64(v))
		}
	}
}
