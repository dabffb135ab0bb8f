package raster_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rasterstore/go-mrf/raster"
)

func TestValueRoundtrip(t *testing.T) {
	for _, tc := range []struct {
		DataType raster.DataType
		Value    float64
	}{
		{DataType: raster.Byte, Value: 200},
		{DataType: raster.Int16, Value: -30000},
		{DataType: raster.UInt16, Value: 60000},
		{DataType: raster.Int32, Value: -2000000000},
		{DataType: raster.UInt32, Value: 4000000000},
		{DataType: raster.Float32, Value: 1.5},
		{DataType: raster.Float64, Value: -123456.789},
	} {
		t.Run(tc.DataType.String(), func(t *testing.T) {
			buf := make([]byte, 4*tc.DataType.Size())
			raster.PutValue(buf, 2, tc.DataType, tc.Value)
			if got := raster.GetValue(buf, 2, tc.DataType); got != tc.Value {
				t.Errorf("GetValue = %v, want %v", got, tc.Value)
			}
			// Neighbors stay untouched.
			if got := raster.GetValue(buf, 1, tc.DataType); got != 0 {
				t.Errorf("GetValue(1) = %v, want 0", got)
			}
		})
	}
}

func TestPatternTruncates(t *testing.T) {
	// Fractional values truncate toward zero for integer types, the way the
	// original raster conventions expect.
	if got := raster.GetValue(raster.Pattern(raster.Int16, -7.9), 0, raster.Int16); got != -7 {
		t.Errorf("Pattern(int16, -7.9) = %v, want -7", got)
	}
	if got := raster.GetValue(raster.Pattern(raster.Byte, 3.7), 0, raster.Byte); got != 3 {
		t.Errorf("Pattern(byte, 3.7) = %v, want 3", got)
	}
}

func TestFillAndFilled(t *testing.T) {
	for _, tc := range []struct {
		Name    string
		Pattern []byte
	}{
		{Name: "SingleByte", Pattern: []byte{42}},
		{Name: "Word", Pattern: []byte{1, 2}},
		{Name: "QWord", Pattern: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			buf := make([]byte, 64*len(tc.Pattern))
			raster.Fill(buf, tc.Pattern)
			if !raster.Filled(buf, tc.Pattern) {
				t.Fatalf("Filled(Fill(buf)) = false")
			}
			buf[len(buf)-1]++
			if raster.Filled(buf, tc.Pattern) {
				t.Fatalf("Filled = true after mutation")
			}
		})
	}
}

func TestIsZero(t *testing.T) {
	buf := make([]byte, 100)
	if !raster.IsZero(buf) {
		t.Errorf("IsZero(zeros) = false")
	}
	buf[99] = 1
	if raster.IsZero(buf) {
		t.Errorf("IsZero(nonzero) = true")
	}
}

func TestParseDataType(t *testing.T) {
	for _, name := range []string{"byte", "int16", "uint16", "int32", "uint32", "float32", "float64"} {
		dt, err := raster.ParseDataType(name)
		if err != nil {
			t.Errorf("ParseDataType(%q) failed: %v", name, err)
			continue
		}
		if got := dt.String(); got != name {
			t.Errorf("ParseDataType(%q).String() = %q", name, got)
		}
	}
	if _, err := raster.ParseDataType("complex64"); err == nil {
		t.Errorf("ParseDataType of unknown name succeeded, want error")
	}
}

// recordingSource records the windows requested of it and serves a constant.
type recordingSource struct {
	sizeX, sizeY int
	requests     []string
}

func (r *recordingSource) Size() (int, int) { return r.sizeX, r.sizeY }

func (r *recordingSource) ReadWindow(x0, y0, w, h, bufW, bufH int, bands []int, buf []byte,
	pixelStride, lineStride, bandStride int) error {

	r.requests = append(r.requests, fmt.Sprintf("%d,%d %dx%d", x0, y0, w, h))
	for row := 0; row < bufH; row++ {
		for col := 0; col < bufW; col++ {
			buf[row*lineStride+col*pixelStride] = 1
		}
	}
	return nil
}

func TestClippedRead(t *testing.T) {
	for _, tc := range []struct {
		Name        string
		X0, Y0      int
		W, H        int
		WantRequest string
		WantSet     func(x, y int) bool
	}{
		{
			Name: "Inside",
			X0:   2, Y0: 3, W: 4, H: 2,
			WantRequest: "2,3 4x2",
			WantSet:     func(x, y int) bool { return true },
		},
		{
			Name: "NegativeOrigin",
			X0:   -2, Y0: -1, W: 4, H: 4,
			WantRequest: "0,0 2x3",
			WantSet:     func(x, y int) bool { return x >= 2 && y >= 1 },
		},
		{
			Name: "PastEnd",
			X0:   8, Y0: 6, W: 4, H: 4,
			WantRequest: "8,6 2x2",
			WantSet:     func(x, y int) bool { return x < 2 && y < 2 },
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			src := &recordingSource{sizeX: 10, sizeY: 8}
			buf := make([]byte, tc.W*tc.H)
			err := raster.ClippedRead(src, tc.X0, tc.Y0, tc.W, tc.H, []int{0}, buf, 1, tc.W, 0)
			if err != nil {
				t.Fatalf("ClippedRead failed: %v", err)
			}

			if diff := cmp.Diff([]string{tc.WantRequest}, src.requests); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}
			for y := 0; y < tc.H; y++ {
				for x := 0; x < tc.W; x++ {
					want := byte(0)
					if tc.WantSet(x, y) {
						want = 1
					}
					if got := buf[y*tc.W+x]; got != want {
						t.Errorf("buf[%d,%d] = %d, want %d", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestClippedReadEntirelyOutside(t *testing.T) {
	src := &recordingSource{sizeX: 10, sizeY: 8}
	buf := make([]byte, 4)
	if err := raster.ClippedRead(src, 20, 0, 2, 2, []int{0}, buf, 1, 2, 0); err != nil {
		t.Fatalf("ClippedRead failed: %v", err)
	}
	if len(src.requests) != 0 {
		t.Errorf("fully clipped read reached the source: %v", src.requests)
	}
	if !raster.IsZero(buf) {
		t.Errorf("fully clipped read touched the buffer")
	}
}
