// Package internal provides synthetic in-memory rasters for tests.
package internal

import (
	"fmt"

	"github.com/rasterstore/go-mrf/raster"
)

// MemRaster is an in-memory multi-band raster. Each band is a contiguous
// plane of canonical-order values.
type MemRaster struct {
	W, H      int
	DataType  raster.DataType
	Transform [6]float64
	Planes    [][]byte
}

func NewMemRaster(w, h, bands int, dt raster.DataType) *MemRaster {
	r := &MemRaster{
		W:         w,
		H:         h,
		DataType:  dt,
		Transform: [6]float64{0, 1, 0, 0, 0, -1},
		Planes:    make([][]byte, bands),
	}
	for i := range r.Planes {
		r.Planes[i] = make([]byte, w*h*dt.Size())
	}
	return r
}

// NewGradient returns a raster filled with a deterministic per-band pattern
// that fits every supported datatype.
func NewGradient(w, h, bands int, dt raster.DataType) *MemRaster {
	r := NewMemRaster(w, h, bands, dt)
	for band := range r.Planes {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Set(band, x, y, float64((7*band+3*x+5*y)%251)+1)
			}
		}
	}
	return r
}

func (r *MemRaster) Set(band, x, y int, v float64) {
	raster.PutValue(r.Planes[band], y*r.W+x, r.DataType, v)
}

func (r *MemRaster) At(band, x, y int) float64 {
	return raster.GetValue(r.Planes[band], y*r.W+x, r.DataType)
}

func (r *MemRaster) Size() (int, int) { return r.W, r.H }

func (r *MemRaster) GeoTransform() [6]float64 { return r.Transform }

func (r *MemRaster) ReadWindow(x0, y0, w, h, bufW, bufH int, bands []int, buf []byte,
	pixelStride, lineStride, bandStride int) error {

	if x0 < 0 || y0 < 0 || x0+w > r.W || y0+h > r.H {
		return fmt.Errorf("window %dx%d at (%d, %d) out of %dx%d raster",
			w, h, x0, y0, r.W, r.H)
	}

	elem := r.DataType.Size()
	for bi, band := range bands {
		plane := r.Planes[band]
		for row := 0; row < bufH; row++ {
			sy := y0 + row*h/bufH
			for col := 0; col < bufW; col++ {
				sx := x0 + col*w/bufW
				d := bi*bandStride + row*lineStride + col*pixelStride
				s := (sy*r.W + sx) * elem
				copy(buf[d:d+elem], plane[s:s+elem])
			}
		}
	}
	return nil
}
