package mrf

import (
	"fmt"
	"math"

	"github.com/rasterstore/go-mrf/raster"
)

// Resampler decimates a srcW×srcH block of dt values into a dstW×dstH block.
type Resampler func(dst []byte, dstW, dstH int, src []byte, srcW, srcH int, dt raster.DataType)

// ParseResampler resolves a resampling method by name.
func ParseResampler(name string) (Resampler, error) {
	switch name {
	case "avg", "average":
		return ResampleAverage, nil
	case "near", "nearest", "nnb":
		return ResampleNearest, nil
	}
	return nil, fmt.Errorf("mrf: unknown resampling method %q", name)
}

// ResampleNearest picks the nearest source pixel.
func ResampleNearest(dst []byte, dstW, dstH int, src []byte, srcW, srcH int, dt raster.DataType) {
	elem := dt.Size()
	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			d := (y*dstW + x) * elem
			s := (sy*srcW + sx) * elem
			copy(dst[d:d+elem], src[s:s+elem])
		}
	}
}

// ResampleAverage averages the source cell covering each destination pixel,
// rounding to nearest for integer datatypes.
func ResampleAverage(dst []byte, dstW, dstH int, src []byte, srcW, srcH int, dt raster.DataType) {
	fx := srcW / dstW
	fy := srcH / dstH
	if fx < 1 {
		fx = 1
	}
	if fy < 1 {
		fy = 1
	}
	integer := dt != raster.Float32 && dt != raster.Float64

	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			sum := 0.0
			for j := 0; j < fy; j++ {
				for i := 0; i < fx; i++ {
					sum += raster.GetValue(src, (sy+j)*srcW+sx+i, dt)
				}
			}
			v := sum / float64(fx*fy)
			if integer {
				v = math.Floor(v + 0.5)
			}
			raster.PutValue(dst, y*dstW+x, dt, v)
		}
	}
}
