package raster

// Bounds is a georeferenced bounding box. LY < UY, LX < UX.
type Bounds struct {
	LX, LY, UX, UY float64
}

// Outside reports whether b sticks out of outer by more than eps in any
// direction.
func (b Bounds) Outside(outer Bounds, eps float64) bool {
	return b.LX < outer.LX-eps ||
		b.UX > outer.UX+eps ||
		b.LY < outer.LY-eps ||
		b.UY > outer.UY+eps
}

// Info summarizes the size, bounding box and resolution of a dataset.
type Info struct {
	SizeX, SizeY int
	Bounds       Bounds
	ResX, ResY   float64
}

// DatasetInfo derives Info from a dataset's geotransform.
func DatasetInfo(d Dataset) Info {
	gt := d.GeoTransform()
	sizeX, sizeY := d.Size()

	info := Info{
		SizeX: sizeX,
		SizeY: sizeY,
		ResX:  gt[1],
		ResY:  gt[5],
	}
	info.Bounds.LX = gt[0]
	info.Bounds.UY = gt[3]
	info.Bounds.UX = gt[0] + gt[1]*float64(sizeX)
	info.Bounds.LY = gt[3] + gt[5]*float64(sizeY)
	return info
}
