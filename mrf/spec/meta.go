// Package spec implements the persisted layout of an MRF store: the JSON
// metadata sidecar, the flat tile index and its positional addressing, the
// page codecs, the secondary deflate wrapper and the byte-order swap.
package spec

import (
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/rasterstore/go-mrf/raster"
)

const (
	// Driver is the identity string a valid store declares.
	Driver = "MRF"
	// Version of the persisted layout.
	Version = 1
)

var (
	ErrNotMRF   = errors.New("mrf: not an MRF store")
	ErrVersion  = errors.New("mrf: unsupported version")
	ErrGeometry = errors.New("mrf: invalid geometry")
)

// ByteOrder names for Metadata.ByteOrder. Big endian is the canonical order;
// little-endian stores are swapped at the raw stage.
const (
	OrderBig    = "big"
	OrderLittle = "little"
)

// Metadata is the persisted description of a store. It carries everything
// needed to decode the index and the tile data; none of it is derivable from
// the index alone.
type Metadata struct {
	Driver  string `json:"driver"`
	Version int    `json:"version"`

	SizeX     int             `json:"size_x"`
	SizeY     int             `json:"size_y"`
	PageX     int             `json:"page_x"`
	PageY     int             `json:"page_y"`
	Bands     int             `json:"bands"`
	PageBands int             `json:"page_bands"`
	DataType  raster.DataType `json:"datatype"`
	ByteOrder string          `json:"byte_order"`

	NoData []float64 `json:"nodata,omitempty"`
	Min    []float64 `json:"min,omitempty"`
	Max    []float64 `json:"max,omitempty"`

	Codec        Codec `json:"codec"`
	Quality      int   `json:"quality"`
	Deflate      bool  `json:"deflate,omitempty"`
	DeflateFlags int   `json:"deflate_flags,omitempty"`

	Levels int     `json:"levels"`
	Scale  float64 `json:"scale"`

	GeoTransform [6]float64 `json:"geotransform"`

	Source string `json:"source,omitempty"`
	Clone  bool   `json:"clone,omitempty"`
}

// Image is the static geometry of one resolution level.
type Image struct {
	Level          int
	SizeX, SizeY   int
	PageX, PageY   int
	PagesX, PagesY int
	Bands          int
	PageBands      int
	DataType       raster.DataType
}

// PixelSize returns the bytes per pixel per band.
func (img Image) PixelSize() int { return img.DataType.Size() }

// BlockSizeBytes returns the raw size of one band's worth of one page.
func (img Image) BlockSizeBytes() int {
	return img.PageX * img.PageY * img.PixelSize()
}

// PageSizeBytes returns the raw size of one physical page, all grouped bands
// included.
func (img Image) PageSizeBytes() int {
	return img.BlockSizeBytes() * img.PageBands
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Images derives the per-level descriptors, finest to coarsest. Each level
// shrinks the previous one by the scale factor, rounded up, so fractional
// scales produce consistent level geometry.
func (m *Metadata) Images() []Image {
	images := make([]Image, 0, m.Levels+1)
	sizeX, sizeY := m.SizeX, m.SizeY
	for level := 0; level <= m.Levels; level++ {
		images = append(images, Image{
			Level:     level,
			SizeX:     sizeX,
			SizeY:     sizeY,
			PageX:     m.PageX,
			PageY:     m.PageY,
			PagesX:    ceilDiv(sizeX, m.PageX),
			PagesY:    ceilDiv(sizeY, m.PageY),
			Bands:     m.Bands,
			PageBands: m.PageBands,
			DataType:  m.DataType,
		})
		sizeX = int(math.Ceil(float64(sizeX) / m.Scale))
		sizeY = int(math.Ceil(float64(sizeY) / m.Scale))
	}
	return images
}

// Validate checks the metadata for structural errors. It distinguishes a
// foreign file (ErrNotMRF) from a bad geometry (ErrGeometry).
func (m *Metadata) Validate() error {
	if m.Driver != Driver {
		return fmt.Errorf("%w: driver %q", ErrNotMRF, m.Driver)
	}
	if m.Version != Version {
		return fmt.Errorf("%w: %d", ErrVersion, m.Version)
	}
	if m.SizeX <= 0 || m.SizeY <= 0 || m.PageX <= 0 || m.PageY <= 0 {
		return fmt.Errorf("%w: size %dx%d, page %dx%d", ErrGeometry, m.SizeX, m.SizeY, m.PageX, m.PageY)
	}
	if m.Bands < 1 || m.PageBands < 1 || m.Bands%m.PageBands != 0 {
		return fmt.Errorf("%w: %d bands in groups of %d", ErrGeometry, m.Bands, m.PageBands)
	}
	if m.ByteOrder != OrderBig && m.ByteOrder != OrderLittle {
		return fmt.Errorf("%w: byte order %q", ErrGeometry, m.ByteOrder)
	}
	if m.Levels < 0 || m.Scale <= 1 {
		return fmt.Errorf("%w: %d levels at scale %v", ErrGeometry, m.Levels, m.Scale)
	}
	return nil
}

// MarshalMetadata serializes metadata for the sidecar file.
func MarshalMetadata(m *Metadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalMetadata parses and validates sidecar contents.
func UnmarshalMetadata(data []byte) (*Metadata, error) {
	m := &Metadata{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotMRF, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
