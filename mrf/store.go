// Package mrf implements a tiled raster store: a large multi-band image kept
// as a grid of fixed-size, independently compressed pages addressed through a
// flat binary index, with multi-resolution overviews, lazy population from a
// source raster, cloning from another store and incremental overview patching.
package mrf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rasterstore/go-mrf/mrf/spec"
	"github.com/rasterstore/go-mrf/raster"
)

var (
	ErrReadOnly = errors.New("mrf: store is read-only")
	ErrNoSource = errors.New("mrf: no source to fetch from")
)

// pageSlack is the compression headroom past the raw page size, in case a
// packed page comes out slightly larger than the raw one.
const pageSlack = 1440

// Options describe a store at creation time. The zero value is completed by
// defaults: 512x512 pages, one band, byte data, raw codec, scale 2.
type Options struct {
	SizeX, SizeY int
	PageX, PageY int
	Bands        int
	// Interleaved stores all bands of a page region in one physical page.
	Interleaved bool
	DataType    raster.DataType
	// LittleEndian stores multi-byte values in little-endian order; the
	// canonical stored order is big-endian.
	LittleEndian bool

	// Per-band metadata; a short vector falls back to its first entry.
	NoData []float64
	Min    []float64
	Max    []float64

	Codec   spec.Codec
	Quality int

	// Secondary deflate stage applied after the page codec.
	Deflate   bool
	GZ        bool
	RawZ      bool
	ZStrategy spec.Strategy

	// Levels is the overview count past the base level.
	Levels int
	Scale  float64

	GeoTransform [6]float64

	// Source enables cache-fill from another raster; Clone marks it as a
	// store of identical geometry to copy pages from verbatim.
	Source string
	Clone  bool
}

func (o Options) withDefaults() Options {
	if o.PageX == 0 {
		o.PageX = 512
	}
	if o.PageY == 0 {
		o.PageY = 512
	}
	if o.Bands == 0 {
		o.Bands = 1
	}
	if o.Quality == 0 {
		o.Quality = 85
	}
	if o.Codec == spec.CodecUnknown {
		o.Codec = spec.CodecRaw
	}
	if o.Scale == 0 {
		o.Scale = 2
	}
	if o.GeoTransform == ([6]float64{}) {
		o.GeoTransform = [6]float64{0, 1, 0, 0, 0, -1}
	}
	return o
}

func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// OptionsFromEnv seeds the compression knobs from MRF_DEFLATE, MRF_GZ,
// MRF_RAWZ, MRF_Z_STRATEGY and MRF_QUALITY. Explicit fields set afterwards
// take precedence.
func OptionsFromEnv() Options {
	o := Options{
		Deflate:   envBool("MRF_DEFLATE"),
		GZ:        envBool("MRF_GZ"),
		RawZ:      envBool("MRF_RAWZ"),
		ZStrategy: spec.ParseStrategy(os.Getenv("MRF_Z_STRATEGY")),
	}
	if q := os.Getenv("MRF_QUALITY"); q != "" {
		fmt.Sscanf(q, "%d", &o.Quality)
	}
	return o
}

type storeConfig struct {
	logger   *slog.Logger
	cache    raster.BlockCache
	source   raster.Source
	readOnly bool
}

type StoreOption func(*storeConfig)

// WithLogger sets the logger used for per-page debug traces and warnings.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) { c.logger = logger }
}

// WithCache sets the host block cache consulted during interleaved I/O.
func WithCache(cache raster.BlockCache) StoreOption {
	return func(c *storeConfig) { c.cache = cache }
}

// WithSource injects an opened source raster, overriding the persisted
// source path.
func WithSource(source raster.Source) StoreOption {
	return func(c *storeConfig) { c.source = source }
}

// WithReadOnly opens the store without write access. Unfetched pages of a
// caching store read back as fill.
func WithReadOnly() StoreOption {
	return func(c *storeConfig) { c.readOnly = true }
}

// Store is a tiled raster store. It assumes a single writer process and
// performs no internal locking beyond the brief block-cache references taken
// while assembling interleaved pages.
type Store struct {
	logger *slog.Logger
	cache  raster.BlockCache

	path   string
	meta   *spec.Metadata
	images []spec.Image
	geom   spec.Geometry

	idx      *os.File
	dat      *os.File
	dataEnd  int64
	readOnly bool

	codec    *spec.PageCodec
	deflater *spec.Deflater

	// scratch is the accessor's reusable pipeline buffer: the raw page area
	// followed by the packed area with compression slack. The two halves are
	// never live at the same pipeline stage.
	scratch    []byte
	pageSize   int
	packedSize int

	src      raster.Source
	srcClose func() error
	clone    *Store
}

func basePath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Create initializes a new store: metadata sidecar, zeroed index sized for
// all levels, and an empty data file. The returned store is open for update.
func Create(path string, o Options, opts ...StoreOption) (*Store, error) {
	o = o.withDefaults()

	pageBands := 1
	if o.Interleaved {
		pageBands = o.Bands
	}
	byteOrder := spec.OrderBig
	if o.LittleEndian {
		byteOrder = spec.OrderLittle
	}

	meta := &spec.Metadata{
		Driver:       spec.Driver,
		Version:      spec.Version,
		SizeX:        o.SizeX,
		SizeY:        o.SizeY,
		PageX:        o.PageX,
		PageY:        o.PageY,
		Bands:        o.Bands,
		PageBands:    pageBands,
		DataType:     o.DataType,
		ByteOrder:    byteOrder,
		NoData:       o.NoData,
		Min:          o.Min,
		Max:          o.Max,
		Codec:        o.Codec,
		Quality:      o.Quality,
		Deflate:      o.Deflate,
		Levels:       o.Levels,
		Scale:        o.Scale,
		GeoTransform: o.GeoTransform,
		Source:       o.Source,
		Clone:        o.Clone,
	}
	if o.Deflate {
		meta.DeflateFlags = spec.PackDeflateFlags(o.Quality, o.GZ, o.RawZ, o.ZStrategy)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	metaData, err := spec.MarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, metaData, 0644); err != nil {
		return nil, err
	}

	geom := spec.NewGeometry(meta.Images())

	idx, err := os.Create(basePath(path) + ".idx")
	if err != nil {
		return nil, err
	}
	if err := idx.Truncate(geom.Entries() * spec.EntrySize); err != nil {
		idx.Close()
		return nil, err
	}
	idx.Close()

	dat, err := os.Create(basePath(path) + ".dat")
	if err != nil {
		return nil, err
	}
	dat.Close()

	return Open(path, opts...)
}

// Open opens an existing store.
func Open(path string, opts ...StoreOption) (s *Store, err error) {
	config := storeConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&config)
	}

	metaData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta, err := spec.UnmarshalMetadata(metaData)
	if err != nil {
		return nil, err
	}

	images := meta.Images()
	pageSize := images[0].PageSizeBytes()

	s = &Store{
		logger:     config.logger,
		cache:      config.cache,
		path:       path,
		meta:       meta,
		images:     images,
		geom:       spec.NewGeometry(images),
		readOnly:   config.readOnly,
		scratch:    make([]byte, 2*pageSize+pageSlack),
		pageSize:   pageSize,
		packedSize: pageSize + pageSlack,
		src:        config.source,
	}
	if s.cache == nil && meta.PageBands > 1 {
		// Interleaved assembly needs somewhere to find sibling blocks when
		// the host does not supply its own cache.
		s.cache = raster.NewMapCache()
	}

	s.codec, err = spec.NewPageCodec(meta.Codec, meta.Quality)
	if err != nil {
		return nil, err
	}
	if meta.Deflate {
		s.deflater = &spec.Deflater{Flags: meta.DeflateFlags}
	}

	flag := os.O_RDWR
	if config.readOnly {
		flag = os.O_RDONLY
	}
	defer func() {
		if err != nil {
			s.closeFiles()
		}
	}()

	s.idx, err = os.OpenFile(basePath(path)+".idx", flag, 0644)
	if err != nil {
		return nil, err
	}
	s.dat, err = os.OpenFile(basePath(path)+".dat", flag, 0644)
	if err != nil {
		return nil, err
	}
	stat, err := s.dat.Stat()
	if err != nil {
		return nil, err
	}
	s.dataEnd = stat.Size()

	return s, nil
}

func (s *Store) closeFiles() error {
	var errs []error
	if s.idx != nil {
		errs = append(errs, s.idx.Close())
		s.idx = nil
	}
	if s.dat != nil {
		errs = append(errs, s.dat.Close())
		s.dat = nil
	}
	return errors.Join(errs...)
}

// Flush forces pending index and data writes to durable storage.
func (s *Store) Flush() error {
	if s.readOnly {
		return nil
	}
	return errors.Join(s.dat.Sync(), s.idx.Sync())
}

// Close flushes and releases the store, its lazily opened source and clone.
func (s *Store) Close() error {
	var errs []error
	if !s.readOnly && s.idx != nil {
		errs = append(errs, s.Flush())
	}
	errs = append(errs, s.closeFiles())
	if s.srcClose != nil {
		errs = append(errs, s.srcClose())
		s.srcClose = nil
	}
	if s.clone != nil {
		errs = append(errs, s.clone.Close())
		s.clone = nil
	}
	return errors.Join(errs...)
}

// Metadata returns a copy of the persisted store metadata.
func (s *Store) Metadata() spec.Metadata { return *s.meta }

// Levels returns the overview count past the base level.
func (s *Store) Levels() int { return s.meta.Levels }

func bandValue(v []float64, idx int) (float64, bool) {
	if len(v) == 0 {
		return 0, false
	}
	if idx < len(v) {
		return v[idx], true
	}
	return v[0], true
}

// NoData returns the declared NoData value for a band, falling back to the
// first entry of a short vector.
func (s *Store) NoData(band int) (float64, bool) { return bandValue(s.meta.NoData, band) }

// Min returns the declared minimum for a band.
func (s *Store) Min(band int) (float64, bool) { return bandValue(s.meta.Min, band) }

// Max returns the declared maximum for a band.
func (s *Store) Max(band int) (float64, bool) { return bandValue(s.meta.Max, band) }

func (s *Store) image(level int) (spec.Image, error) {
	if level < 0 || level >= len(s.images) {
		return spec.Image{}, fmt.Errorf("%w: level %d", spec.ErrOutOfRange, level)
	}
	return s.images[level], nil
}

func (s *Store) checkBand(band int) error {
	if band < 0 || band >= s.meta.Bands {
		return fmt.Errorf("%w: band %d", spec.ErrOutOfRange, band)
	}
	return nil
}

// Entry returns the index entry for a page, mainly for inspection and tests.
func (s *Store) Entry(band, level, x, y int) (spec.Entry, error) {
	img, err := s.image(level)
	if err != nil {
		return spec.Entry{}, err
	}
	if err := s.checkBand(band); err != nil {
		return spec.Entry{}, err
	}
	pos, err := s.geom.Position(level, band/img.PageBands, x, y)
	if err != nil {
		return spec.Entry{}, err
	}
	return spec.ReadEntry(s.idx, pos)
}

func (s *Store) rawArea() []byte    { return s.scratch[:s.pageSize] }
func (s *Store) packedArea() []byte { return s.scratch[s.pageSize:] }

func (s *Store) needSwap() bool {
	return s.meta.ByteOrder == spec.OrderLittle &&
		spec.OrderDependent(s.meta.DataType, s.meta.Codec)
}

// writeTile appends data and records the index entry, data before index so
// an entry never references unwritten bytes. nil data clears the entry;
// confirmed additionally marks the page as deliberately empty, distinguishing
// it from one never touched.
func (s *Store) writeTile(pos int64, data []byte, confirmed bool) error {
	if s.readOnly {
		return ErrReadOnly
	}
	entry := spec.Entry{}
	if len(data) > 0 {
		if _, err := s.dat.WriteAt(data, s.dataEnd); err != nil {
			return err
		}
		entry = spec.Entry{Offset: uint64(s.dataEnd), Size: uint64(len(data))}
		s.dataEnd += int64(len(data))
	} else if confirmed {
		entry.Offset = spec.EmptyOffset
	}
	return spec.WriteEntry(s.idx, pos, entry)
}

// fillBlock fills dst with the band's NoData value, or zero if undeclared.
func (s *Store) fillBlock(dst []byte, band int) {
	ndv, declared := s.NoData(band)
	if !declared {
		raster.Fill(dst, []byte{0})
		return
	}
	raster.Fill(dst, raster.Pattern(s.meta.DataType, ndv))
}

// emptyBlock reports whether buf is entirely NoData (when declared) or zero.
func (s *Store) emptyBlock(buf []byte, band int) bool {
	if ndv, declared := s.NoData(band); declared {
		return raster.Filled(buf, raster.Pattern(s.meta.DataType, ndv))
	}
	return raster.IsZero(buf)
}

func (s *Store) hasSource() bool {
	return s.src != nil || s.meta.Source != ""
}

func (s *Store) resolveSourcePath() string {
	if filepath.IsAbs(s.meta.Source) {
		return s.meta.Source
	}
	return filepath.Join(filepath.Dir(s.path), s.meta.Source)
}

// sourceRaster lazily opens the configured source.
func (s *Store) sourceRaster() (raster.Source, error) {
	if s.src != nil {
		return s.src, nil
	}
	if s.meta.Source == "" {
		return nil, ErrNoSource
	}
	src, err := Open(s.resolveSourcePath(), WithReadOnly(), WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("mrf: cannot open source %s: %w", s.meta.Source, err)
	}
	s.src = src
	s.srcClose = src.Close
	return s.src, nil
}

// cloneStore lazily opens the cloned sibling store and checks that its page
// geometry matches.
func (s *Store) cloneStore() (*Store, error) {
	if s.clone != nil {
		return s.clone, nil
	}
	if s.meta.Source == "" {
		return nil, ErrNoSource
	}
	clone, err := Open(s.resolveSourcePath(), WithReadOnly(), WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("mrf: cannot open clone source %s: %w", s.meta.Source, err)
	}
	cm := clone.meta
	if cm.SizeX != s.meta.SizeX || cm.SizeY != s.meta.SizeY ||
		cm.PageX != s.meta.PageX || cm.PageY != s.meta.PageY ||
		cm.Bands != s.meta.Bands || cm.PageBands != s.meta.PageBands ||
		cm.DataType != s.meta.DataType || cm.Levels != s.meta.Levels {
		clone.Close()
		return nil, fmt.Errorf("%w: clone source geometry differs", spec.ErrGeometry)
	}
	s.clone = clone
	return s.clone, nil
}
