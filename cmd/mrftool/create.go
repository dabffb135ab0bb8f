package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/subcommands"
	"github.com/rasterstore/go-mrf/mrf"
	"github.com/rasterstore/go-mrf/mrf/spec"
	"github.com/rasterstore/go-mrf/raster"
)

type createCmd struct {
	size       string
	tile       string
	bands      int
	interleave bool
	datatype   string
	endian     string
	nodata     string
	codec      string
	quality    int
	levels     int
	deflate    bool
	gz         bool
	rawz       bool
	strategy   string
	source     string
	clone      bool
}

func (c *createCmd) Name() string     { return "create" }
func (c *createCmd) Synopsis() string { return "create an empty MRF store" }
func (c *createCmd) Usage() string {
	return "mrftool create -size <WxH> [options] <target>\n"
}

func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.size, "size", "", "Raster size, WxH pixels")
	f.StringVar(&c.tile, "tile", "512x512", "Page size, WxH pixels")
	f.IntVar(&c.bands, "bands", 1, "Band count")
	f.BoolVar(&c.interleave, "interleave", false, "Store all bands of a page together")
	f.StringVar(&c.datatype, "dt", "byte", "Pixel datatype")
	f.StringVar(&c.endian, "endian", "big", "Stored byte order (big, little)")
	f.StringVar(&c.nodata, "nodata", "", "NoData value")
	f.StringVar(&c.codec, "codec", "raw", "Page codec (raw, zstd, deflate)")
	f.IntVar(&c.quality, "quality", 0, "Compression quality, 0-100")
	f.IntVar(&c.levels, "levels", 0, "Overview level count")
	f.BoolVar(&c.deflate, "deflate", false, "Apply a secondary deflate stage")
	f.BoolVar(&c.gz, "gz", false, "Use gzip framing for the deflate stage")
	f.BoolVar(&c.rawz, "rawz", false, "Use raw framing for the deflate stage")
	f.StringVar(&c.strategy, "strategy", "", "Deflate strategy (Z_HUFFMAN_ONLY, Z_RLE, Z_FILTERED, Z_FIXED)")
	f.StringVar(&c.source, "source", "", "Source store to lazily fetch pages from")
	f.BoolVar(&c.clone, "clone", false, "Treat the source as a clone of identical geometry")
}

func (c *createCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Println("need exactly one target path")
		return subcommands.ExitUsageError
	}

	o := mrf.OptionsFromEnv()
	if n, err := fmt.Sscanf(c.size, "%dx%d", &o.SizeX, &o.SizeY); n != 2 || err != nil {
		log.Printf("bad -size %q, want WxH", c.size)
		return subcommands.ExitUsageError
	}
	if n, err := fmt.Sscanf(c.tile, "%dx%d", &o.PageX, &o.PageY); n != 2 || err != nil {
		log.Printf("bad -tile %q, want WxH", c.tile)
		return subcommands.ExitUsageError
	}

	var err error
	if o.DataType, err = raster.ParseDataType(c.datatype); err != nil {
		log.Println(err)
		return subcommands.ExitUsageError
	}
	if o.Codec, err = spec.ParseCodec(c.codec); err != nil {
		log.Println(err)
		return subcommands.ExitUsageError
	}

	o.Bands = c.bands
	o.Interleaved = c.interleave
	o.LittleEndian = c.endian == "little"
	o.Levels = c.levels
	o.Source = c.source
	o.Clone = c.clone
	if c.nodata != "" {
		var ndv float64
		if _, err := fmt.Sscanf(c.nodata, "%g", &ndv); err != nil {
			log.Printf("bad -nodata %q", c.nodata)
			return subcommands.ExitUsageError
		}
		o.NoData = []float64{ndv}
	}
	if c.quality != 0 {
		o.Quality = c.quality
	}
	if c.deflate {
		o.Deflate = true
	}
	if c.gz {
		o.GZ = true
	}
	if c.rawz {
		o.RawZ = true
	}
	if c.strategy != "" {
		o.ZStrategy = spec.ParseStrategy(c.strategy)
	}

	store, err := mrf.Create(f.Arg(0), o)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if err := store.Close(); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
