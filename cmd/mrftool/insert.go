package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/google/subcommands"
	"github.com/rasterstore/go-mrf/mrf"
	"github.com/rasterstore/go-mrf/raster"
	"github.com/schollz/progressbar/v3"
)

type insertCmd struct {
	startLevel int
	stopLevel  int
	resampling string
	quiet      bool
	verbose    bool
	resTol     float64
	bboxEps    float64
}

func (c *insertCmd) Name() string { return "insert" }
func (c *insertCmd) Synopsis() string {
	return "insert source rasters into an MRF store and repair its overviews"
}
func (c *insertCmd) Usage() string {
	return "mrftool insert [-start_level <N>] [-stop_level <N>] [-r avg|near] [-q] [-v] <source>... <target>\n"
}

func (c *insertCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.startLevel, "start_level", 0, "First level to insert into")
	f.IntVar(&c.stopLevel, "stop_level", -1, "Last level to insert into (default: all)")
	f.StringVar(&c.resampling, "r", "", "Resampling method (avg, near); enables overview patching")
	f.BoolVar(&c.quiet, "q", false, "Turn off progress display")
	f.BoolVar(&c.quiet, "quiet", false, "Turn off progress display")
	f.BoolVar(&c.verbose, "v", false, "Verbose output")
	f.Float64Var(&c.resTol, "res_tol", 0.001, "Relative source/target resolution tolerance")
	f.Float64Var(&c.bboxEps, "bbox_eps", 0.01, "Bounds containment epsilon, in coordinate units")
}

func (c *insertCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 2 {
		log.Println("need at least one source and a target")
		return subcommands.ExitUsageError
	}
	sources, targetPath := args[:len(args)-1], args[len(args)-1]

	var resample mrf.Resampler
	if c.resampling != "" {
		var err error
		if resample, err = mrf.ParseResampler(c.resampling); err != nil {
			log.Println(err)
			return subcommands.ExitUsageError
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if c.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cache := raster.NewMapCache()
	target, err := mrf.Open(targetPath, mrf.WithLogger(logger), mrf.WithCache(cache))
	if err != nil {
		log.Printf("cannot open target %s for update: %v", targetPath, err)
		return subcommands.ExitFailure
	}
	defer target.Close()

	for _, sourcePath := range sources {
		source, err := mrf.Open(sourcePath, mrf.WithReadOnly(), mrf.WithLogger(logger))
		if err != nil {
			log.Printf("cannot open source %s: %v", sourcePath, err)
			return subcommands.ExitFailure
		}
		err = c.patch(target, source, cache, resample)
		source.Close()
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
	}

	if err := target.Flush(); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// patch copies the source's footprint into the target's base level, then
// regenerates the overview levels covering it.
func (c *insertCmd) patch(target *mrf.Store, source raster.Dataset, cache *raster.MapCache, resample mrf.Resampler) error {
	in := raster.DatasetInfo(source)
	out := raster.DatasetInfo(target)

	if c.verbose {
		log.Printf("out %+v", out.Bounds)
		log.Printf("in  %+v", in.Bounds)
	}

	if in.Bounds.Outside(out.Bounds, c.bboxEps) {
		return fmt.Errorf("input patch outside of target")
	}
	if math.Abs(in.ResX-out.ResX) > c.resTol*math.Abs(out.ResX) ||
		math.Abs(in.ResY-out.ResY) > c.resTol*math.Abs(out.ResY) {
		return fmt.Errorf("source and target resolutions don't match")
	}

	meta := target.Metadata()
	tsx, tsy := meta.PageX, meta.PageY
	vsz := meta.DataType.Size()
	blockBytes := tsx * tsy * vsz

	// Footprint in target pixels, then in target pages. The coverage is
	// expected to sit on page boundaries; rounding to nearest keeps small
	// georeferencing noise from shifting it.
	px0 := int((in.Bounds.LX-out.Bounds.LX)/in.ResX + 0.5)
	px1 := int((in.Bounds.UX-out.Bounds.LX)/in.ResX + 0.5)
	py0 := int((in.Bounds.UY-out.Bounds.UY)/in.ResY + 0.5)
	py1 := int((in.Bounds.LY-out.Bounds.UY)/in.ResY + 0.5)

	bx0 := int(float64(px0)/float64(tsx) + 0.5)
	bx1 := int(float64(px1)/float64(tsx) + 0.5)
	by0 := int(float64(py0)/float64(tsy) + 0.5)
	by1 := int(float64(py1)/float64(tsy) + 0.5)

	region := mrf.Region{X: bx0, Y: by0, Width: bx1 - bx0, Height: by1 - by0}
	if c.verbose {
		log.Printf("pages %+v", region)
	}

	if c.startLevel == 0 {
		total := int64(region.Width) * int64(region.Height)
		bar := progressbar.DefaultSilent(total)
		if !c.quiet {
			bar = progressbar.Default(total)
		}

		bufs := make([][]byte, meta.Bands)
		for i := range bufs {
			bufs[i] = make([]byte, blockBytes)
		}

		for y := by0; y < by1; y++ {
			soy := y*tsy - py0
			for x := bx0; x < bx1; x++ {
				sox := x*tsx - px0
				for band := 0; band < meta.Bands; band++ {
					buf := bufs[band]

					// Partially covered pages keep the target's pixels where
					// the source has none.
					if sox < 0 || sox+tsx > in.SizeX || soy < 0 || soy+tsy > in.SizeY {
						if err := target.ReadBlock(band, 0, x, y, buf); err != nil {
							return err
						}
					}
					err := raster.ClippedRead(source, sox, soy, tsx, tsy,
						[]int{band}, buf, vsz, vsz*tsx, 0)
					if err != nil {
						return err
					}

					if meta.PageBands > 1 {
						cache.Put(raster.BlockKey{Band: band, Level: 0, X: x, Y: y}, buf)
					} else if err := target.WriteBlock(band, 0, x, y, buf); err != nil {
						return err
					}
				}
				if meta.PageBands > 1 {
					for group := 0; group < meta.Bands/meta.PageBands; group++ {
						band := group * meta.PageBands
						if err := target.WriteBlock(band, 0, x, y, bufs[band]); err != nil {
							return err
						}
					}
				}
				bar.Add(1)
			}
		}
		bar.Finish()

		if err := target.Flush(); err != nil {
			return err
		}
	}

	if resample != nil {
		return target.PatchOverviews(region, c.startLevel-1, c.stopLevel, resample)
	}
	return nil
}
