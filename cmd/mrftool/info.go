package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/goccy/go-json"
	"github.com/google/subcommands"
	"github.com/rasterstore/go-mrf/mrf"
)

type infoCmd struct{}

func (c *infoCmd) Name() string     { return "info" }
func (c *infoCmd) Synopsis() string { return "print store metadata and per-level page statistics" }
func (c *infoCmd) Usage() string    { return "mrftool info <store>\n" }

func (c *infoCmd) SetFlags(f *flag.FlagSet) {}

func (c *infoCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Println("need exactly one store path")
		return subcommands.ExitUsageError
	}

	store, err := mrf.Open(f.Arg(0), mrf.WithReadOnly())
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	meta := store.Metadata()
	out, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	os.Stdout.Write(append(out, '\n'))

	for level := 0; level <= meta.Levels; level++ {
		band, err := store.Band(0)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		if level > 0 {
			if band, err = band.Overview(level - 1); err != nil {
				log.Println(err)
				return subcommands.ExitFailure
			}
		}
		pagesX, pagesY := band.Blocks()

		var stored, empty, untouched int
		groups := meta.Bands / meta.PageBands
		for group := 0; group < groups; group++ {
			for y := 0; y < pagesY; y++ {
				for x := 0; x < pagesX; x++ {
					entry, err := store.Entry(group*meta.PageBands, level, x, y)
					if err != nil {
						log.Println(err)
						return subcommands.ExitFailure
					}
					switch {
					case entry.Size > 0:
						stored++
					case entry.Offset != 0:
						empty++
					default:
						untouched++
					}
				}
			}
		}
		fmt.Printf("level %d: %dx%d pages, %d stored, %d empty, %d untouched\n",
			level, pagesX, pagesY, stored, empty, untouched)
	}
	return subcommands.ExitSuccess
}
