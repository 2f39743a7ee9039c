// Command inspect decodes one tile and prints its objects, resolved
// feature styles and mesh ranges. With -at it also hit-tests a point.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/config"
	"github.com/tilezen/go-tilemesh/feature"
	"github.com/tilezen/go-tilemesh/logging"
	"github.com/tilezen/go-tilemesh/style"
	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

// parsePoint reads an x,y pair in tile local coordinates.
func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, errors.Newf("point %q must be x,y", s)
	}
	var p orb.Point
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Point{}, errors.Wrapf(err, "parsing point %q", s)
		}
		p[i] = v
	}
	return p, nil
}

func describe(w io.Writer, tile *tilepack.Tile, features *feature.Collection) error {
	fmt.Fprintf(w, "tile %s extent %d: %d objects, %d vertices, %d indices\n\n",
		tile.ID, tile.Extent, len(tile.Objects), len(tile.Mesh.Vertices), tile.Mesh.IndexCount())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tSELECTOR\tVISIBLE\tZ\tINDICES")
	for _, r := range tile.FeatureRanges {
		f, ok := features.Get(r.FeatureID)
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t%g\t%d-%d\n", f.ID, f.Selector, f.Style.Visible(), f.Style.ZIndex, r.Range.Start, r.Range.End)
	}
	return tw.Flush()
}

func hits(w io.Writer, tile *tilepack.Tile, p orb.Point) {
	objects := tile.ObjectsAt(p)
	fmt.Fprintf(w, "\n%d objects at %g,%g\n", len(objects), p[0], p[1])
	for _, o := range objects {
		fmt.Fprintf(w, "  %s %s feature %d", o.Type, o.Selector, o.FeatureID)
		for k, v := range o.Tags {
			fmt.Fprintf(w, " %s=%s", k, v)
		}
		fmt.Fprintln(w)
	}
}

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file.")
	tileStr := flag.String("tile", "", "The z/x/y tile to fetch from the configured source.")
	file := flag.String("file", "", "Read the tile from this file instead of the source. -tile still names it.")
	stylePath := flag.String("style", "", "Stylesheet to resolve features with. Overrides style.path.")
	zoom := flag.Float64("zoom", -1, "Zoom to resolve styles at. Defaults to the tile zoom.")
	at := flag.String("at", "", "Optional x,y in tile local coordinates to hit-test.")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil && *file == "" {
		logrus.Fatalf("Couldn't load config: %+v", err)
	}
	if cfg == nil {
		cfg = &config.Config{Log: config.LogConfig{Level: "warn", Terminal: true}, Cache: config.CacheConfig{Features: feature.DefaultCapacity}}
		cfg.Style.SelectionTags = tilepack.DefaultSelectionTags
	}
	if *stylePath != "" {
		cfg.Style.Path = *stylePath
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Dir: cfg.Log.Dir, Terminal: cfg.Log.Terminal})
	if err != nil {
		logrus.Fatalf("Couldn't set up logging: %+v", err)
	}

	id, err := tilemath.ParseTileID(*tileStr)
	if err != nil {
		logger.Fatalf("-tile: %+v", err)
	}

	var data []byte
	if *file != "" {
		data, err = os.ReadFile(*file)
	} else {
		var src tilepack.Source
		var closer io.Closer
		src, closer, err = cfg.OpenSource(logger)
		if err != nil {
			logger.Fatalf("Couldn't open %s source: %+v", cfg.Source.Kind, err)
		}
		defer closer.Close()
		data, err = src.Fetch(context.Background(), id)
	}
	if err != nil {
		logger.Fatalf("Couldn't read tile %s: %+v", id, err)
	}

	features := feature.NewCollection(cfg.Cache.Features, logger)
	rules := style.NewRulesCache(logger)
	if cfg.Style.Path != "" {
		if err := rules.LoadFile(cfg.Style.Path); err != nil {
			logger.Fatalf("Couldn't load stylesheet: %+v", err)
		}
	}
	if *zoom < 0 {
		*zoom = float64(id.Z)
	}
	features.LoadStyles(*zoom, rules)

	dec := &tilepack.Decoder{Features: features, SelectionTags: cfg.Style.SelectionTags, Logger: logger}
	tile, err := dec.Decode(id, data)
	if err != nil {
		logger.Fatalf("Couldn't decode tile %s: %+v", id, err)
	}

	if err := describe(os.Stdout, tile, features); err != nil {
		logger.Fatalf("%+v", err)
	}
	if *at != "" {
		p, err := parsePoint(*at)
		if err != nil {
			logger.Fatalf("-at: %+v", err)
		}
		hits(os.Stdout, tile, p)
	}
}
