// Command merge combines mbtiles archives into one mbtiles or pmtiles
// archive and records the bounds and zoom range actually covered.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/logging"
	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// coverage accumulates the extent of the tiles written.
type coverage struct {
	bound            orb.Bound
	minZoom, maxZoom maptile.Zoom
	tiles            int
}

func (c *coverage) add(id tilemath.TileID) {
	if c.tiles == 0 {
		c.bound = id.Bound()
		c.minZoom, c.maxZoom = maptile.Zoom(id.Z), maptile.Zoom(id.Z)
	} else {
		c.bound = c.bound.Union(id.Bound())
		c.minZoom = min(c.minZoom, maptile.Zoom(id.Z))
		c.maxZoom = max(c.maxZoom, maptile.Zoom(id.Z))
	}
	c.tiles++
}

// merge copies every tile of inputs into out. Later inputs win when two
// archives hold the same tile.
func merge(inputs []string, out tilepack.TileOutputter, logger logrus.FieldLogger) (*coverage, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cov := &coverage{}
	seen := make(map[tilemath.TileID]bool)

	for _, input := range inputs {
		src, err := tilepack.NewMbtilesSource(input, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "reading input mbtiles %s", input)
		}

		var saveErr error
		err = src.VisitAllTiles(func(id tilemath.TileID, data []byte) {
			if saveErr != nil {
				return
			}
			if saveErr = out.Save(id, data); saveErr != nil {
				return
			}
			if !seen[id] {
				seen[id] = true
				cov.add(id)
			}
		})
		src.Close()
		if err == nil {
			err = saveErr
		}
		if err != nil {
			return nil, errors.Wrapf(err, "copying tiles from %s", input)
		}
		logger.WithField("input", input).Infof("Copied tiles, %d so far", cov.tiles)
	}
	return cov, nil
}

func main() {
	outputFilename := flag.String("output", "", "The archive to write to.")
	format := flag.String("format", "mbtiles", "Output format: mbtiles or pmtiles.")
	name := flag.String("name", "tilemesh", "Name recorded in the output metadata.")
	flag.Parse()
	inputFilenames := flag.Args()

	logger, err := logging.New(logging.Options{Level: "info", Terminal: true})
	if err != nil {
		logrus.Fatalf("Couldn't set up logging: %+v", err)
	}

	if *outputFilename == "" {
		logger.Fatal("Must specify --output path")
	}
	if len(inputFilenames) == 0 {
		logger.Fatal("Must specify at least one input path")
	}

	logger.Infof("Reading %s and writing them to %s", strings.Join(inputFilenames, ", "), *outputFilename)

	// If the output file exists already we shouldn't overwrite it
	if pathExists(*outputFilename) {
		logger.Fatalf("Output path %s already exists and cannot be overwritten", *outputFilename)
	}

	metadata := tilepack.NewMbtilesMetadata(nil)
	var out tilepack.TileOutputter
	switch *format {
	case "mbtiles":
		out, err = tilepack.NewMbtilesOutputter(*outputFilename)
	case "pmtiles":
		out, err = tilepack.NewPmtilesOutputter(*outputFilename, metadata, logger)
	default:
		err = errors.Newf("unknown format %s", *format)
	}
	if err != nil {
		logger.Fatalf("Couldn't create output: %+v", err)
	}
	if err := out.CreateTiles(); err != nil {
		logger.Fatalf("Couldn't create output: %+v", err)
	}

	cov, err := merge(inputFilenames, out, logger)
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	if cov.tiles == 0 {
		logger.Warn("Inputs hold no tiles")
	} else {
		spatial := tilepack.NewSpatialMetadata(*name, cov.bound, cov.minZoom, cov.maxZoom)
		for _, k := range spatial.Keys() {
			v, _ := spatial.Get(k)
			metadata.Set(k, v)
		}
	}

	if mb, ok := out.(*tilepack.MbtilesOutputter); ok {
		if err := mb.WriteMetadata(metadata); err != nil {
			logger.Fatalf("Couldn't write metadata: %+v", err)
		}
	}
	if err := out.Close(); err != nil {
		logger.Fatalf("Couldn't close output: %+v", err)
	}
	logger.Infof("Wrote %d tiles between zooms %d and %d", cov.tiles, cov.minZoom, cov.maxZoom)
}
