// Command prefetch copies the tiles covering a bounding box from the
// configured source into a disk mirror, an mbtiles or a pmtiles archive.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"regexp"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/config"
	"github.com/tilezen/go-tilemesh/logging"
	"github.com/tilezen/go-tilemesh/tilepack"
)

const (
	saveLogInterval = 10000
)

var zoomRange = regexp.MustCompile(`^\d+-\d+$`)

func calculateExpectedTiles(b orb.Bound, zs []maptile.Zoom) uint32 {
	return uint32(tilepack.CountTiles(b, zs))
}

// parseBounds reads a south,west,north,east string.
func parseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.New("bounding box string must be a comma-separated list of 4 numbers")
	}

	var f [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, errors.Wrap(err, "bounding box string could not be parsed as numbers")
		}
		f[i] = v
	}
	return orb.Bound{Min: orb.Point{f[1], f[0]}, Max: orb.Point{f[3], f[2]}}, nil
}

// parseZooms reads a comma-separated list or a min-max range.
func parseZooms(s string) ([]maptile.Zoom, error) {
	if zoomRange.MatchString(s) {
		r := strings.Split(s, "-")
		minZoom, err := strconv.ParseUint(r[0], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing min zoom %s", r[0])
		}
		maxZoom, err := strconv.ParseUint(r[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing max zoom %s", r[1])
		}
		if minZoom > maxZoom {
			return nil, errors.Newf("invalid zoom range %s", s)
		}

		zooms := make([]maptile.Zoom, 0, maxZoom-minZoom+1)
		for z := minZoom; z <= maxZoom; z++ {
			zooms = append(zooms, maptile.Zoom(z))
		}
		return zooms, nil
	}

	parts := strings.Split(s, ",")
	zooms := make([]maptile.Zoom, len(parts))
	for i, p := range parts {
		z, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, "zoom list could not be parsed")
		}
		zooms[i] = maptile.Zoom(z)
	}
	return zooms, nil
}

// regionBounds returns the bound of every feature in a GeoJSON feature
// collection.
func regionBounds(data []byte) (orb.Bound, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return orb.Bound{}, errors.Wrap(err, "parsing region")
	}
	if len(fc.Features) == 0 {
		return orb.Bound{}, errors.New("region has no features")
	}

	b := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b, nil
}

func newOutputter(mode, dsn string, metadata *tilepack.MbtilesMetadata, logger logrus.FieldLogger) (tilepack.TileOutputter, error) {
	switch mode {
	case "disk":
		return tilepack.NewDiskMirror(dsn)
	case "mbtiles":
		return tilepack.NewMbtilesOutputter(dsn)
	case "pmtiles":
		return tilepack.NewPmtilesOutputter(dsn, metadata, logger)
	}
	return nil, errors.Newf("unknown outputter %s", mode)
}

func processResults(waitGroup *sync.WaitGroup, results chan *tilepack.TileResponse, processor tilepack.TileOutputter, bar *progressbar.ProgressBar, logger logrus.FieldLogger) {
	defer waitGroup.Done()

	start := time.Now()

	counter := 0
	for result := range results {
		if err := processor.Save(result.ID, result.Data); err != nil {
			logger.WithError(err).WithField("tile", result.ID.String()).Error("Couldn't save tile")
		}
		bar.Add(1)

		counter++
		if counter%saveLogInterval == 0 {
			duration := time.Since(start)
			start = time.Now()
			logger.Debugf("Saved %dk tiles (%0.1f tiles per second)", counter/1000, saveLogInterval/duration.Seconds())
		}
	}
	bar.Finish()
	logger.Infof("Saved %d tiles", counter)
}

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file. The source section picks where tiles come from.")
	urlTemplate := flag.String("url-template", "", "Fetch from this {z}/{x}/{y} URL template instead of the configured source.")
	outputMode := flag.String("output-mode", "mbtiles", "Valid modes are: disk, mbtiles, pmtiles.")
	outputDSN := flag.String("dsn", "", "Path, or DSN string, to output files.")
	name := flag.String("name", "tilemesh", "Name recorded in the archive metadata.")
	regionFile := flag.String("region", "", "GeoJSON feature collection whose bound replaces -bounds.")
	boundingBoxStr := flag.String("bounds", "-90.0,-180.0,90.0,180.0", "Comma-separated bounding box in south,west,north,east format. Defaults to the whole world.")
	zoomsStr := flag.String("zooms", "0,1,2,3,4,5,6,7,8,9,10", "Comma-separated list of zoom levels or a '{MIN_ZOOM}-{MAX_ZOOM}' range string.")
	numTileFetchWorkers := flag.Int("workers", 25, "Number of tile fetch workers to use.")
	cpuProfile := flag.String("cpuprofile", "", "Enables CPU profiling. Saves the dump to the given path.")
	flag.Parse()

	bootLog := logrus.StandardLogger()

	if *urlTemplate != "" {
		os.Setenv("TILEMESH_SOURCE_KIND", config.SourceHTTP)
		os.Setenv("TILEMESH_SOURCE_URL", *urlTemplate)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatalf("Couldn't load config: %+v", err)
	}
	// tiles go straight to the output
	cfg.Cache.Dir = ""

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Dir: cfg.Log.Dir, Terminal: cfg.Log.Terminal})
	if err != nil {
		bootLog.Fatalf("Couldn't set up logging: %+v", err)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logger.Fatalf("Could not create CPU profile: %+v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Fatalf("Could not start CPU profile: %+v", err)
		}
		defer pprof.StopCPUProfile()
	}

	if *outputDSN == "" {
		logger.Fatal("Output DSN (-dsn) is required")
	}

	bounds, err := parseBounds(*boundingBoxStr)
	if *regionFile != "" {
		var data []byte
		if data, err = os.ReadFile(*regionFile); err == nil {
			bounds, err = regionBounds(data)
		}
	}
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	zooms, err := parseZooms(*zoomsStr)
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	minZoom, maxZoom := zooms[0], zooms[0]
	for _, z := range zooms {
		minZoom, maxZoom = min(minZoom, z), max(maxZoom, z)
	}
	metadata := tilepack.NewSpatialMetadata(*name, bounds, minZoom, maxZoom)

	src, closer, err := cfg.OpenSource(logger)
	if err != nil {
		logger.Fatalf("Couldn't open %s source: %+v", cfg.Source.Kind, err)
	}
	defer closer.Close()

	outputter, err := newOutputter(*outputMode, *outputDSN, metadata, logger)
	if err != nil {
		logger.Fatalf("Couldn't create %s output: %+v", *outputMode, err)
	}
	if err := outputter.CreateTiles(); err != nil {
		logger.Fatalf("Failed to create %s output: %+v", *outputMode, err)
	}
	logger.Infof("Created %s output", *outputMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	jobCreator := tilepack.NewSourceJobGenerator(ctx, src, tilepack.CoverBounds(bounds, zooms), logger)
	bar := progressbar.Default(int64(calculateExpectedTiles(bounds, zooms)), "prefetching")

	jobs := make(chan *tilepack.TileRequest, 2000)
	results := make(chan *tilepack.TileResponse, 2000)

	// Start up the workers that will fetch tiles
	workerWG := &sync.WaitGroup{}
	for w := 0; w < *numTileFetchWorkers; w++ {
		worker, err := jobCreator.CreateWorker()
		if err != nil {
			logger.Fatalf("Couldn't create worker: %+v", err)
		}

		workerWG.Add(1)
		go func(id int) {
			defer workerWG.Done()
			worker(id, jobs, results)
		}(w)
	}

	// Start the worker that receives data from the fetch workers
	resultWG := &sync.WaitGroup{}
	resultWG.Add(1)
	go processResults(resultWG, results, outputter, bar, logger)

	if err := jobCreator.CreateJobs(jobs); err != nil {
		logger.WithError(err).Warn("Stopped queueing tiles")
	}

	close(jobs)
	logger.Debug("Job queue closed")

	// When the workers are done, close the results channel
	workerWG.Wait()
	close(results)
	logger.Debug("Finished making tile requests")

	// Wait for the results to be written out
	resultWG.Wait()

	if mb, ok := outputter.(*tilepack.MbtilesOutputter); ok {
		if err := mb.WriteMetadata(metadata); err != nil {
			logger.Errorf("Couldn't write metadata: %+v", err)
		}
	}
	if err := outputter.Close(); err != nil {
		logger.Fatalf("Error closing %s output: %+v", *outputMode, err)
	}
	logger.Info("Finished processing tiles")
}
