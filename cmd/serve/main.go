// Command serve exposes a tile source over HTTP together with hit tests
// against the decoded tiles. SIGHUP reloads the stylesheet.
package main

import (
	"context"
	"flag"
	gohttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/config"
	"github.com/tilezen/go-tilemesh/feature"
	"github.com/tilezen/go-tilemesh/http"
	"github.com/tilezen/go-tilemesh/logging"
	"github.com/tilezen/go-tilemesh/style"
	"github.com/tilezen/go-tilemesh/tilecache"
	"github.com/tilezen/go-tilemesh/tilemath"
)

// parseCenter reads a lon,lat string.
func parseCenter(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, errors.Newf("center %q must be lon,lat", s)
	}
	var p orb.Point
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Point{}, errors.Wrapf(err, "parsing center %q", s)
		}
		p[i] = v
	}
	return p, nil
}

func loadStyles(rules *style.RulesCache, features *feature.Collection, zoom float64, logger logrus.FieldLogger) {
	if err := rules.Reload(); err != nil {
		logger.WithError(err).Warn("Keeping previous stylesheet")
		return
	}
	features.LoadStyles(zoom, rules)
	logger.WithFields(logrus.Fields{"rules": rules.Len(), "features": features.Len()}).Info("Loaded stylesheet")
}

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file.")
	addr := flag.String("listen", "", "The address and port to listen on. Overrides server.listen.")
	zoom := flag.Float64("zoom", 14, "Zoom the stylesheet is resolved at.")
	center := flag.String("center", "", "Optional lon,lat; the screen around it is loaded at startup.")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Couldn't load config: %+v", err)
	}
	if *addr != "" {
		cfg.Server.Listen = *addr
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Dir: cfg.Log.Dir, Terminal: cfg.Log.Terminal})
	if err != nil {
		logrus.Fatalf("Couldn't set up logging: %+v", err)
	}

	src, closer, err := cfg.OpenSource(logger)
	if err != nil {
		logger.Fatalf("Couldn't open %s source: %+v", cfg.Source.Kind, err)
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	cache, err := tilecache.New(tilecache.Options{
		Source:     src,
		MaxLoaders: cfg.Cache.MaxLoaders,
		Logger:     logger,
		Metrics:    tilecache.NewMetrics(reg),
	})
	if err != nil {
		logger.Fatalf("%+v", err)
	}

	features := feature.NewCollection(cfg.Cache.Features, logger)
	rules := style.NewRulesCache(logger)
	if cfg.Style.Path != "" {
		if err := rules.LoadFile(cfg.Style.Path); err != nil {
			logger.Fatalf("Couldn't load stylesheet: %+v", err)
		}
	}
	features.LoadStyles(*zoom, rules)

	if *center != "" {
		ll, err := parseCenter(*center)
		if err != nil {
			logger.Fatalf("%+v", err)
		}
		screen := tilemath.Screen{
			Center:   tilemath.WorldPoint(ll),
			Width:    cfg.Screen.Width,
			Height:   cfg.Screen.Height,
			TileSize: cfg.Screen.TileSize,
		}
		field := screen.Field(*zoom, cfg.Screen.Padding)
		n := cache.RequestField(field, features, cfg.Style.SelectionTags)
		logger.WithField("field", field.String()).Infof("Loading %d tiles", n)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if cfg.Style.Path == "" {
				continue
			}
			loadStyles(rules, features, *zoom, logger)
		}
	}()

	server := &gohttp.Server{
		Addr: cfg.Server.Listen,
		Handler: http.NewRouter(http.RouterOptions{
			Source: src,
			HitTest: http.HitTestOptions{
				Cache:         cache,
				Features:      features,
				SelectionTags: cfg.Style.SelectionTags,
			},
			Gatherer: reg,
			Logger:   logger,
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdown)
	}()

	logger.Infof("Listening on %s", cfg.Server.Listen)
	if err := server.ListenAndServe(); err != nil && err != gohttp.ErrServerClosed {
		logger.Fatalf("Could not listen on %s: %v", cfg.Server.Listen, err)
	}
}
