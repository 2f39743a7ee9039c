package http

import (
	gohttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilepack"
)

type RouterOptions struct {
	Source  tilepack.Source
	HitTest HitTestOptions
	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

type statusWriter struct {
	gohttp.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger logrus.FieldLogger) func(gohttp.Handler) gohttp.Handler {
	return func(next gohttp.Handler) gohttp.Handler {
		return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: gohttp.StatusOK}
			next.ServeHTTP(sw, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sw.status,
				"duration": time.Since(start),
			}).Debug("Handled request")
		})
	}
}

// NewRouter mounts the tile, hit test, feature and metrics endpoints.
func NewRouter(opts RouterOptions) gohttp.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.HitTest.Logger == nil {
		opts.HitTest.Logger = logger
	}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	if opts.Source != nil {
		r.Get("/tiles/{z}/{x}/{y}.pbf", TileHandler(opts.Source, logger))
	}
	if opts.HitTest.Cache != nil {
		r.Get("/hit", HitTestHandler(opts.HitTest))
	}
	if opts.HitTest.Features != nil {
		r.Get("/features", FeaturesHandler(opts.HitTest.Features))
	}
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
