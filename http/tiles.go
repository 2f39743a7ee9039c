// Package http serves tiles and hit tests over HTTP.
package http

import (
	gohttp "net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

// parseTileFromRequest reads the z, x and y route parameters.
func parseTileFromRequest(r *gohttp.Request) (tilemath.TileID, error) {
	var vals [3]uint32
	for i, name := range []string{"z", "x", "y"} {
		v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
		if err != nil {
			return tilemath.TileID{}, errors.Wrapf(err, "invalid tile %s", name)
		}
		vals[i] = uint32(v)
	}

	id := tilemath.NewTileID(vals[0], vals[1], vals[2])
	if !id.Valid() {
		return tilemath.TileID{}, errors.Newf("tile %s is outside the pyramid", id)
	}
	return id, nil
}

// TileHandler serves raw tiles from src. Mount it on a route with z, x
// and y parameters, such as /tiles/{z}/{x}/{y}.pbf.
func TileHandler(src tilepack.Source, logger logrus.FieldLogger) gohttp.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(w gohttp.ResponseWriter, r *gohttp.Request) {
		id, err := parseTileFromRequest(r)
		if err != nil {
			gohttp.NotFound(w, r)
			return
		}

		data, err := src.Fetch(r.Context(), id)
		if errors.Is(err, tilepack.ErrTileNotFound) {
			gohttp.NotFound(w, r)
			return
		}
		if err != nil {
			logger.WithError(err).WithField("tile", id.String()).Warn("Error getting tile")
			gohttp.Error(w, "tile unavailable", gohttp.StatusBadGateway)
			return
		}

		if tilepack.IsGzipped(data) {
			if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				w.Header().Set("Content-Encoding", "gzip")
			} else if data, err = tilepack.Gunzip(data); err != nil {
				logger.WithError(err).WithField("tile", id.String()).Warn("Couldn't inflate tile")
				gohttp.Error(w, "tile unavailable", gohttp.StatusBadGateway)
				return
			}
		}

		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(data)
	}
}
