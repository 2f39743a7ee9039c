package http

import (
	"encoding/json"
	gohttp "net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/feature"
	"github.com/tilezen/go-tilemesh/geometry"
	"github.com/tilezen/go-tilemesh/tilecache"
	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

// TileCache is the part of tilecache.Cache the hit test handler uses.
type TileCache interface {
	RequestTile(id tilemath.TileID, features *feature.Collection, selectionTags []string) bool
	FinalizeLoadedTiles() int
	TryGetTile(id tilemath.TileID) (*tilecache.Handle, bool)
}

type HitTestOptions struct {
	Cache         TileCache
	Features      *feature.Collection
	SelectionTags []string
	Logger        logrus.FieldLogger
}

func parseLonLat(r *gohttp.Request) (uint32, orb.Point, error) {
	z, err := strconv.ParseUint(r.URL.Query().Get("z"), 10, 32)
	if err != nil || z > tilemath.MaxZoom {
		return 0, orb.Point{}, errors.New("z must be a zoom level")
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, orb.Point{}, errors.New("lon must be a longitude")
	}
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil || lat < -85.0511 || lat > 85.0511 {
		return 0, orb.Point{}, errors.New("lat must be a web mercator latitude")
	}
	return uint32(z), orb.Point{lon, lat}, nil
}

// HitTestHandler reports the objects under ?z=&lon=&lat= as a GeoJSON
// feature collection. The synthetic background is left out. A tile that is not cached yet is requested and the
// handler answers 503 with Retry-After until it is loaded.
func HitTestHandler(opts HitTestOptions) gohttp.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(w gohttp.ResponseWriter, r *gohttp.Request) {
		z, ll, err := parseLonLat(r)
		if err != nil {
			gohttp.Error(w, err.Error(), gohttp.StatusBadRequest)
			return
		}
		id := tilemath.FromMaptile(maptile.At(ll, maptile.Zoom(z)))

		opts.Cache.FinalizeLoadedTiles()
		h, ok := opts.Cache.TryGetTile(id)
		if !ok {
			opts.Cache.RequestTile(id, opts.Features, opts.SelectionTags)
			w.Header().Set("Retry-After", "1")
			gohttp.Error(w, "tile "+id.String()+" is loading", gohttp.StatusServiceUnavailable)
			return
		}

		fc := geojson.NewFeatureCollection()
		h.Read(func(tile *tilepack.Tile) {
			local := tilemath.TileLocal(id, tilemath.WorldPoint(ll), tile.Extent)
			for _, o := range tile.ObjectsAt(local) {
				if o.Selector.Type == tilepack.BackgroundType {
					continue
				}
				fc.Append(objectFeature(tile, o))
			}
		})

		data, err := json.Marshal(fc)
		if err != nil {
			logger.WithError(err).WithField("tile", id.String()).Error("Couldn't encode hit test")
			gohttp.Error(w, "encoding failed", gohttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write(data)
	}
}

func objectFeature(tile *tilepack.Tile, o *tilepack.Object) *geojson.Feature {
	f := geojson.NewFeature(objectGeometry(tile, o))
	f.ID = o.ID
	f.Properties["selector"] = o.Selector.String()
	f.Properties["type"] = o.Type.String()
	f.Properties["feature_id"] = o.FeatureID
	f.Properties["tile"] = tile.ID.String()
	for k, v := range o.Tags {
		f.Properties[k] = v
	}
	return f
}

func objectGeometry(tile *tilepack.Tile, o *tilepack.Object) orb.Geometry {
	ring := func(p geometry.Path) []orb.Point {
		out := make([]orb.Point, len(p))
		for i, pt := range p {
			out[i] = tilemath.LonLat(tilemath.TileWorld(tile.ID, pt, tile.Extent))
		}
		return out
	}

	switch o.Type {
	case tilepack.ObjectPolygon:
		poly := make(orb.Polygon, len(o.Paths))
		for i, p := range o.Paths {
			poly[i] = orb.Ring(ring(p))
		}
		return poly
	case tilepack.ObjectLine:
		if len(o.Paths) == 1 {
			return orb.LineString(ring(o.Paths[0]))
		}
		ml := make(orb.MultiLineString, len(o.Paths))
		for i, p := range o.Paths {
			ml[i] = orb.LineString(ring(p))
		}
		return ml
	}

	pts := ring(o.Points())
	if len(pts) == 1 {
		return pts[0]
	}
	return orb.MultiPoint(pts)
}
