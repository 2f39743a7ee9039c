package tilepack

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/tilezen/go-tilemesh/tilemath"
)

const webMercatorLatLimit float64 = 85.05112877980659

// CoverBounds returns, for every zoom, the fields of tiles covering a
// lon/lat bound. A bound whose Min.X is east of its Max.X crosses the
// antimeridian and is split in two. Latitudes are clamped to the web
// mercator limits.
func CoverBounds(bounds orb.Bound, zooms []maptile.Zoom) []tilemath.TileField {
	var boxes []orb.Bound
	if bounds.Min.X() > bounds.Max.X() {
		boxes = []orb.Bound{
			{
				Min: orb.Point{-180.0, bounds.Min.Y()},
				Max: bounds.Max,
			},
			{
				Min: bounds.Min,
				Max: orb.Point{180.0, bounds.Max.Y()},
			},
		}
	} else {
		boxes = []orb.Bound{bounds}
	}

	var fields []tilemath.TileField
	for _, box := range boxes {
		// Clamp the individual boxes to web mercator limits
		clampedBox := orb.Bound{
			Min: orb.Point{
				math.Max(-180.0, box.Min.X()),
				math.Max(-webMercatorLatLimit, box.Min.Y()),
			},
			Max: orb.Point{
				math.Min(180.0-0.00000001, box.Max.X()),
				math.Min(webMercatorLatLimit, box.Max.Y()),
			},
		}

		for _, z := range zooms {
			minTile := maptile.At(clampedBox.Min, z)
			maxTile := maptile.At(clampedBox.Max, z)

			// NewTileField puts the smaller y first; tile y grows southwards
			field, _ := tilemath.NewTileField(tilemath.FromMaptile(minTile), tilemath.FromMaptile(maxTile))
			fields = append(fields, field)
		}
	}
	return fields
}

// CountTiles is the number of tiles CoverBounds would produce.
func CountTiles(bounds orb.Bound, zooms []maptile.Zoom) int {
	n := 0
	for _, f := range CoverBounds(bounds, zooms) {
		n += f.Len()
	}
	return n
}
