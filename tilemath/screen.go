package tilemath

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Screen is the viewport: a world-space center and a pixel size. World
// space is the unit square covering the whole pyramid, y pointing south.
type Screen struct {
	Center   orb.Point
	Width    float64
	Height   float64
	TileSize float64
}

// WorldPoint projects a lon/lat point into world space.
func WorldPoint(ll orb.Point) orb.Point {
	return maptile.Fraction(ll, 0)
}

// EffectiveZoom truncates a fractional zoom and clamps it to [0, MaxZoom].
func EffectiveZoom(zoom float64) uint32 {
	if zoom <= 0 {
		return 0
	}
	z := math.Floor(zoom)
	if z > MaxZoom {
		return MaxZoom
	}
	return uint32(z)
}

// pixelsPerWorld is the pixel length of one world unit at zoom.
func (s Screen) pixelsPerWorld(zoom float64) float64 {
	return math.Exp2(zoom) * s.TileSize
}

// Field returns the tiles intersecting the viewport at zoom. padding
// scales the viewport around its center before intersecting, so values
// above 1 prefetch a ring of tiles outside the visible area.
func (s Screen) Field(zoom, padding float64) TileField {
	z := EffectiveZoom(zoom)
	if padding <= 0 {
		padding = 1
	}

	ppw := s.pixelsPerWorld(zoom)
	halfW := s.Width / 2 * padding / ppw
	halfH := s.Height / 2 * padding / ppw

	n := float64(uint64(1) << z)
	clamp := func(v float64) uint32 {
		v = math.Floor(v * n)
		if v < 0 {
			return 0
		}
		if v > n-1 {
			return uint32(n - 1)
		}
		return uint32(v)
	}

	return TileField{
		TopLeft:     TileID{Z: z, X: clamp(s.Center[0] - halfW), Y: clamp(s.Center[1] - halfH)},
		BottomRight: TileID{Z: z, X: clamp(s.Center[0] + halfW), Y: clamp(s.Center[1] + halfH)},
	}
}

// GlobalToScreen maps world space into normalized device coordinates,
// with the screen center at the origin and y pointing up.
func (s Screen) GlobalToScreen(zoom float64) Affine {
	ppw := s.pixelsPerWorld(zoom)
	sx := ppw / (s.Width / 2)
	sy := -ppw / (s.Height / 2)
	return Scale(sx, sy).Multiply(Translate(-s.Center[0], -s.Center[1]))
}

// TileTransform maps the tile-local unit square of id into normalized
// device coordinates: scale by 2^-z, move to the tile's x/y, then apply
// GlobalToScreen.
func (s Screen) TileTransform(id TileID, zoom float64) Affine {
	scale := 1 / float64(uint64(1)<<id.Z)
	local := Translate(float64(id.X)*scale, float64(id.Y)*scale).Multiply(Scale(scale, scale))
	return s.GlobalToScreen(zoom).Multiply(local)
}

// ScreenToGlobal converts a pixel position (origin top-left) into world
// space.
func (s Screen) ScreenToGlobal(zoom float64, px, py float64) orb.Point {
	ppw := s.pixelsPerWorld(zoom)
	return orb.Point{
		s.Center[0] + (px-s.Width/2)/ppw,
		s.Center[1] + (py-s.Height/2)/ppw,
	}
}

// TileLocal converts a world-space point into the local coordinates of id
// scaled to extent, the space tile geometry is decoded in.
func TileLocal(id TileID, p orb.Point, extent uint32) orb.Point {
	n := float64(uint64(1) << id.Z)
	e := float64(extent)
	return orb.Point{
		(p[0]*n - float64(id.X)) * e,
		(p[1]*n - float64(id.Y)) * e,
	}
}

// TileWorld is the inverse of TileLocal.
func TileWorld(id TileID, local orb.Point, extent uint32) orb.Point {
	n := float64(uint64(1) << id.Z)
	e := float64(extent)
	return orb.Point{
		(local[0]/e + float64(id.X)) / n,
		(local[1]/e + float64(id.Y)) / n,
	}
}

// LonLat is the inverse of WorldPoint.
func LonLat(world orb.Point) orb.Point {
	lon := world[0]*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*world[1]))) * 180 / math.Pi
	return orb.Point{lon, lat}
}
