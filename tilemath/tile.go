// Package tilemath addresses tiles in the web mercator tile pyramid and
// converts viewport state into the set of tiles that cover it.
package tilemath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level tiles are requested at.
const MaxZoom = 14

// ErrZoomMismatch is returned by arithmetic between ids of different zooms.
var ErrZoomMismatch = errors.New("tile ids are not at the same zoom")

// TileID is a z/x/y address in the tile pyramid.
type TileID struct {
	Z uint32
	X uint32
	Y uint32
}

func NewTileID(z, x, y uint32) TileID {
	return TileID{Z: z, X: x, Y: y}
}

// FromMaptile converts an orb maptile into a TileID.
func FromMaptile(t maptile.Tile) TileID {
	return TileID{Z: uint32(t.Z), X: t.X, Y: t.Y}
}

// ParseTileID parses the z/x/y form produced by String.
func ParseTileID(s string) (TileID, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 3 {
		return TileID{}, errors.Newf("invalid tile id %q", s)
	}

	var vals [3]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return TileID{}, errors.Wrapf(err, "invalid tile id %q", s)
		}
		vals[i] = uint32(v)
	}

	id := TileID{Z: vals[0], X: vals[1], Y: vals[2]}
	if !id.Valid() {
		return TileID{}, errors.Newf("tile id %s is outside the pyramid", id)
	}
	return id, nil
}

func (t TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Valid reports whether x and y are inside the grid for zoom z.
func (t TileID) Valid() bool {
	if t.Z >= 32 {
		return false
	}
	n := uint64(1) << t.Z
	return uint64(t.X) < n && uint64(t.Y) < n
}

// Compare orders ids lexicographically by (z, x, y).
func (t TileID) Compare(o TileID) int {
	switch {
	case t.Z != o.Z:
		return cmpUint32(t.Z, o.Z)
	case t.X != o.X:
		return cmpUint32(t.X, o.X)
	default:
		return cmpUint32(t.Y, o.Y)
	}
}

func (t TileID) Less(o TileID) bool {
	return t.Compare(o) < 0
}

// Add offsets t by the x/y of o. Both ids must share a zoom.
func (t TileID) Add(o TileID) (TileID, error) {
	if t.Z != o.Z {
		return TileID{}, errors.Wrapf(ErrZoomMismatch, "%s + %s", t, o)
	}
	return TileID{Z: t.Z, X: t.X + o.X, Y: t.Y + o.Y}, nil
}

// Sub subtracts the x/y of o from t. Both ids must share a zoom and o must
// not exceed t on either axis.
func (t TileID) Sub(o TileID) (TileID, error) {
	if t.Z != o.Z {
		return TileID{}, errors.Wrapf(ErrZoomMismatch, "%s - %s", t, o)
	}
	if o.X > t.X || o.Y > t.Y {
		return TileID{}, errors.Newf("%s - %s underflows", t, o)
	}
	return TileID{Z: t.Z, X: t.X - o.X, Y: t.Y - o.Y}, nil
}

// Parent returns the tile one zoom level up. The root is its own parent.
func (t TileID) Parent() TileID {
	if t.Z == 0 {
		return t
	}
	return TileID{Z: t.Z - 1, X: t.X >> 1, Y: t.Y >> 1}
}

// Children returns the four tiles one zoom level down in row-major order.
func (t TileID) Children() [4]TileID {
	z, x, y := t.Z+1, t.X<<1, t.Y<<1
	return [4]TileID{
		{Z: z, X: x, Y: y},
		{Z: z, X: x + 1, Y: y},
		{Z: z, X: x, Y: y + 1},
		{Z: z, X: x + 1, Y: y + 1},
	}
}

func (t TileID) Maptile() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}

// Bound is the lon/lat bound of the tile.
func (t TileID) Bound() orb.Bound {
	return t.Maptile().Bound()
}

// WorldBound is the bound of the tile in world space, where the whole
// pyramid spans the unit square with y growing southward.
func (t TileID) WorldBound() orb.Bound {
	scale := 1 / float64(uint64(1)<<t.Z)
	return orb.Bound{
		Min: orb.Point{float64(t.X) * scale, float64(t.Y) * scale},
		Max: orb.Point{float64(t.X+1) * scale, float64(t.Y+1) * scale},
	}
}

func cmpUint32(a, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
