package tilepack

import (
	"github.com/paulmach/orb"

	"github.com/tilezen/go-tilemesh/geometry"
	"github.com/tilezen/go-tilemesh/hittest"
	"github.com/tilezen/go-tilemesh/mesh"
	"github.com/tilezen/go-tilemesh/style"
	"github.com/tilezen/go-tilemesh/tilemath"
)

type ObjectType uint8

const (
	ObjectPoint ObjectType = iota
	ObjectLine
	ObjectPolygon
)

func (t ObjectType) String() string {
	switch t {
	case ObjectLine:
		return "line"
	case ObjectPolygon:
		return "polygon"
	}
	return "point"
}

// Object is one decoded geographic feature instance. Paths are in tile
// local coordinates scaled to the tile extent. Tags holds the tags that
// did not become part of the selector.
type Object struct {
	Selector  style.Selector
	FeatureID uint32
	ID        uint64
	Type      ObjectType
	Paths     []geometry.Path
	Tags      map[string]string
}

// Points returns every point of the object in path order.
func (o *Object) Points() []orb.Point {
	var n int
	for _, p := range o.Paths {
		n += len(p)
	}
	out := make([]orb.Point, 0, n)
	for _, p := range o.Paths {
		out = append(out, p...)
	}
	return out
}

// FeatureRange is the part of a tile's index buffer drawn with one feature.
type FeatureRange struct {
	FeatureID uint32
	Range     mesh.Range
}

// Tile is a decoded, meshed tile. It is not modified after Decode returns.
type Tile struct {
	ID            tilemath.TileID
	Mesh          mesh.Mesh
	Extent        uint32
	Objects       []Object
	FeatureRanges []FeatureRange
	HitTester     *hittest.Tester
}

// HitTest returns the indices into Objects of the objects containing p,
// given in tile local coordinates. Any point within the tile hits the
// background, object 0.
func (t *Tile) HitTest(p orb.Point) []int {
	if t.HitTester == nil {
		return nil
	}
	return t.HitTester.HitTest(p)
}

// ObjectsAt is HitTest resolved to the objects themselves.
func (t *Tile) ObjectsAt(p orb.Point) []*Object {
	idx := t.HitTest(p)
	out := make([]*Object, len(idx))
	for i, j := range idx {
		out[i] = &t.Objects[j]
	}
	return out
}
