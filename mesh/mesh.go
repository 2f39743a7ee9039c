// Package mesh turns decoded tile geometry into indexed triangle lists.
package mesh

import (
	"math"

	"github.com/tilezen/go-tilemesh/geometry"
)

// Vertex is one mesh vertex. Position is in tile-local extent units.
// Normal is the extrusion direction of line vertices, already scaled for
// the tile zoom; the renderer multiplies it by the resolved line width.
// Fill vertices have a zero normal.
type Vertex struct {
	Position  [2]float32
	Normal    [2]float32
	FeatureID uint32
	Extent    uint32
}

// Range is a half-open range of indices.
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) Len() uint32 {
	return r.End - r.Start
}

func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Mesh is a vertex and triangle index buffer.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// IndexCount is the current end of the index buffer, used to bracket the
// ranges of individual features.
func (m *Mesh) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

// AddPolygon fills rings with triangles. Rings may come in either winding;
// rings wound against the first ring are holes of the ring before them.
func (m *Mesh) AddPolygon(rings []geometry.Path, featureID, extent uint32) {
	points, indices := Triangulate(rings)
	if len(indices) == 0 {
		return
	}

	base := uint32(len(m.Vertices))
	for _, p := range points {
		m.Vertices = append(m.Vertices, Vertex{
			Position:  [2]float32{float32(p[0]), float32(p[1])},
			FeatureID: featureID,
			Extent:    extent,
		})
	}
	for _, i := range indices {
		m.Indices = append(m.Indices, base+i)
	}
}

// LineScale is the factor line extrusion is scaled by at zoom, 2^(zoom-14).
func LineScale(zoom uint32) float32 {
	return float32(math.Exp2(float64(zoom) - 14))
}
