package mesh

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/tilezen/go-tilemesh/geometry"
)

// maxMiter caps how far a sharp join is extruded, in line widths.
const maxMiter = 4.0

type vec [2]float64

func sub(a, b orb.Point) vec         { return vec{a[0] - b[0], a[1] - b[1]} }
func (v vec) add(o vec) vec          { return vec{v[0] + o[0], v[1] + o[1]} }
func (v vec) scale(s float64) vec    { return vec{v[0] * s, v[1] * s} }
func (v vec) dot(o vec) float64      { return v[0]*o[0] + v[1]*o[1] }
func (v vec) cross(o vec) float64    { return v[0]*o[1] - v[1]*o[0] }
func (v vec) perp() vec              { return vec{-v[1], v[0]} }
func (v vec) length() float64        { return math.Hypot(v[0], v[1]) }
func (v vec) normalize() (vec, bool) { return v.div(v.length()) }

func (v vec) div(l float64) (vec, bool) {
	if l < 1e-12 {
		return vec{}, false
	}
	return vec{v[0] / l, v[1] / l}, true
}

// AddLine expands path into a ribbon of two vertices per point. Interior
// points get the normal of the bisector of their two segments, lengthened
// so the ribbon keeps its width through the join. Normals are scaled by
// LineScale(zoom).
func (m *Mesh) AddLine(path geometry.Path, featureID, extent, zoom uint32) {
	pts := dedupe(path)
	if len(pts) < 2 {
		return
	}

	scale := float64(LineScale(zoom))
	base := uint32(len(m.Vertices))
	n := len(pts)

	for i := 0; i < n; i++ {
		normal := lineNormal(pts, i).scale(scale)
		pos := [2]float32{float32(pts[i][0]), float32(pts[i][1])}
		m.Vertices = append(m.Vertices,
			Vertex{Position: pos, Normal: [2]float32{float32(normal[0]), float32(normal[1])}, FeatureID: featureID, Extent: extent},
			Vertex{Position: pos, Normal: [2]float32{float32(-normal[0]), float32(-normal[1])}, FeatureID: featureID, Extent: extent},
		)
	}

	for i := uint32(0); i < uint32(n-1); i++ {
		a := base + 2*i
		m.Indices = append(m.Indices,
			a, a+1, a+2,
			a+1, a+3, a+2,
		)
	}
}

// lineNormal returns the unit-width extrusion vector at point i.
func lineNormal(pts []orb.Point, i int) vec {
	n := len(pts)
	switch i {
	case 0:
		d, _ := sub(pts[1], pts[0]).normalize()
		return d.perp()
	case n - 1:
		d, _ := sub(pts[n-1], pts[n-2]).normalize()
		return d.perp()
	}

	in, _ := sub(pts[i], pts[i-1]).normalize()
	out, _ := sub(pts[i+1], pts[i]).normalize()

	tangent, ok := in.add(out).normalize()
	if !ok {
		// the line doubles back on itself
		return in.perp()
	}
	normal := tangent.perp()

	// keep the normal on the left of the incoming segment
	if in.cross(normal) < 0 {
		normal = normal.scale(-1)
	}

	cos := normal.dot(in.perp())
	if cos < 1/maxMiter {
		cos = 1 / maxMiter
	}
	return normal.scale(1 / cos)
}

func dedupe(path geometry.Path) []orb.Point {
	out := make([]orb.Point, 0, len(path))
	for _, p := range path {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}
