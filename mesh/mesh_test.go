package mesh

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tilezen/go-tilemesh/geometry"
)

func ring(pts ...orb.Point) geometry.Path {
	return append(geometry.Path(pts), pts[0])
}

func reversed(p geometry.Path) geometry.Path {
	out := make(geometry.Path, len(p))
	for i := range p {
		out[len(p)-1-i] = p[i]
	}
	return out
}

func triangleArea(points []orb.Point, indices []uint32) (float64, bool) {
	var total float64
	ccw := true
	for i := 0; i+2 < len(indices); i += 3 {
		a := orient(points[indices[i]], points[indices[i+1]], points[indices[i+2]])
		if a < 0 {
			ccw = false
		}
		total += math.Abs(a) / 2
	}
	return total, ccw
}

func TestTriangulate(t *testing.T) {
	square := ring(orb.Point{0, 0}, orb.Point{10, 0}, orb.Point{10, 10}, orb.Point{0, 10})
	hole := ring(orb.Point{3, 3}, orb.Point{3, 7}, orb.Point{7, 7}, orb.Point{7, 3})
	lShape := ring(
		orb.Point{0, 0}, orb.Point{20, 0}, orb.Point{20, 10},
		orb.Point{10, 10}, orb.Point{10, 20}, orb.Point{0, 20},
	)
	second := ring(orb.Point{20, 20}, orb.Point{30, 20}, orb.Point{30, 30}, orb.Point{20, 30})

	tests := []struct {
		name      string
		rings     []geometry.Path
		triangles int // -1 skips the count check
		area      float64
	}{
		{"square", []geometry.Path{square}, 2, 100},
		{"square reversed", []geometry.Path{reversed(square)}, 2, 100},
		{"square with hole", []geometry.Path{square, hole}, -1, 84},
		{"square with hole reversed", []geometry.Path{reversed(square), reversed(hole)}, -1, 84},
		{"concave", []geometry.Path{lShape}, 4, 300},
		{"two exteriors", []geometry.Path{square, second}, 4, 200},
		{"degenerate", []geometry.Path{ring(orb.Point{0, 0}, orb.Point{5, 0}, orb.Point{10, 0})}, 0, 0},
		{"empty", nil, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, indices := Triangulate(tt.rings)
			if len(indices)%3 != 0 {
				t.Fatalf("index count %d is not a multiple of 3", len(indices))
			}
			for _, i := range indices {
				if int(i) >= len(points) {
					t.Fatalf("index %d out of range of %d points", i, len(points))
				}
			}
			if got := len(indices) / 3; tt.triangles >= 0 && got != tt.triangles {
				t.Errorf("triangles = %d, want %d", got, tt.triangles)
			}
			area, ccw := triangleArea(points, indices)
			if math.Abs(area-tt.area) > 1e-9 {
				t.Errorf("area = %v, want %v", area, tt.area)
			}
			if !ccw {
				t.Error("triangle with clockwise winding")
			}
		})
	}
}

func TestMesh_AddPolygon(t *testing.T) {
	var m Mesh
	m.AddPolygon([]geometry.Path{ring(orb.Point{0, 0}, orb.Point{4, 0}, orb.Point{4, 4}, orb.Point{0, 4})}, 7, 4096)
	start := m.IndexCount()
	m.AddPolygon([]geometry.Path{ring(orb.Point{8, 8}, orb.Point{9, 8}, orb.Point{9, 9})}, 8, 4096)

	if start != 6 || m.IndexCount() != 9 {
		t.Fatalf("index counts %d, %d", start, m.IndexCount())
	}
	for _, i := range m.Indices[start:] {
		if m.Vertices[i].FeatureID != 8 {
			t.Errorf("second polygon references vertex of feature %d", m.Vertices[i].FeatureID)
		}
	}
	for _, v := range m.Vertices {
		if v.Normal != [2]float32{} || v.Extent != 4096 {
			t.Errorf("fill vertex %+v", v)
		}
	}
}

func TestLineScale(t *testing.T) {
	tests := map[uint32]float32{14: 1, 13: 0.5, 15: 2, 12: 0.25}
	for zoom, want := range tests {
		if got := LineScale(zoom); got != want {
			t.Errorf("LineScale(%d) = %v, want %v", zoom, got, want)
		}
	}
}

func TestMesh_AddLine(t *testing.T) {
	tests := []struct {
		name     string
		path     geometry.Path
		zoom     uint32
		vertices int
		normals  [][2]float32
	}{
		{
			name:     "straight",
			path:     geometry.Path{{0, 0}, {10, 0}, {20, 0}},
			zoom:     14,
			vertices: 6,
			normals:  [][2]float32{{0, 1}, {0, 1}, {0, 1}},
		},
		{
			name:     "straight half scale",
			path:     geometry.Path{{0, 0}, {10, 0}, {20, 0}},
			zoom:     13,
			vertices: 6,
			normals:  [][2]float32{{0, 0.5}, {0, 0.5}, {0, 0.5}},
		},
		{
			name:     "right angle",
			path:     geometry.Path{{0, 0}, {10, 0}, {10, 10}},
			zoom:     14,
			vertices: 6,
			normals:  [][2]float32{{0, 1}, {-1, 1}, {-1, 0}},
		},
		{
			name:     "repeated points",
			path:     geometry.Path{{0, 0}, {0, 0}, {5, 0}},
			zoom:     14,
			vertices: 4,
			normals:  [][2]float32{{0, 1}, {0, 1}},
		},
		{
			name:     "single point",
			path:     geometry.Path{{3, 3}, {3, 3}},
			zoom:     14,
			vertices: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Mesh
			m.AddLine(tt.path, 3, 4096, tt.zoom)

			if len(m.Vertices) != tt.vertices {
				t.Fatalf("vertices = %d, want %d", len(m.Vertices), tt.vertices)
			}
			points := tt.vertices / 2
			if want := 6 * max(points-1, 0); len(m.Indices) != want {
				t.Errorf("indices = %d, want %d", len(m.Indices), want)
			}
			for i, want := range tt.normals {
				left, right := m.Vertices[2*i], m.Vertices[2*i+1]
				if !near(left.Normal, want) {
					t.Errorf("point %d normal = %v, want %v", i, left.Normal, want)
				}
				if !near(right.Normal, [2]float32{-want[0], -want[1]}) {
					t.Errorf("point %d opposite normal = %v", i, right.Normal)
				}
				if left.Position != right.Position || left.FeatureID != 3 {
					t.Errorf("point %d vertices %+v %+v", i, left, right)
				}
			}
		})
	}
}

func TestMesh_AddLineMiterLimit(t *testing.T) {
	var m Mesh
	// a hairpin turn would need an unbounded miter
	m.AddLine(geometry.Path{{0, 0}, {10, 0}, {0, 0.01}}, 0, 4096, 14)

	n := m.Vertices[2].Normal
	if l := math.Hypot(float64(n[0]), float64(n[1])); l > maxMiter+1e-6 {
		t.Errorf("miter length %v exceeds %v", l, maxMiter)
	}
}

func near(a, b [2]float32) bool {
	return math.Abs(float64(a[0]-b[0])) < 1e-5 && math.Abs(float64(a[1]-b[1])) < 1e-5
}
