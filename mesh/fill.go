package mesh

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/tilezen/go-tilemesh/geometry"
)

// Triangulate fills polygon rings by ear clipping. Holes are bridged into
// their outer ring first so every polygon is clipped as a single ring.
// The first ring sets the exterior winding; every later ring with the
// opposite winding is a hole of the closest preceding exterior. Rings
// with fewer than three distinct points or no area are skipped.
// Triangles are returned counter-clockwise in a y-up frame.
func Triangulate(rings []geometry.Path) ([]orb.Point, []uint32) {
	var (
		points  []orb.Point
		indices []uint32
	)
	for _, poly := range groupRings(rings) {
		pts, ring := bridgeHoles(poly)
		base := uint32(len(points))
		points = append(points, pts...)
		for _, i := range earClip(pts, ring) {
			indices = append(indices, base+i)
		}
	}
	return points, indices
}

type polygon struct {
	outer []orb.Point
	holes [][]orb.Point
}

func groupRings(rings []geometry.Path) []polygon {
	var (
		out          []polygon
		exteriorSign float64
	)
	for _, r := range rings {
		pts := cleanRing(r)
		if len(pts) < 3 {
			continue
		}
		area := geometry.Path(pts).SignedArea()
		if area == 0 {
			continue
		}

		if len(out) == 0 || (area > 0) == (exteriorSign > 0) {
			if len(out) == 0 {
				exteriorSign = area
			}
			if area < 0 {
				reverse(pts)
			}
			out = append(out, polygon{outer: pts})
			continue
		}

		if area > 0 {
			reverse(pts)
		}
		last := &out[len(out)-1]
		last.holes = append(last.holes, pts)
	}
	return out
}

// cleanRing drops repeated points including the closing point.
func cleanRing(r geometry.Path) []orb.Point {
	out := make([]orb.Point, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

func reverse(pts []orb.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

// orient is twice the signed area of abc, positive when abc turns left.
func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

type hole struct {
	idx   []int
	right int // position in idx of the rightmost vertex
}

// bridgeHoles flattens a polygon into one point list and a single ring of
// indices into it, with each hole spliced in through a two-way bridge.
func bridgeHoles(poly polygon) ([]orb.Point, []int) {
	pts := append([]orb.Point(nil), poly.outer...)
	ring := make([]int, len(poly.outer))
	for i := range ring {
		ring[i] = i
	}

	holes := make([]hole, 0, len(poly.holes))
	for _, h := range poly.holes {
		hl := hole{idx: make([]int, len(h))}
		for i, p := range h {
			hl.idx[i] = len(pts)
			pts = append(pts, p)
			rp := pts[hl.idx[hl.right]]
			if p[0] > rp[0] || (p[0] == rp[0] && p[1] < rp[1]) {
				hl.right = i
			}
		}
		holes = append(holes, hl)
	}

	sort.SliceStable(holes, func(i, j int) bool {
		return pts[holes[i].idx[holes[i].right]][0] > pts[holes[j].idx[holes[j].right]][0]
	})

	for k, h := range holes {
		ring = mergeHole(pts, ring, h, holes[k+1:])
	}
	return pts, ring
}

func mergeHole(pts []orb.Point, ring []int, h hole, rest []hole) []int {
	m := pts[h.idx[h.right]]

	candidates := make([]int, len(ring))
	for i := range candidates {
		candidates[i] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return dist2(pts[ring[candidates[i]]], m) < dist2(pts[ring[candidates[j]]], m)
	})

	bridge := candidates[0]
	for _, j := range candidates {
		if visible(pts, ring, j, h, rest) {
			bridge = j
			break
		}
	}

	n := len(h.idx)
	merged := make([]int, 0, len(ring)+n+2)
	merged = append(merged, ring[:bridge+1]...)
	for i := 0; i <= n; i++ {
		merged = append(merged, h.idx[(h.right+i)%n])
	}
	merged = append(merged, ring[bridge])
	merged = append(merged, ring[bridge+1:]...)
	return merged
}

// visible reports whether the segment from ring position j to the hole's
// rightmost vertex stays inside the polygon.
func visible(pts []orb.Point, ring []int, j int, h hole, rest []hole) bool {
	n := len(ring)
	p := pts[ring[j]]
	m := pts[h.idx[h.right]]

	a := pts[ring[(j-1+n)%n]]
	c := pts[ring[(j+1)%n]]
	if !locallyInside(a, p, c, m) {
		return false
	}

	crosses := func(idx []int) bool {
		for i := range idx {
			q1, q2 := pts[idx[i]], pts[idx[(i+1)%len(idx)]]
			if segmentsCross(p, m, q1, q2) {
				return true
			}
		}
		return false
	}
	if crosses(ring) || crosses(h.idx) {
		return false
	}
	for _, o := range rest {
		if crosses(o.idx) {
			return false
		}
	}
	return true
}

// locallyInside reports whether direction b->m leaves vertex b into the
// interior of a counter-clockwise ring a, b, c.
func locallyInside(a, b, c, m orb.Point) bool {
	if m == b {
		return true
	}
	if orient(a, b, c) >= 0 {
		return orient(a, b, m) >= 0 && orient(b, c, m) >= 0
	}
	return orient(a, b, m) >= 0 || orient(b, c, m) >= 0
}

func dist2(a, b orb.Point) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

func inTriangle(a, b, c, p orb.Point) bool {
	return orient(a, b, p) >= 0 && orient(b, c, p) >= 0 && orient(c, a, p) >= 0
}

// earClip triangulates a counter-clockwise ring of point indices. Ears
// are clipped while any exist; a ring that has none left, which only
// happens for self-intersecting input, is cut open at the current vertex
// so the loop always terminates.
func earClip(pts []orb.Point, ring []int) []uint32 {
	n := len(ring)
	if n < 3 {
		return nil
	}

	prev := make([]int, n)
	next := make([]int, n)
	for i := range ring {
		prev[i] = (i - 1 + n) % n
		next[i] = (i + 1) % n
	}

	at := func(i int) orb.Point { return pts[ring[i]] }

	isEar := func(a, b, c int) bool {
		pa, pb, pc := at(a), at(b), at(c)
		if orient(pa, pb, pc) <= 0 {
			return false
		}
		for v := next[c]; v != a; v = next[v] {
			p := at(v)
			if p == pa || p == pb || p == pc {
				continue
			}
			if inTriangle(pa, pb, pc, p) {
				return false
			}
		}
		return true
	}

	remove := func(b int) {
		next[prev[b]] = next[b]
		prev[next[b]] = prev[b]
	}

	out := make([]uint32, 0, 3*(n-2))
	emit := func(a, b, c int) {
		out = append(out, uint32(ring[a]), uint32(ring[b]), uint32(ring[c]))
	}

	remaining := n
	cur := 0
	stall := 0
	for remaining > 3 {
		a, b, c := prev[cur], cur, next[cur]
		if isEar(a, b, c) {
			emit(a, b, c)
			remove(b)
			remaining--
			cur = c
			stall = 0
			continue
		}

		cur = c
		stall++
		if stall < remaining {
			continue
		}

		// No ear in a full lap. Drop a flat vertex if there is one,
		// otherwise force a cut.
		stall = 0
		v := cur
		found := false
		for i := 0; i < remaining; i++ {
			if orient(at(prev[v]), at(v), at(next[v])) == 0 {
				found = true
				break
			}
			v = next[v]
		}
		if found {
			cur = next[v]
			remove(v)
			remaining--
			continue
		}
		a, b, c = prev[cur], cur, next[cur]
		emit(a, b, c)
		remove(b)
		remaining--
		cur = c
	}

	a, b, c := prev[cur], cur, next[cur]
	if orient(at(a), at(b), at(c)) != 0 {
		emit(a, b, c)
	}
	return out
}
