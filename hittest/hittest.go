// Package hittest answers "which objects are under this point" for a tile.
//
// Candidates come from an R-tree over object bounds. Each candidate is then
// tested with the even-odd rule: a ray is cast from the query point towards
// +x and the edges it crosses are counted. Edges are half-open in y, so a
// ray through a shared vertex is counted once. Self-intersecting rings and
// rings nested as holes need no special handling under this rule.
package hittest

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/tilezen/go-tilemesh/geometry"
)

// Tolerance pads object bounds and query points in the broad phase.
const Tolerance = 1e-6

type entry struct {
	index  int
	rings  []geometry.Path
	closed bool
	bound  orb.Bound
}

func (e *entry) Bounds() rtreego.Rect {
	min := rtreego.Point{e.bound.Min[0] - Tolerance, e.bound.Min[1] - Tolerance}
	max := rtreego.Point{e.bound.Max[0] + Tolerance, e.bound.Max[1] + Tolerance}
	r, _ := rtreego.NewRectFromPoints(min, max)
	return r
}

// Tester is a per-tile spatial index. Build it with Insert, then query it
// with HitTest; queries may run concurrently once building is done.
type Tester struct {
	tree *rtreego.Rtree
	n    int
}

func New() *Tester {
	return &Tester{tree: rtreego.NewTree(2, 25, 50)}
}

// Insert registers the boundary of object index. Closed boundaries get an
// edge from the last point of each ring back to the first. Objects with
// fewer than two points are not registered and Insert returns false.
func (t *Tester) Insert(index int, rings []geometry.Path, closed bool) bool {
	var (
		bound  orb.Bound
		points int
	)
	kept := make([]geometry.Path, 0, len(rings))
	for _, r := range rings {
		if len(r) == 0 {
			continue
		}
		if points == 0 {
			bound = r.Bound()
		} else {
			bound = bound.Union(r.Bound())
		}
		points += len(r)
		kept = append(kept, r)
	}
	if points < 2 {
		return false
	}

	t.tree.Insert(&entry{index: index, rings: kept, closed: closed, bound: bound})
	t.n++
	return true
}

// Len is the number of registered objects.
func (t *Tester) Len() int {
	return t.n
}

// HitTest returns the indices of every object containing p, ascending.
func (t *Tester) HitTest(p orb.Point) []int {
	if t.n == 0 {
		return nil
	}

	var out []int
	for _, s := range t.tree.SearchIntersect(rtreego.Point{p[0], p[1]}.ToRect(Tolerance)) {
		e := s.(*entry)
		if Contains(e.rings, e.closed, p) {
			out = append(out, e.index)
		}
	}
	sort.Ints(out)
	return out
}

// Contains applies the even-odd rule to every edge of rings.
func Contains(rings []geometry.Path, closed bool, p orb.Point) bool {
	crossings := 0
	for _, r := range rings {
		for i := 1; i < len(r); i++ {
			if crosses(r[i-1], r[i], p) {
				crossings++
			}
		}
		if closed && len(r) > 2 && r[0] != r[len(r)-1] {
			if crosses(r[len(r)-1], r[0], p) {
				crossings++
			}
		}
	}
	return crossings%2 == 1
}

// crosses reports whether the ray from p towards +x crosses edge ab.
func crosses(a, b, p orb.Point) bool {
	if (a[1] > p[1]) == (b[1] > p[1]) {
		return false
	}
	x := a[0] + (p[1]-a[1])*(b[0]-a[0])/(b[1]-a[1])
	return p[0] < x
}
