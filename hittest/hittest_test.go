package hittest

import (
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tilezen/go-tilemesh/geometry"
)

var square = geometry.Path{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}

func TestContains(t *testing.T) {
	hole := geometry.Path{{3, 3}, {7, 3}, {7, 7}, {3, 7}, {3, 3}}
	// two lobes crossing at (5, 5)
	bowtie := geometry.Path{{0, 0}, {10, 10}, {10, 0}, {0, 10}}

	tests := []struct {
		name   string
		rings  []geometry.Path
		closed bool
		point  orb.Point
		want   bool
	}{
		{"inside square", []geometry.Path{square}, true, orb.Point{5, 5}, true},
		{"outside square", []geometry.Path{square}, true, orb.Point{15, 5}, false},
		{"left of square", []geometry.Path{square}, true, orb.Point{-1, 5}, false},
		{"level with a vertex", []geometry.Path{square}, true, orb.Point{5, 0}, true},
		{"square without closing point", []geometry.Path{square[:4]}, true, orb.Point{5, 5}, true},
		{"closing edge counted", []geometry.Path{square[:4]}, true, orb.Point{-1, 5}, false},
		{"open ring has no closing edge", []geometry.Path{square[:4]}, false, orb.Point{-1, 5}, true},
		{"in the hole", []geometry.Path{square, hole}, true, orb.Point{5, 5}, false},
		{"around the hole", []geometry.Path{square, hole}, true, orb.Point{1, 5}, true},
		{"bowtie left lobe", []geometry.Path{bowtie}, true, orb.Point{2, 5}, true},
		{"bowtie upper notch", []geometry.Path{bowtie}, true, orb.Point{5, 8}, false},
		{"bowtie right lobe", []geometry.Path{bowtie}, true, orb.Point{8, 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Contains(tt.rings, tt.closed, tt.point); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.point, got, tt.want)
			}
		})
	}
}

func TestTester_HitTest(t *testing.T) {
	h := New()
	if got := h.HitTest(orb.Point{1, 1}); got != nil {
		t.Errorf("empty tester hit %v", got)
	}

	h.Insert(0, []geometry.Path{{{-100, -100}, {200, -100}, {200, 200}, {-100, 200}}}, true)
	h.Insert(3, []geometry.Path{square}, true)
	h.Insert(4, []geometry.Path{{{20, 20}, {30, 20}, {30, 30}, {20, 30}}}, true)
	if h.Insert(5, []geometry.Path{{{1, 1}}}, true) {
		t.Error("single point object registered")
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d", h.Len())
	}

	tests := []struct {
		point orb.Point
		want  []int
	}{
		{orb.Point{5, 5}, []int{0, 3}},
		{orb.Point{25, 25}, []int{0, 4}},
		{orb.Point{15, 15}, []int{0}},
		{orb.Point{500, 500}, nil},
	}
	for _, tt := range tests {
		if got := h.HitTest(tt.point); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("HitTest(%v) = %v, want %v", tt.point, got, tt.want)
		}
	}
}
