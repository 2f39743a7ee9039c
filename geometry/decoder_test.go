package geometry

import (
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
)

func TestZigZag(t *testing.T) {
	tests := []struct {
		in   int32
		want uint32
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{2147483647, 4294967294},
		{-2147483648, 4294967295},
	}
	for _, tt := range tests {
		if got := ZigZag(tt.in); got != tt.want {
			t.Errorf("ZigZag(%d) = %d, want %d", tt.in, got, tt.want)
		}
		if got := UnZigZag(tt.want); got != tt.in {
			t.Errorf("UnZigZag(%d) = %d, want %d", tt.want, got, tt.in)
		}
	}
}

func TestDecode_Square(t *testing.T) {
	square := Path{{0, 0}, {0, 10}, {10, 10}, {10, 0}}

	t.Run("line string", func(t *testing.T) {
		paths, err := Decode(LineString, Encode(LineString, []Path{square}))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(paths, []Path{square}) {
			t.Errorf("Decode = %v, want %v", paths, square)
		}
	})

	t.Run("polygon", func(t *testing.T) {
		ring := append(append(Path{}, square...), square[0])
		paths, err := Decode(Polygon, Encode(Polygon, []Path{ring}))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(paths, []Path{ring}) {
			t.Errorf("Decode = %v, want %v", paths, ring)
		}
		if !paths[0].Closed() {
			t.Error("ring should be closed")
		}
	})

	t.Run("hand encoded", func(t *testing.T) {
		stream := []uint32{
			EncodeCommand(CommandMoveTo, 1), ZigZag(0), ZigZag(0),
			EncodeCommand(CommandLineTo, 3), ZigZag(0), ZigZag(10), ZigZag(10), ZigZag(0), ZigZag(0), ZigZag(-10),
			EncodeCommand(CommandClosePath, 1),
		}
		if stream[0] != 9 || stream[3] != 26 || stream[10] != 15 {
			t.Fatalf("unexpected command words %v", stream)
		}
		paths, err := Decode(Polygon, stream)
		if err != nil {
			t.Fatal(err)
		}
		want := Path{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
		if !reflect.DeepEqual(paths, []Path{want}) {
			t.Errorf("Decode = %v", paths)
		}
	})
}

func TestDecode_CursorCarriesAcrossPaths(t *testing.T) {
	outer := Path{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}}
	hole := Path{{25, 25}, {25, 75}, {75, 75}, {75, 25}, {25, 25}}

	stream := Encode(Polygon, []Path{outer, hole})
	paths, err := Decode(Polygon, stream)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(paths, []Path{outer, hole}) {
		t.Errorf("Decode = %v", paths)
	}
	if outer.SignedArea() <= 0 || hole.SignedArea() >= 0 {
		t.Errorf("areas outer=%f hole=%f", outer.SignedArea(), hole.SignedArea())
	}
}

func TestDecode_Points(t *testing.T) {
	stream := []uint32{
		EncodeCommand(CommandMoveTo, 2), ZigZag(5), ZigZag(7), ZigZag(3), ZigZag(-2),
		// anything after the first MoveTo group is ignored
		EncodeCommand(CommandMoveTo, 1), ZigZag(1), ZigZag(1),
	}
	paths, err := Decode(Point, stream)
	if err != nil {
		t.Fatal(err)
	}
	want := []Path{{{5, 7}}, {{8, 5}}}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("Decode = %v, want %v", paths, want)
	}
}

func TestDecode_LineStopsAfterFirstLineTo(t *testing.T) {
	stream := Encode(LineString, []Path{{{0, 0}, {1, 1}}, {{4, 4}, {5, 5}}})
	paths, err := Decode(LineString, stream)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(paths, []Path{{{0, 0}, {1, 1}}}) {
		t.Errorf("Decode = %v", paths)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		typ    GeomType
		stream []uint32
	}{
		{"unknown command", Polygon, []uint32{EncodeCommand(3, 1), 0, 0}},
		{"close in line", LineString, []uint32{EncodeCommand(CommandClosePath, 1)}},
		{"close in point", Point, []uint32{EncodeCommand(CommandClosePath, 1)}},
		{"truncated", Polygon, []uint32{EncodeCommand(CommandMoveTo, 1), 2}},
		{"line without move", Polygon, []uint32{EncodeCommand(CommandLineTo, 1), 2, 2}},
		{"unknown type", Unknown, []uint32{EncodeCommand(CommandMoveTo, 1), 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.typ, tt.stream)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrMalformedGeometry) {
				t.Errorf("error %v is not ErrMalformedGeometry", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error %T is not a *DecodeError", err)
			}
		})
	}
}

func TestPath_Bound(t *testing.T) {
	p := Path{{3, 4}, {-1, 9}, {7, 0}}
	want := orb.Bound{Min: orb.Point{-1, 0}, Max: orb.Point{7, 9}}
	if got := p.Bound(); got != want {
		t.Errorf("Bound() = %v, want %v", got, want)
	}
}
