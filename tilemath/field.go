package tilemath

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// TileField is an inclusive rectangle of same-zoom tile ids.
type TileField struct {
	TopLeft     TileID
	BottomRight TileID
}

// NewTileField builds a field from two corners at the same zoom. The
// corners are normalised so TopLeft holds the minimum x and y.
func NewTileField(a, b TileID) (TileField, error) {
	if a.Z != b.Z {
		return TileField{}, errors.Wrapf(ErrZoomMismatch, "field %s .. %s", a, b)
	}
	tl := TileID{Z: a.Z, X: min(a.X, b.X), Y: min(a.Y, b.Y)}
	br := TileID{Z: a.Z, X: max(a.X, b.X), Y: max(a.Y, b.Y)}
	return TileField{TopLeft: tl, BottomRight: br}, nil
}

func (f TileField) Zoom() uint32 {
	return f.TopLeft.Z
}

// Len is the number of ids in the field.
func (f TileField) Len() int {
	if f.BottomRight.X < f.TopLeft.X || f.BottomRight.Y < f.TopLeft.Y {
		return 0
	}
	w := int(f.BottomRight.X-f.TopLeft.X) + 1
	h := int(f.BottomRight.Y-f.TopLeft.Y) + 1
	return w * h
}

// All yields every id of the field row by row. The sequence can be ranged
// over any number of times.
func (f TileField) All() iter.Seq[TileID] {
	return func(yield func(TileID) bool) {
		if f.Len() == 0 {
			return
		}
		z := f.TopLeft.Z
		for y := f.TopLeft.Y; ; y++ {
			for x := f.TopLeft.X; ; x++ {
				if !yield(TileID{Z: z, X: x, Y: y}) {
					return
				}
				if x == f.BottomRight.X {
					break
				}
			}
			if y == f.BottomRight.Y {
				return
			}
		}
	}
}

func (f TileField) Slice() []TileID {
	ids := make([]TileID, 0, f.Len())
	for id := range f.All() {
		ids = append(ids, id)
	}
	return ids
}

// Contains walks the field looking for id.
func (f TileField) Contains(id TileID) bool {
	for t := range f.All() {
		if t == id {
			return true
		}
	}
	return false
}

func (f TileField) String() string {
	return f.TopLeft.String() + ".." + f.BottomRight.String()
}
