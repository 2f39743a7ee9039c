// Package geometry decodes the delta-encoded command streams vector tiles
// store feature geometry in.
package geometry

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
)

// GeomType matches the geometry type enum of the tile format.
type GeomType uint32

const (
	Unknown    GeomType = 0
	Point      GeomType = 1
	LineString GeomType = 2
	Polygon    GeomType = 3
)

func (g GeomType) String() string {
	switch g {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	}
	return "Unknown"
}

// Command ids packed in the low three bits of a command word.
const (
	CommandMoveTo    uint32 = 1
	CommandLineTo    uint32 = 2
	CommandClosePath uint32 = 7
)

// ErrMalformedGeometry marks every DecodeError.
var ErrMalformedGeometry = errors.New("malformed geometry")

// DecodeError describes where a command stream went wrong.
type DecodeError struct {
	Type    GeomType
	Offset  int
	Command uint32
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s geometry at word %d (command %d): %s", e.Type, e.Offset, e.Command, e.Reason)
}

// Is lets errors.Is(err, ErrMalformedGeometry) match any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedGeometry
}

// Path is one independent run of points, such as a polygon ring or a line.
type Path []orb.Point

// Closed reports whether the path was terminated by ClosePath, which the
// decoder records by repeating the first point.
func (p Path) Closed() bool {
	return len(p) > 2 && p[0] == p[len(p)-1]
}

// SignedArea is the shoelace area of the path treated as a ring. It is
// positive for rings that are clockwise on screen (y pointing down).
func (p Path) SignedArea() float64 {
	var sum float64
	n := len(p)
	for i := 0; i < n; i++ {
		a, b := p[i], p[(i+1)%n]
		sum += a[0]*b[1] - b[0]*a[1]
	}
	return sum / 2
}

// Bound of the path points.
func (p Path) Bound() orb.Bound {
	return orb.LineString(p).Bound()
}

// decoder is the running state of one decode pass.
type decoder struct {
	typ     GeomType
	stream  []uint32
	pos     int
	cursor  [2]int64
	current Path
	paths   []Path
}

// Decode turns a command stream into paths. Each MoveTo starts a new path
// and coordinates always accumulate onto the previous point, across
// command groups too. Point geometry ends after its first MoveTo group and
// LineString geometry after its first LineTo group. Polygon rings are
// closed by repeating their first point and are returned in stream order
// without any winding fix-up.
func Decode(typ GeomType, stream []uint32) ([]Path, error) {
	d := &decoder{typ: typ, stream: stream}
	return d.run()
}

func (d *decoder) fail(cmd uint32, format string, args ...interface{}) error {
	return &DecodeError{
		Type:    d.typ,
		Offset:  d.pos,
		Command: cmd,
		Reason:  fmt.Sprintf(format, args...),
	}
}

func (d *decoder) run() ([]Path, error) {
	if d.typ != Point && d.typ != LineString && d.typ != Polygon {
		return nil, d.fail(0, "unsupported geometry type %d", uint32(d.typ))
	}

	for d.pos < len(d.stream) {
		word := d.stream[d.pos]
		cmd := word & 0x7
		count := int(word >> 3)
		d.pos++

		switch cmd {
		case CommandMoveTo:
			if err := d.moveTo(count); err != nil {
				return nil, err
			}
			if d.typ == Point {
				return d.finish(), nil
			}
		case CommandLineTo:
			if len(d.current) == 0 {
				return nil, d.fail(cmd, "LineTo without a current point")
			}
			if err := d.lineTo(count); err != nil {
				return nil, err
			}
			if d.typ == LineString {
				return d.finish(), nil
			}
		case CommandClosePath:
			if d.typ != Polygon {
				return nil, d.fail(cmd, "ClosePath in %s geometry", d.typ)
			}
			if count != 1 {
				return nil, d.fail(cmd, "ClosePath with count %d", count)
			}
			if len(d.current) == 0 {
				return nil, d.fail(cmd, "ClosePath without a current path")
			}
			d.current = append(d.current, d.current[0])
			d.flush()
		default:
			return nil, d.fail(cmd, "unknown command id")
		}
	}

	return d.finish(), nil
}

func (d *decoder) next() (orb.Point, bool) {
	if d.pos+1 >= len(d.stream) {
		return orb.Point{}, false
	}
	d.cursor[0] += int64(UnZigZag(d.stream[d.pos]))
	d.cursor[1] += int64(UnZigZag(d.stream[d.pos+1]))
	d.pos += 2
	return orb.Point{float64(d.cursor[0]), float64(d.cursor[1])}, true
}

func (d *decoder) moveTo(count int) error {
	if count == 0 {
		return d.fail(CommandMoveTo, "MoveTo with count 0")
	}
	if d.typ != Point && count != 1 {
		return d.fail(CommandMoveTo, "MoveTo with count %d in %s geometry", count, d.typ)
	}

	for i := 0; i < count; i++ {
		p, ok := d.next()
		if !ok {
			return d.fail(CommandMoveTo, "stream ends inside MoveTo parameters")
		}
		d.flush()
		d.current = append(d.current, p)
	}
	return nil
}

func (d *decoder) lineTo(count int) error {
	if count == 0 {
		return d.fail(CommandLineTo, "LineTo with count 0")
	}
	for i := 0; i < count; i++ {
		p, ok := d.next()
		if !ok {
			return d.fail(CommandLineTo, "stream ends inside LineTo parameters")
		}
		d.current = append(d.current, p)
	}
	return nil
}

func (d *decoder) flush() {
	if len(d.current) > 0 {
		d.paths = append(d.paths, d.current)
		d.current = nil
	}
}

func (d *decoder) finish() []Path {
	d.flush()
	return d.paths
}
