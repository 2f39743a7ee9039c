package geometry

import "math"

// EncodeCommand packs a command id and its repeat count into one word.
func EncodeCommand(id uint32, count int) uint32 {
	return (id & 0x7) | (uint32(count) << 3)
}

// ZigZag maps a signed delta onto an unsigned word.
func ZigZag(n int32) uint32 {
	return uint32(n<<1) ^ uint32(n>>31)
}

// UnZigZag reverses ZigZag.
func UnZigZag(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

// Encode produces the command stream Decode reads back. Coordinates are
// rounded to integers. Closed polygon rings drop their repeated last point
// in favour of a ClosePath.
func Encode(typ GeomType, paths []Path) []uint32 {
	e := &encoder{}
	for _, p := range paths {
		if len(p) == 0 {
			continue
		}
		switch typ {
		case Point:
			e.moveTo(p)
		case LineString:
			e.moveTo(p[:1])
			if len(p) > 1 {
				e.lineTo(p[1:])
			}
		case Polygon:
			ring := p
			if p.Closed() {
				ring = p[:len(p)-1]
			}
			e.moveTo(ring[:1])
			if len(ring) > 1 {
				e.lineTo(ring[1:])
			}
			e.out = append(e.out, EncodeCommand(CommandClosePath, 1))
		}
	}
	return e.out
}

type encoder struct {
	out []uint32
	x   int32
	y   int32
}

func (e *encoder) moveTo(pts Path) {
	e.out = append(e.out, EncodeCommand(CommandMoveTo, len(pts)))
	e.points(pts)
}

func (e *encoder) lineTo(pts Path) {
	e.out = append(e.out, EncodeCommand(CommandLineTo, len(pts)))
	e.points(pts)
}

func (e *encoder) points(pts Path) {
	for _, p := range pts {
		x := int32(math.Round(p[0]))
		y := int32(math.Round(p[1]))
		e.out = append(e.out, ZigZag(x-e.x), ZigZag(y-e.y))
		e.x, e.y = x, y
	}
}
