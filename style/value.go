package style

import (
	"fmt"
	"strconv"
)

// Value is a declaration value: a StringValue, ColorValue or NumberValue.
type Value interface {
	isValue()
	String() string
}

// StringValue is a bare identifier or quoted string.
type StringValue string

func (StringValue) isValue() {}

func (s StringValue) String() string { return string(s) }

// ColorValue is an sRGB color with a float alpha in [0, 1].
type ColorValue struct {
	R, G, B uint8
	A       float32
}

func (ColorValue) isValue() {}

func (c ColorValue) String() string {
	if c.A >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", c.R, c.G, c.B, strconv.FormatFloat(float64(c.A), 'g', -1, 32))
}

// RGBA returns the color with every channel scaled to [0, 1].
func (c ColorValue) RGBA() [4]float32 {
	return [4]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, c.A}
}

// Unit of a NumberValue.
type Unit uint8

const (
	Unitless Unit = iota
	Px
	World
)

func (u Unit) String() string {
	switch u {
	case Px:
		return "px"
	case World:
		return "w"
	}
	return ""
}

// NumberValue is a number with an optional px or w (world units) suffix.
type NumberValue struct {
	Value float32
	Unit  Unit
}

func (NumberValue) isValue() {}

func (n NumberValue) String() string {
	return strconv.FormatFloat(float64(n.Value), 'g', -1, 32) + n.Unit.String()
}
