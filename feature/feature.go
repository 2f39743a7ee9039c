// Package feature keeps the styled, deduplicated features decoded tiles
// refer to by integer id.
package feature

import (
	"math"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/style"
)

// Style properties resolved for every feature.
const (
	PropBackgroundColor = "background-color"
	PropBorderColor     = "border-color"
	PropBorderWidth     = "border-width"
	PropDisplay         = "display"
	PropLineWidth       = "line-width"
	PropZIndex          = "z-index"
)

var properties = []string{
	PropBackgroundColor,
	PropBorderColor,
	PropBorderWidth,
	PropDisplay,
	PropLineWidth,
	PropZIndex,
}

// LineWidth packs a width and its unit in one word: value<<1 | 1 for
// pixels, value<<1 for world units.
type LineWidth uint32

func EncodeLineWidth(value float32, pixels bool) LineWidth {
	if value < 0 {
		value = 0
	}
	w := LineWidth(uint32(math.Round(float64(value))) << 1)
	if pixels {
		w |= 1
	}
	return w
}

func (w LineWidth) Value() uint32 {
	return uint32(w) >> 1
}

func (w LineWidth) Pixels() bool {
	return w&1 == 1
}

// Style is the resolved look of a feature.
type Style struct {
	BackgroundColor [4]float32
	BorderColor     [4]float32
	BorderWidth     float32
	LineWidth       LineWidth
	Display         bool
	ZIndex          float32
}

func defaultStyle(layerID uint32) Style {
	return Style{Display: true, ZIndex: float32(layerID)}
}

// Visible is true when the feature is displayed and has something opaque
// enough to draw.
func (s Style) Visible() bool {
	return s.Display && (s.BackgroundColor[3] > 0 || s.BorderColor[3] > 0)
}

// HasAlpha is true when either color needs blending.
func (s Style) HasAlpha() bool {
	return s.BackgroundColor[3] < 1 || s.BorderColor[3] < 1
}

func (s Style) HasOutline() bool {
	return s.BorderWidth > 0 && s.BorderColor[3] > 0
}

// Feature is one styled, addressable map entity. Its identity is its
// selector.
type Feature struct {
	Selector style.Selector
	LayerID  uint32
	ID       uint32
	Style    Style
}

func New(sel style.Selector, layerID, id uint32) Feature {
	return Feature{Selector: sel, LayerID: layerID, ID: id, Style: defaultStyle(layerID)}
}

// ZoomAttribute is the selector attribute carrying the integer zoom.
const ZoomAttribute = "zoom"

// LoadStyle re-resolves the feature style at zoom. The query is the
// feature selector plus zoom=floor(zoom); for each property the last
// matching rule that declares it wins. Values of the wrong kind are
// logged and leave the default in place.
func (f *Feature) LoadStyle(zoom float64, rules *style.RulesCache, logger logrus.FieldLogger) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	st := defaultStyle(f.LayerID)
	if rules == nil {
		f.Style = st
		return
	}

	query := f.Selector.WithAttribute(ZoomAttribute, strconv.Itoa(int(math.Floor(zoom))))
	matching := rules.MatchingRules(query)

	for _, prop := range properties {
		var (
			value style.Value
			found bool
		)
		for _, r := range matching {
			if v, ok := r.Get(prop); ok {
				value, found = v, true
			}
		}
		if !found {
			continue
		}
		if !st.apply(prop, value) {
			logger.WithFields(logrus.Fields{
				"selector": f.Selector.String(),
				"property": prop,
				"value":    value.String(),
			}).Warn("Ignoring style value of unsupported type")
		}
	}

	f.Style = st
}

func (s *Style) apply(prop string, value style.Value) bool {
	switch prop {
	case PropBackgroundColor, PropBorderColor:
		c, ok := value.(style.ColorValue)
		if !ok {
			return false
		}
		if prop == PropBackgroundColor {
			s.BackgroundColor = c.RGBA()
		} else {
			s.BorderColor = c.RGBA()
		}
	case PropBorderWidth:
		n, ok := value.(style.NumberValue)
		if !ok {
			return false
		}
		s.BorderWidth = n.Value
	case PropLineWidth:
		n, ok := value.(style.NumberValue)
		if !ok {
			return false
		}
		s.LineWidth = EncodeLineWidth(n.Value, n.Unit != style.World)
	case PropZIndex:
		n, ok := value.(style.NumberValue)
		if !ok {
			return false
		}
		s.ZIndex = n.Value
	case PropDisplay:
		v, ok := value.(style.StringValue)
		if !ok {
			return false
		}
		s.Display = v != "none"
	default:
		return false
	}
	return true
}
