package tilepack

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/feature"
	"github.com/tilezen/go-tilemesh/geometry"
	"github.com/tilezen/go-tilemesh/hittest"
	"github.com/tilezen/go-tilemesh/mesh"
	"github.com/tilezen/go-tilemesh/style"
	"github.com/tilezen/go-tilemesh/tilemath"
)

// BackgroundMargin is how far, in extent units, the synthetic background
// polygon reaches past each tile edge.
const BackgroundMargin = 64

// BackgroundType is the selector type of the synthetic background object.
const BackgroundType = "background"

// ClassTag is the selection tag that becomes a selector class rather than
// an attribute.
const ClassTag = "class"

// DefaultSelectionTags are the tags used for selectors unless configured.
var DefaultSelectionTags = []string{"class", "subclass", "admin_level", "type"}

// Layer ids double as the default z-index and draw order.
const (
	BackgroundLayerID uint32 = 0
	UnknownLayerID    uint32 = 1
)

var layerIDs = map[string]uint32{
	"earth":          2,
	"landcover":      2,
	"landuse":        3,
	"park":           4,
	"park_landuse":   4,
	"water":          5,
	"waterway":       6,
	"boundaries":     7,
	"boundary":       7,
	"aeroway":        8,
	"buildings":      9,
	"building":       9,
	"roads":          10,
	"transportation": 10,
	"transit":        11,
	"pois":           12,
	"poi":            12,
	"places":         13,
	"place":          13,
}

// LayerID maps a layer name to its fixed id. Unknown names get
// UnknownLayerID.
func LayerID(name string) uint32 {
	if id, ok := layerIDs[name]; ok {
		return id
	}
	return UnknownLayerID
}

// Decoder turns raw tile bytes into meshed tiles. Features are registered
// in a collection shared with every other decoder; Decode is safe to call
// from many goroutines at once.
type Decoder struct {
	Features      *feature.Collection
	SelectionTags []string
	Logger        logrus.FieldLogger
}

// Decode decodes raw with the default logger.
func Decode(id tilemath.TileID, raw []byte, features *feature.Collection, selectionTags []string) (*Tile, error) {
	d := &Decoder{Features: features, SelectionTags: selectionTags}
	return d.Decode(id, raw)
}

type group struct {
	selector style.Selector
	layerID  uint32
	objects  []int
}

// Decode builds a tile: the background object first, then every feature
// of every layer grouped by selector so each group occupies one
// contiguous index range. Polygons are filled, lines stroked at the tile
// zoom, and every object is registered for hit testing.
func (d *Decoder) Decode(id tilemath.TileID, raw []byte) (*Tile, error) {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if d.Features == nil {
		return nil, errors.New("decoder has no feature collection")
	}

	layers, err := ReadLayers(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding tile %s", id)
	}

	t := &Tile{
		ID:        id,
		Extent:    DefaultExtent,
		HitTester: hittest.New(),
	}
	if len(layers) > 0 {
		t.Extent = layers[0].Extent
	}

	selection := make(map[string]bool, len(d.SelectionTags))
	for _, k := range d.SelectionTags {
		selection[k] = true
	}

	var (
		groups []group
		index  = make(map[string][]int)
	)
	add := func(o Object, layerID uint32) {
		key := o.Selector.String()
		i := -1
		for _, g := range index[key] {
			if groups[g].selector.Equal(o.Selector) {
				i = g
				break
			}
		}
		if i < 0 {
			i = len(groups)
			groups = append(groups, group{selector: o.Selector, layerID: layerID})
			index[key] = append(index[key], i)
		}
		groups[i].objects = append(groups[i].objects, len(t.Objects))
		t.Objects = append(t.Objects, o)
	}

	add(background(t.Extent), BackgroundLayerID)

	skipped := 0
	for li := range layers {
		l := &layers[li]
		layerID := LayerID(l.Name)
		scale := float64(t.Extent) / float64(l.Extent)

		for fi := range l.Features {
			f := &l.Features[fi]
			o, ok, err := d.object(l, f, selection, scale)
			if err != nil {
				return nil, errors.Wrapf(err, "decoding tile %s layer %q feature %d", id, l.Name, fi)
			}
			if !ok {
				skipped++
				continue
			}
			add(o, layerID)
		}
	}
	if skipped > 0 {
		logger.WithFields(logrus.Fields{"tile": id.String(), "skipped": skipped}).Debug("Skipped features without geometry")
	}

	for _, g := range groups {
		fid, err := d.Features.GetOrCreate(g.selector, g.layerID)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding tile %s", id)
		}

		start := t.Mesh.IndexCount()
		for _, oi := range g.objects {
			o := &t.Objects[oi]
			o.FeatureID = fid
			switch o.Type {
			case ObjectPolygon:
				t.Mesh.AddPolygon(o.Paths, fid, t.Extent)
			case ObjectLine:
				for _, p := range o.Paths {
					t.Mesh.AddLine(p, fid, t.Extent, id.Z)
				}
			}
		}
		if end := t.Mesh.IndexCount(); end > start {
			t.FeatureRanges = append(t.FeatureRanges, FeatureRange{FeatureID: fid, Range: mesh.Range{Start: start, End: end}})
		}
	}

	for i := range t.Objects {
		o := &t.Objects[i]
		t.HitTester.Insert(i, o.Paths, o.Type == ObjectPolygon)
	}
	return t, nil
}

// object decodes one feature. It reports false for features with an
// unknown geometry type or no geometry at all.
func (d *Decoder) object(l *Layer, f *RawFeature, selection map[string]bool, scale float64) (Object, bool, error) {
	var typ ObjectType
	switch f.Type {
	case geometry.Point:
		typ = ObjectPoint
	case geometry.LineString:
		typ = ObjectLine
	case geometry.Polygon:
		typ = ObjectPolygon
	default:
		return Object{}, false, nil
	}

	sel := style.NewSelector().WithType(l.Name)
	var tags map[string]string
	for i := 0; i < len(f.Tags)/2; i++ {
		k, v, err := l.Tag(f, i)
		if err != nil {
			return Object{}, false, err
		}
		switch {
		case k == ClassTag && selection[k]:
			sel = sel.WithClass(v)
		case selection[k]:
			sel = sel.WithAttribute(k, v)
		default:
			if tags == nil {
				tags = make(map[string]string)
			}
			tags[k] = v
		}
	}

	paths, err := geometry.Decode(f.Type, f.Geometry)
	if err != nil {
		return Object{}, false, err
	}
	if len(paths) == 0 {
		return Object{}, false, nil
	}
	if scale != 1 {
		for _, p := range paths {
			for i := range p {
				p[i][0] *= scale
				p[i][1] *= scale
			}
		}
	}

	return Object{
		Selector: sel,
		ID:       f.ID,
		Type:     typ,
		Paths:    paths,
		Tags:     tags,
	}, true, nil
}

func background(extent uint32) Object {
	lo := -float64(BackgroundMargin)
	hi := float64(extent) + BackgroundMargin
	ring := geometry.Path{{lo, lo}, {hi, lo}, {hi, hi}, {lo, hi}, {lo, lo}}
	return Object{
		Selector: style.NewSelector().WithType(BackgroundType),
		Type:     ObjectPolygon,
		Paths:    []geometry.Path{ring},
	}
}
