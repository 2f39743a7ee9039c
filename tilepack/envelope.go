package tilepack

import (
	"bytes"
	"compress/gzip"
	"io"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tilezen/go-tilemesh/geometry"
)

// DefaultExtent is the layer extent assumed when a layer does not carry one.
const DefaultExtent = 4096

// ErrMalformedTile is returned when the protobuf envelope cannot be read.
var ErrMalformedTile = errors.New("malformed tile")

// Field numbers of the vector tile protobuf schema.
const (
	tileLayers protowire.Number = 3

	layerName     protowire.Number = 1
	layerFeatures protowire.Number = 2
	layerKeys     protowire.Number = 3
	layerValues   protowire.Number = 4
	layerExtent   protowire.Number = 5
	layerVersion  protowire.Number = 15

	featureID       protowire.Number = 1
	featureTags     protowire.Number = 2
	featureType     protowire.Number = 3
	featureGeometry protowire.Number = 4

	valueString protowire.Number = 1
	valueFloat  protowire.Number = 2
	valueDouble protowire.Number = 3
	valueInt    protowire.Number = 4
	valueUint   protowire.Number = 5
	valueSint   protowire.Number = 6
	valueBool   protowire.Number = 7
)

// Layer is one layer of a vector tile with its feature geometry still
// command-encoded. Values are rendered to strings whatever their kind.
type Layer struct {
	Name     string
	Version  uint32
	Extent   uint32
	Keys     []string
	Values   []string
	Features []RawFeature
}

// RawFeature is a feature as stored in a layer. Tags index pairwise into
// the layer's Keys and Values.
type RawFeature struct {
	ID       uint64
	HasID    bool
	Tags     []uint32
	Type     geometry.GeomType
	Geometry []uint32
}

// Tag returns the i-th key/value pair of f.
func (l *Layer) Tag(f *RawFeature, i int) (string, string, error) {
	k, v := f.Tags[2*i], f.Tags[2*i+1]
	if int(k) >= len(l.Keys) || int(v) >= len(l.Values) {
		return "", "", errors.Wrapf(ErrMalformedTile, "layer %q: tag %d/%d out of range", l.Name, k, v)
	}
	return l.Keys[k], l.Values[v], nil
}

// IsGzipped reports whether data starts with the gzip magic bytes.
func IsGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// MaxTileSize caps the inflated size of a gzipped tile.
const MaxTileSize = 32 << 20

func inflate(data []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "opening gzip payload"), ErrMalformedTile)
	}
	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "inflating gzip payload"), ErrMalformedTile)
	}
	if int64(len(out)) > limit {
		return nil, errors.Mark(errors.Newf("gzip payload inflates past %d bytes", limit), ErrMalformedTile)
	}
	return out, nil
}

// Gunzip inflates a gzipped tile, refusing payloads larger than
// MaxTileSize.
func Gunzip(data []byte) ([]byte, error) {
	return inflate(data, MaxTileSize)
}

// ReadLayers parses a vector tile, transparently inflating gzip payloads.
func ReadLayers(data []byte) ([]Layer, error) {
	if IsGzipped(data) {
		var err error
		if data, err = Gunzip(data); err != nil {
			return nil, err
		}
	}

	var layers []Layer
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != tileLayers || typ != protowire.BytesType {
			return skip(num, typ, b)
		}
		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		l, err := readLayer(msg)
		if err != nil {
			return 0, err
		}
		layers = append(layers, l)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return layers, nil
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk calls fn for every field of a message. fn consumes the field value
// and returns its length, or a negative protowire error code.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return malformed(m)
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return protowire.ConsumeFieldValue(num, typ, b), nil
}

func malformed(code int) error {
	return errors.Mark(errors.Wrap(protowire.ParseError(code), "reading protobuf"), ErrMalformedTile)
}

func readLayer(b []byte) (Layer, error) {
	l := Layer{Extent: DefaultExtent, Version: 1}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == layerName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			l.Name = string(v)
			return n, nil
		case num == layerKeys && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			l.Keys = append(l.Keys, string(v))
			return n, nil
		case num == layerValues && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			s, err := readValue(v)
			if err != nil {
				return 0, err
			}
			l.Values = append(l.Values, s)
			return n, nil
		case num == layerExtent && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			l.Extent = uint32(v)
			return n, nil
		case num == layerVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			l.Version = uint32(v)
			return n, nil
		case num == layerFeatures && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			f, err := readFeature(v)
			if err != nil {
				return 0, errors.Wrapf(err, "layer %q feature %d", l.Name, len(l.Features))
			}
			l.Features = append(l.Features, f)
			return n, nil
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return Layer{}, err
	}
	if l.Extent == 0 {
		return Layer{}, errors.Wrapf(ErrMalformedTile, "layer %q has zero extent", l.Name)
	}
	return l, nil
}

func readFeature(b []byte) (RawFeature, error) {
	var f RawFeature
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case featureID:
			if typ != protowire.VarintType {
				break
			}
			v, n := protowire.ConsumeVarint(b)
			f.ID, f.HasID = v, true
			return n, nil
		case featureType:
			if typ != protowire.VarintType {
				break
			}
			v, n := protowire.ConsumeVarint(b)
			f.Type = geometry.GeomType(v)
			return n, nil
		case featureTags:
			return readUint32s(typ, b, &f.Tags)
		case featureGeometry:
			return readUint32s(typ, b, &f.Geometry)
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return RawFeature{}, err
	}
	if len(f.Tags)%2 != 0 {
		return RawFeature{}, errors.Wrapf(ErrMalformedTile, "odd number of tag indices (%d)", len(f.Tags))
	}
	return f, nil
}

// readUint32s appends a packed or unpacked repeated uint32 field.
func readUint32s(typ protowire.Type, b []byte, out *[]uint32) (int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			*out = append(*out, uint32(v))
		}
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m, nil
			}
			*out = append(*out, uint32(v))
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, errors.Wrapf(ErrMalformedTile, "unexpected wire type %d for repeated uint32", typ)
}

func readValue(b []byte) (string, error) {
	var s string
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == valueString && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			s = string(v)
			return n, nil
		case num == valueFloat && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			s = strconv.FormatFloat(float64(math.Float32frombits(v)), 'g', -1, 32)
			return n, nil
		case num == valueDouble && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			s = strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64)
			return n, nil
		case num == valueInt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s = strconv.FormatInt(int64(v), 10)
			return n, nil
		case num == valueUint && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s = strconv.FormatUint(v, 10)
			return n, nil
		case num == valueSint && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s = strconv.FormatInt(protowire.DecodeZigZag(v), 10)
			return n, nil
		case num == valueBool && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s = strconv.FormatBool(protowire.DecodeBool(v))
			return n, nil
		}
		return skip(num, typ, b)
	})
	return s, err
}
