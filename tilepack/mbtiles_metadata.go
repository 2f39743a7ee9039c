package tilepack

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MbtilesMetadata is the name/value metadata of a tile archive.
type MbtilesMetadata struct {
	metadata map[string]string
}

func NewMbtilesMetadata(metadata map[string]string) *MbtilesMetadata {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &MbtilesMetadata{metadata: metadata}
}

// NewSpatialMetadata describes a vector tile archive covering bound
// between two zooms.
func NewSpatialMetadata(name string, bound orb.Bound, minZoom, maxZoom maptile.Zoom) *MbtilesMetadata {
	m := NewMbtilesMetadata(nil)
	m.Set("name", name)
	m.Set("format", "pbf")
	m.Set("type", "baselayer")
	m.Set("minzoom", strconv.Itoa(int(minZoom)))
	m.Set("maxzoom", strconv.Itoa(int(maxZoom)))
	m.Set("bounds", fmt.Sprintf("%g,%g,%g,%g", bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()))
	c := bound.Center()
	m.Set("center", fmt.Sprintf("%g,%g", c.X(), c.Y()))
	return m
}

func (m *MbtilesMetadata) Get(k string) (string, bool) {
	v, exists := m.metadata[k]
	return v, exists
}

// Keys returns the metadata keys, sorted.
func (m *MbtilesMetadata) Keys() []string {
	keys := make([]string, 0, len(m.metadata))
	for k := range m.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MbtilesMetadata) Set(key string, value string) {
	m.metadata[key] = value
}

func (m *MbtilesMetadata) floats(key string, n int) ([]float64, error) {
	str, exists := m.Get(key)
	if !exists {
		return nil, errors.Newf("metadata is missing %s", key)
	}

	parts := strings.Split(str, ",")
	if len(parts) != n {
		return nil, errors.Newf("invalid %s metadata %q", key, str)
	}

	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", key)
		}
		out[i] = f
	}
	return out, nil
}

func (m *MbtilesMetadata) Bounds() (orb.Bound, error) {
	v, err := m.floats("bounds", 4)
	if err != nil {
		return orb.Bound{}, err
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// Center accepts both "lon,lat" and "lon,lat,zoom".
func (m *MbtilesMetadata) Center() (orb.Point, error) {
	str, _ := m.Get("center")
	n := 2
	if strings.Count(str, ",") == 2 {
		n = 3
	}
	v, err := m.floats("center", n)
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{v[0], v[1]}, nil
}

func (m *MbtilesMetadata) zoom(key string) (maptile.Zoom, error) {
	str, exists := m.Get(key)
	if !exists {
		return 0, errors.Newf("metadata is missing %s", key)
	}
	i, err := strconv.Atoi(str)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", key)
	}
	return maptile.Zoom(i), nil
}

func (m *MbtilesMetadata) MinZoom() (maptile.Zoom, error) {
	return m.zoom("minzoom")
}

func (m *MbtilesMetadata) MaxZoom() (maptile.Zoom, error) {
	return m.zoom("maxzoom")
}

func (m *MbtilesMetadata) Format() string {
	return m.metadata["format"]
}

func (m *MbtilesMetadata) Name() string {
	return m.metadata["name"]
}

// JSON returns the metadata as a generic map for formats that store JSON.
func (m *MbtilesMetadata) JSON() map[string]interface{} {
	out := make(map[string]interface{}, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}
