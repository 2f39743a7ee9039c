package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tilezen/go-tilemesh/feature"
	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

func TestDescribe(t *testing.T) {
	features := feature.NewCollection(0, nil)
	tile, err := tilepack.Decode(tilemath.NewTileID(2, 1, 1), nil, features, nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := describe(&buf, tile, features); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"tile 2/1/1", "1 objects", tilepack.BackgroundType} {
		if !strings.Contains(out, want) {
			t.Errorf("describe() output is missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	hits(&buf, tile, orb.Point{10, 10})
	if !strings.Contains(buf.String(), "1 objects at 10,10") {
		t.Errorf("hits() = %q", buf.String())
	}
}

func Test_parsePoint(t *testing.T) {
	if p, err := parsePoint("12.5, 3"); err != nil || p != (orb.Point{12.5, 3}) {
		t.Errorf("parsePoint() = %v, %v", p, err)
	}
	if _, err := parsePoint("1"); err == nil {
		t.Error("parsePoint(\"1\") succeeded")
	}
}
