package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tilemesh.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[source]
kind = "http"
url = "https://tiles.example.com/{z}/{x}/{y}.mvt"
timeout = "5s"

[style]
path = "style.css"
selection_tags = ["class"]

[cache]
max_loaders = 8
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %+v", err)
	}

	if c.Source.URL != "https://tiles.example.com/{z}/{x}/{y}.mvt" || c.Source.Timeout != 5*time.Second {
		t.Errorf("source = %+v", c.Source)
	}
	if !reflect.DeepEqual(c.Style, StyleConfig{Path: "style.css", SelectionTags: []string{"class"}}) {
		t.Errorf("style = %+v", c.Style)
	}
	want := CacheConfig{Dir: "cache", MaxLoaders: 8, Features: 4096}
	if c.Cache != want {
		t.Errorf("cache = %+v, want %+v", c.Cache, want)
	}
	if c.Server.Listen != ":8080" || c.Screen.TileSize != 512 || c.Source.Retries != 5 || !c.Log.Terminal {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("TILEMESH_SOURCE_URL", "http://localhost/{z}/{x}/{y}")
	t.Setenv("TILEMESH_SERVER_LISTEN", ":9000")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %+v", err)
	}
	if c.Source.URL != "http://localhost/{z}/{x}/{y}" || c.Server.Listen != ":9000" {
		t.Errorf("environment not applied: %+v %+v", c.Source, c.Server)
	}
	if !reflect.DeepEqual(c.Style.SelectionTags, tilepack.DefaultSelectionTags) {
		t.Errorf("selection tags = %v", c.Style.SelectionTags)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", "[source]\nkind = \"ftp\"\nurl = \"x\""},
		{"http without url", "[source]\nkind = \"http\""},
		{"pmtiles without path", "[source]\nkind = \"pmtiles\""},
		{"s3 without bucket", "[source]\nkind = \"s3\""},
		{"no features", "[source]\nurl = \"x\"\n[cache]\nfeatures = -1"},
		{"not toml", "[source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() succeeded")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestConfig_OpenSource(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "tiles.mbtiles")

	out, err := tilepack.NewMbtilesOutputter(archive)
	if err != nil {
		t.Fatal(err)
	}
	id := tilemath.NewTileID(1, 1, 0)
	if err := out.Save(id, []byte("data")); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	c := &Config{
		Cache:  CacheConfig{Dir: filepath.Join(dir, "mirror"), Features: 1},
		Source: SourceConfig{Kind: SourceMbtiles, Path: archive},
	}
	src, closer, err := c.OpenSource(nil)
	if err != nil {
		t.Fatalf("OpenSource() error = %+v", err)
	}
	defer closer.Close()

	if _, ok := src.(*tilepack.MirroredSource); !ok {
		t.Errorf("OpenSource() = %T, want a mirrored source", src)
	}
	got, err := src.Fetch(context.Background(), id)
	if err != nil || string(got) != "data" {
		t.Fatalf("Fetch() = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mirror", "1/1/1/1/0.pbf")); err != nil {
		t.Errorf("tile was not mirrored: %v", err)
	}
}
