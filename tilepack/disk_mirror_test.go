package tilepack

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/tilezen/go-tilemesh/tilemath"
)

func TestDiskMirror(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mirror")
	m, err := NewDiskMirror(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CreateTiles(); err != nil {
		t.Fatalf("CreateTiles() error = %+v", err)
	}

	id := tilemath.NewTileID(4, 3, 2)
	if got, want := m.Path(id), filepath.Join(dir, "4/3/4/3/2.pbf"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	if _, err := m.Fetch(context.Background(), id); !errors.Is(err, ErrTileNotFound) {
		t.Errorf("Fetch() before Save error = %v, want %v", err, ErrTileNotFound)
	}

	if err := m.Save(id, []byte("first")); err != nil {
		t.Fatalf("Save() error = %+v", err)
	}
	if err := m.Save(id, []byte("second")); err != nil {
		t.Fatalf("Save() error = %+v", err)
	}

	got, err := m.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch() error = %+v", err)
	}
	if string(got) != "second" {
		t.Errorf("Fetch() = %q, want %q", got, "second")
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(m.Path(id)), ".tile-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestDiskMirror_CreateTilesOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	m, err := NewDiskMirror(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CreateTiles(); err == nil {
		t.Error("CreateTiles() over a file succeeded")
	}
}

func TestMirroredSource(t *testing.T) {
	m, err := NewDiskMirror(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	upstream := SourceFunc(func(ctx context.Context, id tilemath.TileID) ([]byte, error) {
		calls.Add(1)
		if id.Z > 10 {
			return nil, errors.Wrapf(ErrTileNotFound, "tile %s", id)
		}
		return []byte(id.String()), nil
	})
	s := &MirroredSource{Mirror: m, Upstream: upstream}

	id := tilemath.NewTileID(2, 1, 1)
	for i := 0; i < 3; i++ {
		got, err := s.Fetch(context.Background(), id)
		if err != nil {
			t.Fatalf("Fetch() error = %+v", err)
		}
		if string(got) != "2/1/1" {
			t.Errorf("Fetch() = %q", got)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}

	if _, err := s.Fetch(context.Background(), tilemath.NewTileID(11, 0, 0)); !errors.Is(err, ErrTileNotFound) {
		t.Errorf("Fetch() error = %v, want %v", err, ErrTileNotFound)
	}
}
