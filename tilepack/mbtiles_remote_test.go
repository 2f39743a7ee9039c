package tilepack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/tilezen/go-tilemesh/tilemath"
)

type countingTransport struct {
	next     http.RoundTripper
	requests atomic.Int32
}

func (t *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.requests.Add(1)
	return t.next.RoundTrip(r)
}

func TestOpenRemoteMbtiles(t *testing.T) {
	dir := t.TempDir()
	out, err := NewMbtilesOutputter(filepath.Join(dir, "remote.mbtiles"))
	if err != nil {
		t.Fatal(err)
	}
	id := tilemath.NewTileID(3, 4, 5)
	if err := out.Save(id, []byte("remote tile")); err != nil {
		t.Fatalf("Save() error = %+v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %+v", err)
	}

	// FileServer answers HEAD and Range requests
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	transport := &countingTransport{next: srv.Client().Transport}
	src, err := OpenRemoteMbtiles(srv.URL+"/remote.mbtiles", transport, nil)
	if err != nil {
		t.Fatalf("OpenRemoteMbtiles() error = %+v", err)
	}
	defer src.Close()

	got, err := src.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch() error = %+v", err)
	}
	if string(got) != "remote tile" {
		t.Errorf("Fetch() = %q", got)
	}

	if _, err := src.Fetch(context.Background(), tilemath.NewTileID(3, 0, 0)); !errors.Is(err, ErrTileNotFound) {
		t.Errorf("Fetch() of a missing tile error = %v, want %v", err, ErrTileNotFound)
	}
	if transport.requests.Load() == 0 {
		t.Error("the archive was not read through the given transport")
	}
}
