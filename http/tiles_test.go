package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestTileHandler(t *testing.T) {
	packed := gzipped(t, []byte("packed"))
	src := tilepack.SourceFunc(func(ctx context.Context, id tilemath.TileID) ([]byte, error) {
		switch id {
		case tilemath.NewTileID(1, 0, 0):
			return []byte("plain"), nil
		case tilemath.NewTileID(1, 1, 0):
			return packed, nil
		case tilemath.NewTileID(1, 1, 1):
			return nil, errors.New("upstream down")
		}
		return nil, errors.Wrapf(tilepack.ErrTileNotFound, "tile %s", id)
	})
	router := NewRouter(RouterOptions{Source: src})

	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		status         int
		encoding       string
		body           []byte
	}{
		{"plain", "/tiles/1/0/0.pbf", "", 200, "", []byte("plain")},
		{"gzip passed through", "/tiles/1/1/0.pbf", "gzip, deflate", 200, "gzip", packed},
		{"gzip inflated", "/tiles/1/1/0.pbf", "", 200, "", []byte("packed")},
		{"missing", "/tiles/1/0/1.pbf", "", 404, "", nil},
		{"outside pyramid", "/tiles/1/2/0.pbf", "", 404, "", nil},
		{"not a number", "/tiles/a/0/0.pbf", "", 404, "", nil},
		{"upstream error", "/tiles/1/1/1.pbf", "", 502, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get("Content-Encoding"); got != tt.encoding {
				t.Errorf("Content-Encoding = %q, want %q", got, tt.encoding)
			}
			if tt.body != nil && !bytes.Equal(rec.Body.Bytes(), tt.body) {
				t.Errorf("body = %q, want %q", rec.Body.Bytes(), tt.body)
			}
		})
	}
}
