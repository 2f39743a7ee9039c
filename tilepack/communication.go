package tilepack

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/tilezen/go-tilemesh/tilemath"
)

// ErrTileNotFound is returned by a Source that has no data for a tile.
var ErrTileNotFound = errors.New("tile not found")

// Source fetches the raw bytes of a tile. Payloads may be gzip compressed.
type Source interface {
	Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, id tilemath.TileID) ([]byte, error)

func (f SourceFunc) Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error) {
	return f(ctx, id)
}

type TileRequest struct {
	ID tilemath.TileID
}

type TileResponse struct {
	ID      tilemath.TileID
	Data    []byte
	Elapsed float64
}
