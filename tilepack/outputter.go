package tilepack

import (
	"github.com/tilezen/go-tilemesh/tilemath"
)

type TileOutputter interface {
	CreateTiles() error
	Save(id tilemath.TileID, data []byte) error
	Close() error
}
