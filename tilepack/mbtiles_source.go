package tilepack

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilemath"
)

// MbtilesSource reads tiles from an MBTiles archive. Rows are stored in
// the TMS scheme, so y is flipped on the way in.
type MbtilesSource struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

func NewMbtilesSource(dsn string, logger logrus.FieldLogger) (*MbtilesSource, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dsn)
	}
	return NewMbtilesSourceWithDatabase(db, logger), nil
}

func NewMbtilesSourceWithDatabase(db *sql.DB, logger logrus.FieldLogger) *MbtilesSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MbtilesSource{db: db, logger: logger}
}

// Close gracefully tears down the mbtiles connection.
func (o *MbtilesSource) Close() error {
	if o.db == nil {
		return nil
	}
	return o.db.Close()
}

func tmsRow(z, y uint32) uint32 {
	return (uint32(1) << z) - 1 - y
}

// Fetch returns data for the given tile.
func (o *MbtilesSource) Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error) {
	var data []byte

	result := o.db.QueryRowContext(ctx, "SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=? LIMIT 1", id.Z, id.X, tmsRow(id.Z, id.Y))
	err := result.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrTileNotFound, "tile %s not in archive", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "querying tile %s", id)
	}
	return data, nil
}

// VisitAllTiles runs the given function on all tiles in this mbtiles archive.
func (o *MbtilesSource) VisitAllTiles(visitor func(tilemath.TileID, []byte)) error {
	rows, err := o.db.Query("SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles")
	if err != nil {
		return errors.Wrap(err, "listing tiles")
	}
	defer rows.Close()

	var z, x, y uint32
	for rows.Next() {
		data := []byte{}
		if err := rows.Scan(&z, &x, &y, &data); err != nil {
			o.logger.WithError(err).Warn("Couldn't scan row")
			continue
		}
		visitor(tilemath.NewTileID(z, x, tmsRow(z, y)), data)
	}
	return errors.Wrap(rows.Err(), "listing tiles")
}

// Metadata reads the name/value metadata table.
func (o *MbtilesSource) Metadata() (*MbtilesMetadata, error) {
	rows, err := o.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, errors.Wrap(err, "reading metadata")
	}
	defer rows.Close()

	m := NewMbtilesMetadata(map[string]string{})
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "reading metadata")
		}
		m.Set(k, v)
	}
	return m, errors.Wrap(rows.Err(), "reading metadata")
}
