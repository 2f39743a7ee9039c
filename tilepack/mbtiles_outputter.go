package tilepack

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver

	"github.com/tilezen/go-tilemesh/tilemath"
)

const (
	batchSize = 1000
)

func NewMbtilesOutputter(dsn string) (*MbtilesOutputter, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dsn)
	}

	return &MbtilesOutputter{db: db}, nil
}

// MbtilesOutputter writes tiles into a deduplicating MBTiles archive.
type MbtilesOutputter struct {
	db         *sql.DB
	txn        *sql.Tx
	batchCount int
	hasTiles   bool
}

func (o *MbtilesOutputter) Close() error {
	var err error

	if o.txn != nil {
		err = o.txn.Commit()
		o.txn = nil
	}

	if o.db != nil {
		if err2 := o.db.Close(); err2 != nil {
			err = errors.CombineErrors(err, err2)
		}
	}

	return err
}

func (o *MbtilesOutputter) CreateTiles() error {
	if o.hasTiles {
		return nil
	}
	if _, err := o.db.Exec(`
		BEGIN TRANSACTION;
		CREATE TABLE IF NOT EXISTS map (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS map_index ON map (zoom_level, tile_column, tile_row);
		CREATE TABLE IF NOT EXISTS images (
			tile_data BLOB NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS images_id ON images (tile_id);
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT,
			value TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name);
		CREATE VIEW IF NOT EXISTS tiles AS
		SELECT
			map.zoom_level AS zoom_level,
			map.tile_column AS tile_column,
			map.tile_row AS tile_row,
			images.tile_data AS tile_data
		FROM map
		JOIN images ON images.tile_id = map.tile_id;
		COMMIT;
		PRAGMA synchronous=OFF;
	`); err != nil {
		return errors.Wrap(err, "creating mbtiles schema")
	}
	o.hasTiles = true
	return nil
}

func (o *MbtilesOutputter) begin() error {
	if err := o.CreateTiles(); err != nil {
		return err
	}
	if o.txn == nil {
		tx, err := o.db.Begin()
		if err != nil {
			return errors.Wrap(err, "starting transaction")
		}
		o.txn = tx
	}
	return nil
}

// Save stores id in the TMS row scheme MBTiles uses.
func (o *MbtilesOutputter) Save(id tilemath.TileID, data []byte) error {
	if err := o.begin(); err != nil {
		return err
	}

	hash := md5.Sum(data)
	tileID := hex.EncodeToString(hash[:])

	_, err := o.txn.Exec("INSERT OR REPLACE INTO images (tile_id, tile_data) VALUES (?, ?);", tileID, data)
	if err != nil {
		return errors.Wrapf(err, "saving tile %s", id)
	}

	_, err = o.txn.Exec("INSERT OR REPLACE INTO map (zoom_level, tile_column, tile_row, tile_id) VALUES (?, ?, ?, ?);", id.Z, id.X, tmsRow(id.Z, id.Y), tileID)
	if err != nil {
		return errors.Wrapf(err, "saving tile %s", id)
	}

	o.batchCount++

	if o.batchCount%batchSize == 0 {
		if err := o.txn.Commit(); err != nil {
			return errors.Wrap(err, "committing batch")
		}
		o.batchCount = 0
		o.txn = nil
	}

	return nil
}

// WriteMetadata replaces the metadata rows with m.
func (o *MbtilesOutputter) WriteMetadata(m *MbtilesMetadata) error {
	if err := o.begin(); err != nil {
		return err
	}
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		if _, err := o.txn.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?);", k, v); err != nil {
			return errors.Wrapf(err, "writing metadata %s", k)
		}
	}
	return nil
}
