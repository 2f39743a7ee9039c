package tilepack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilemath"
)

// DiskMirror keeps tiles on disk as {root}/{z}/{x}/{z}/{x}/{y}.pbf. It is
// both a Source and a TileOutputter.
type DiskMirror struct {
	root     string
	hasTiles bool
}

func NewDiskMirror(dsn string) (*DiskMirror, error) {
	root, err := filepath.Abs(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", dsn)
	}
	return &DiskMirror{root: root}, nil
}

func (o *DiskMirror) Root() string {
	return o.root
}

// Path is where id is stored.
func (o *DiskMirror) Path(id tilemath.TileID) string {
	relPath := fmt.Sprintf("%d/%d/%d/%d/%d.pbf", id.Z, id.X, id.Z, id.X, id.Y)
	return filepath.Join(o.root, relPath)
}

func (o *DiskMirror) Close() error {
	return nil
}

func (o *DiskMirror) CreateTiles() error {
	if o.hasTiles {
		return nil
	}

	info, err := os.Stat(o.root)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(o.root, 0755); err != nil {
			return errors.Wrapf(err, "creating %s", o.root)
		}
	case err != nil:
		return errors.Wrapf(err, "checking %s", o.root)
	case !info.IsDir():
		return errors.Newf("root %s is already a file", o.root)
	}

	o.hasTiles = true
	return nil
}

func (o *DiskMirror) Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error) {
	data, err := os.ReadFile(o.Path(id))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrTileNotFound, "tile %s not on disk", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading tile %s", id)
	}
	return data, nil
}

// Save writes the tile through a temporary file so concurrent readers
// never see a partial tile.
func (o *DiskMirror) Save(id tilemath.TileID, data []byte) error {
	absPath := o.Path(id)
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	fh, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return errors.Wrapf(err, "saving tile %s", id)
	}
	defer os.Remove(fh.Name())

	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return errors.Wrapf(err, "saving tile %s", id)
	}
	if err := fh.Close(); err != nil {
		return errors.Wrapf(err, "saving tile %s", id)
	}
	return errors.Wrapf(os.Rename(fh.Name(), absPath), "saving tile %s", id)
}

// MirroredSource serves tiles from a disk mirror, falling back to an
// upstream source and mirroring what it returns.
type MirroredSource struct {
	Mirror   *DiskMirror
	Upstream Source
	Logger   logrus.FieldLogger
}

func (s *MirroredSource) Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error) {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	data, err := s.Mirror.Fetch(ctx, id)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrTileNotFound) {
		logger.WithError(err).WithField("tile", id.String()).Warn("Reading disk mirror failed")
	}

	data, err = s.Upstream.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.Mirror.Save(id, data); err != nil {
		logger.WithError(err).WithField("tile", id.String()).Warn("Mirroring tile to disk failed")
	}
	return data, nil
}
