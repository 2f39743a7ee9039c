package tilepack

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/protomaps/go-pmtiles/pmtiles"

	"github.com/tilezen/go-tilemesh/tilemath"
)

// maxDirectoryDepth bounds how many leaf directories a lookup follows.
const maxDirectoryDepth = 4

// maxPmtilesRead caps any single directory or tile read. Lengths come
// from the archive and are not trusted beyond this.
const maxPmtilesRead = 64 << 20

// findEntry returns the entry covering tileID: a run with
// TileID <= tileID < TileID+RunLength, or the leaf pointer (RunLength 0)
// whose range starts at or before tileID.
func findEntry(entries []pmtiles.EntryV3, tileID uint64) (pmtiles.EntryV3, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].TileID > tileID
	})
	if i == 0 {
		return pmtiles.EntryV3{}, false
	}
	e := entries[i-1]
	if e.RunLength == 0 || tileID-e.TileID < uint64(e.RunLength) {
		return e, true
	}
	return pmtiles.EntryV3{}, false
}

// PmtilesSource reads tiles from a PMTiles v3 archive.
type PmtilesSource struct {
	r      io.ReaderAt
	closer io.Closer
	header pmtiles.HeaderV3
	root   []pmtiles.EntryV3

	mu     sync.Mutex
	leaves map[uint64][]pmtiles.EntryV3
}

func NewPmtilesSource(path string) (*PmtilesSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	s, err := NewPmtilesSourceFromReader(f, f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return s, nil
}

// NewPmtilesSourceFromReader reads the header and root directory from r.
// closer may be nil.
func NewPmtilesSourceFromReader(r io.ReaderAt, closer io.Closer) (*PmtilesSource, error) {
	s := &PmtilesSource{r: r, closer: closer, leaves: make(map[uint64][]pmtiles.EntryV3)}

	buf, err := s.read(0, pmtiles.HeaderV3LenBytes)
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	s.header, err = pmtiles.DeserializeHeader(buf)
	if err != nil {
		return nil, errors.Wrap(err, "parsing header")
	}

	root, err := s.read(s.header.RootOffset, s.header.RootLength)
	if err != nil {
		return nil, errors.Wrap(err, "reading root directory")
	}
	s.root = pmtiles.DeserializeEntries(bytes.NewBuffer(root), s.header.InternalCompression)
	return s, nil
}

func (s *PmtilesSource) Header() pmtiles.HeaderV3 {
	return s.header
}

func (s *PmtilesSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *PmtilesSource) read(offset, length uint64) ([]byte, error) {
	if length > maxPmtilesRead {
		return nil, errors.Mark(errors.Newf("read of %d bytes at %d exceeds %d", length, offset, maxPmtilesRead), ErrMalformedTile)
	}
	buf := make([]byte, length)
	if _, err := s.r.ReadAt(buf, int64(offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *PmtilesSource) leaf(offset uint64, length uint32) ([]pmtiles.EntryV3, error) {
	s.mu.Lock()
	entries, ok := s.leaves[offset]
	s.mu.Unlock()
	if ok {
		return entries, nil
	}

	buf, err := s.read(s.header.LeafDirectoryOffset+offset, uint64(length))
	if err != nil {
		return nil, errors.Wrap(err, "reading leaf directory")
	}
	entries = pmtiles.DeserializeEntries(bytes.NewBuffer(buf), s.header.InternalCompression)

	s.mu.Lock()
	s.leaves[offset] = entries
	s.mu.Unlock()
	return entries, nil
}

func (s *PmtilesSource) Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error) {
	if id.Z > uint32(s.header.MaxZoom) || id.Z < uint32(s.header.MinZoom) {
		return nil, errors.Wrapf(ErrTileNotFound, "tile %s outside archive zooms", id)
	}

	tileID := pmtiles.ZxyToID(uint8(id.Z), id.X, id.Y)
	entries := s.root
	for depth := 0; depth < maxDirectoryDepth; depth++ {
		entry, ok := findEntry(entries, tileID)
		if !ok {
			return nil, errors.Wrapf(ErrTileNotFound, "tile %s not in archive", id)
		}
		if entry.RunLength > 0 {
			data, err := s.read(s.header.TileDataOffset+entry.Offset, uint64(entry.Length))
			return data, errors.Wrapf(err, "reading tile %s", id)
		}

		var err error
		entries, err = s.leaf(entry.Offset, entry.Length)
		if err != nil {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrMalformedTile, "tile %s: directory nesting deeper than %d", id, maxDirectoryDepth)
}
