package tilepack

import (
	"bytes"
	"compress/gzip"
	"hash"
	"hash/fnv"
	"io"
	"os"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/cockroachdb/errors"
	"github.com/protomaps/go-pmtiles/pmtiles"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilemath"
)

type offsetLen struct {
	offset uint64
	length uint32
}

// PmtilesOutputter writes a PMTiles v3 archive. Tile payloads are
// deduplicated by hash and gzip compressed; the directory is written on
// Close.
type PmtilesOutputter struct {
	tileset        *roaring64.Bitmap
	tiles          map[uint64]offsetLen
	hashFunc       hash.Hash
	offsetMap      map[string]offsetLen
	tileData       *os.File
	compressBuffer *bytes.Buffer
	compressor     *gzip.Writer
	header         pmtiles.HeaderV3
	metadata       *MbtilesMetadata
	outFile        *os.File
	logger         logrus.FieldLogger
}

func NewPmtilesOutputter(dsn string, metadata *MbtilesMetadata, logger logrus.FieldLogger) (*PmtilesOutputter, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metadata == nil {
		metadata = NewMbtilesMetadata(nil)
	}

	tmpFile, err := os.CreateTemp("", "pmtiles-tiledata")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp file")
	}

	outFile, err := os.Create(dsn)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, errors.Wrap(err, "creating pmtiles output file")
	}

	compressBuffer := new(bytes.Buffer)
	return &PmtilesOutputter{
		outFile:        outFile,
		tileset:        roaring64.New(),
		tiles:          make(map[uint64]offsetLen),
		hashFunc:       fnv.New128a(),
		tileData:       tmpFile,
		offsetMap:      make(map[string]offsetLen),
		compressBuffer: compressBuffer,
		compressor:     gzip.NewWriter(compressBuffer),
		header: pmtiles.HeaderV3{
			SpecVersion:     3,
			TileType:       pmtiles.Mvt,
			TileCompression: pmtiles.Gzip,
			MinZoom:         255,
		},
		metadata: metadata,
		logger:   logger,
	}, nil
}

func (p *PmtilesOutputter) CreateTiles() error {
	return nil
}

func (p *PmtilesOutputter) Save(id tilemath.TileID, data []byte) error {
	// Store tile IDs so we can iterate through them in the correct order later
	tileID := pmtiles.ZxyToID(uint8(id.Z), id.X, id.Y)
	p.tileset.Add(tileID)

	z := uint8(id.Z)
	p.header.MinZoom = min(p.header.MinZoom, z)
	p.header.MaxZoom = max(p.header.MaxZoom, z)

	// Hash the tile data to use as a key for dedupe
	p.hashFunc.Reset()
	p.hashFunc.Write(data)
	sumString := string(p.hashFunc.Sum(nil))
	found, ok := p.offsetMap[sumString]

	// If the hash is not found, append the tile data to the temp file and store the
	// offset+length
	if !ok {
		offset, err := p.tileData.Seek(0, io.SeekEnd)
		if err != nil {
			return errors.Wrap(err, "seeking tile data")
		}

		newData := data
		if !IsGzipped(data) {
			p.compressBuffer.Reset()
			p.compressor.Reset(p.compressBuffer)
			if _, err := p.compressor.Write(data); err != nil {
				return errors.Wrapf(err, "compressing tile %s", id)
			}
			if err := p.compressor.Close(); err != nil {
				return errors.Wrapf(err, "compressing tile %s", id)
			}
			newData = p.compressBuffer.Bytes()
		}

		bytesWritten, err := p.tileData.Write(newData)
		if err != nil {
			return errors.Wrapf(err, "writing tile %s", id)
		}

		found = offsetLen{
			offset: uint64(offset),
			length: uint32(bytesWritten),
		}
		p.offsetMap[sumString] = found
	}

	p.tiles[tileID] = found
	return nil
}

// entries lists the directory in tile id order, folding runs of
// consecutive ids with identical contents into one entry.
func (p *PmtilesOutputter) entries() []pmtiles.EntryV3 {
	entries := make([]pmtiles.EntryV3, 0, len(p.tiles))
	it := p.tileset.Iterator()
	for it.HasNext() {
		id := it.Next()
		found := p.tiles[id]

		if n := len(entries); n > 0 {
			last := &entries[n-1]
			if last.Offset == found.offset && last.TileID+uint64(last.RunLength) == id {
				last.RunLength++
				continue
			}
		}
		entries = append(entries, pmtiles.EntryV3{
			TileID:    id,
			Offset:    found.offset,
			Length:    found.length,
			RunLength: 1,
		})
	}
	return entries
}

func (p *PmtilesOutputter) Close() error {
	defer p.outFile.Close()
	defer os.Remove(p.tileData.Name())
	defer p.tileData.Close()

	entries := p.entries()
	p.header.AddressedTilesCount = p.tileset.GetCardinality()
	p.header.TileEntriesCount = uint64(len(entries))
	p.header.TileContentsCount = uint64(len(p.offsetMap))
	if p.header.MinZoom > p.header.MaxZoom {
		p.header.MinZoom = 0
	}
	if b, err := p.metadata.Bounds(); err == nil {
		p.header.MinLonE7 = int32(b.Min.X() * 1e7)
		p.header.MinLatE7 = int32(b.Min.Y() * 1e7)
		p.header.MaxLonE7 = int32(b.Max.X() * 1e7)
		p.header.MaxLatE7 = int32(b.Max.Y() * 1e7)
		c := b.Center()
		p.header.CenterLonE7 = int32(c.X() * 1e7)
		p.header.CenterLatE7 = int32(c.Y() * 1e7)
		p.header.CenterZoom = p.header.MinZoom
	}

	rootBytes, leavesBytes, numLeaves := optimizeDirectories(entries, 16384-pmtiles.HeaderV3LenBytes, pmtiles.Gzip)

	log := p.logger.WithFields(logrus.Fields{
		"tiles":      p.tileset.GetCardinality(),
		"entries":    len(entries),
		"contents":   len(p.offsetMap),
		"root_bytes": len(rootBytes),
	})
	if numLeaves > 0 {
		log = log.WithFields(logrus.Fields{"leaves": numLeaves, "leaf_bytes": len(leavesBytes)})
	}
	log.Info("Writing pmtiles")

	metadataBytes, err := pmtiles.SerializeMetadata(p.metadata.JSON(), pmtiles.Gzip)
	if err != nil {
		return errors.Wrap(err, "serializing pmtiles metadata")
	}

	offset, err := p.tileData.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.Wrap(err, "seeking tile data")
	}

	p.header.InternalCompression = pmtiles.Gzip
	p.header.RootOffset = pmtiles.HeaderV3LenBytes
	p.header.RootLength = uint64(len(rootBytes))
	p.header.MetadataOffset = p.header.RootOffset + p.header.RootLength
	p.header.MetadataLength = uint64(len(metadataBytes))
	p.header.LeafDirectoryOffset = p.header.MetadataOffset + p.header.MetadataLength
	p.header.LeafDirectoryLength = uint64(len(leavesBytes))
	p.header.TileDataOffset = p.header.LeafDirectoryOffset + p.header.LeafDirectoryLength
	p.header.TileDataLength = uint64(offset)

	for _, part := range []struct {
		name string
		data []byte
	}{
		{"header", pmtiles.SerializeHeader(p.header)},
		{"root directory", rootBytes},
		{"metadata", metadataBytes},
		{"leaf directory", leavesBytes},
	} {
		if _, err := p.outFile.Write(part.data); err != nil {
			return errors.Wrapf(err, "writing pmtiles %s", part.name)
		}
	}

	if _, err := p.tileData.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking to start of tile data")
	}
	if _, err := io.Copy(p.outFile, p.tileData); err != nil {
		return errors.Wrap(err, "copying tile data to outfile")
	}
	return nil
}

func optimizeDirectories(entries []pmtiles.EntryV3, targetRootLen int, compression pmtiles.Compression) ([]byte, []byte, int) {
	if len(entries) < 16384 {
		testRootBytes := pmtiles.SerializeEntries(entries, compression)
		if len(testRootBytes) <= targetRootLen {
			// The entire directory fits into the target length
			return testRootBytes, make([]byte, 0), 0
		}
	}

	// Root directory is leaf pointers only. Grow the leaves until the
	// root fits.
	leafSize := float32(len(entries)) / 3500
	if leafSize < 4096 {
		leafSize = 4096
	}

	for {
		rootBytes, leavesBytes, numLeaves := buildRootsLeaves(entries, int(leafSize), compression)
		if len(rootBytes) <= targetRootLen {
			return rootBytes, leavesBytes, numLeaves
		}
		leafSize *= 1.2
	}
}

func buildRootsLeaves(entries []pmtiles.EntryV3, leafSize int, compression pmtiles.Compression) ([]byte, []byte, int) {
	rootEntries := make([]pmtiles.EntryV3, 0)
	leavesBytes := make([]byte, 0)
	numLeaves := 0

	for i := 0; i < len(entries); i += leafSize {
		numLeaves++
		end := min(i+leafSize, len(entries))
		serialized := pmtiles.SerializeEntries(entries[i:end], compression)

		rootEntries = append(rootEntries, pmtiles.EntryV3{
			TileID:    entries[i].TileID,
			Offset:    uint64(len(leavesBytes)),
			Length:    uint32(len(serialized)),
			RunLength: 0,
		})
		leavesBytes = append(leavesBytes, serialized...)
	}

	rootBytes := pmtiles.SerializeEntries(rootEntries, compression)
	return rootBytes, leavesBytes, numLeaves
}
