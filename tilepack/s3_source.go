package tilepack

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilemath"
)

const tileScale = 2

// S3SourceOptions configures an S3Source. PathTemplate may reference
// {z}, {x}, {y}, {l} (the layer name) and {h}, the first five hex digits
// of the md5 of the object's z/x/y name.
type S3SourceOptions struct {
	Bucket        string
	PathTemplate  string
	RequesterPays bool
	LayerName     string
	Format        string

	// MetatileSize is the edge length in tiles of zipped metatiles. Zero
	// means objects hold single tiles.
	MetatileSize  uint32
	MaxDetailZoom uint32

	Downloader s3manageriface.DownloaderAPI
	Logger     logrus.FieldLogger
}

// S3Source fetches tiles or metatile archives from an S3 bucket.
type S3Source struct {
	opts S3SourceOptions
}

func NewS3Source(opts S3SourceOptions) (*S3Source, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 source needs a bucket")
	}
	if opts.PathTemplate == "" {
		opts.PathTemplate = "{z}/{x}/{y}.mvt"
	}
	if opts.Format == "" {
		opts.Format = "mvt"
	}
	if opts.MetatileSize == 1 || opts.MetatileSize&(opts.MetatileSize-1) != 0 {
		return nil, errors.Newf("metatile size %d is not a power of two of at least %d", opts.MetatileSize, tileScale)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	if opts.Downloader == nil {
		sess, err := session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating aws session")
		}

		opts.Downloader = s3manager.NewDownloader(
			sess,
			func(downloader *s3manager.Downloader) {
				// See https://levyeran.medium.com/high-memory-allocations-and-gc-cycles-while-downloading-large-s3-objects-using-the-aws-sdk-for-go-e776a136c5d0
				downloader.BufferProvider = s3manager.NewPooledBufferedWriterReadFromProvider(15 * 1024 * 1024)
			},
		)
	}

	return &S3Source{opts: opts}, nil
}

func log2(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return uint32(bits.Len32(n) - 1)
}

// metatile returns the metatile holding id and the zip entry name of id
// within it.
func (s *S3Source) metatile(id tilemath.TileID) (tilemath.TileID, string) {
	metaZoom := log2(s.opts.MetatileSize)
	deltaZoom := metaZoom - log2(tileScale)

	var z uint32
	if id.Z > deltaZoom {
		z = id.Z - deltaZoom
	}
	// Beyond the max detail zoom, all tiles are in the metatile
	if s.opts.MaxDetailZoom > 0 && z > s.opts.MaxDetailZoom {
		z = s.opts.MaxDetailZoom
	}

	offsetZ := id.Z - z
	meta := tilemath.TileID{X: id.X >> offsetZ, Y: id.Y >> offsetZ, Z: z}
	offsetX := id.X - meta.X<<offsetZ
	offsetY := id.Y - meta.Y<<offsetZ
	return meta, fmt.Sprintf("%d/%d/%d.%s", offsetZ, offsetX, offsetY, s.opts.Format)
}

// Key returns the object key for t, which is a metatile id when
// metatiles are configured.
func (s *S3Source) Key(t tilemath.TileID) string {
	ext := s.opts.Format
	if s.opts.MetatileSize > 0 {
		ext = "zip"
	}
	hash := md5.Sum([]byte(fmt.Sprintf("%d/%d/%d.%s", t.Z, t.X, t.Y, ext)))
	hashHex := hex.EncodeToString(hash[:])

	return strings.NewReplacer(
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
		"{z}", strconv.FormatUint(uint64(t.Z), 10),
		"{l}", s.opts.LayerName,
		"{h}", hashHex[:5]).Replace(s.opts.PathTemplate)
}

func (s *S3Source) download(ctx context.Context, key string) ([]byte, error) {
	buf := &aws.WriteAtBuffer{}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}
	if s.opts.RequesterPays {
		input.RequestPayer = aws.String("requester")
	}

	if _, err := s.opts.Downloader.DownloadWithContext(ctx, buf, input); err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, errors.Wrapf(ErrTileNotFound, "s3://%s/%s", s.opts.Bucket, key)
		}
		return nil, errors.Wrapf(err, "downloading s3://%s/%s", s.opts.Bucket, key)
	}
	return buf.Bytes(), nil
}

func (s *S3Source) Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error) {
	if s.opts.MetatileSize == 0 {
		return s.download(ctx, s.Key(id))
	}

	meta, name := s.metatile(id)
	key := s.Key(meta)
	archive, err := s.download(ctx, key)
	if err != nil {
		return nil, err
	}

	zipped, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, errors.Wrapf(err, "unzipping metatile %s", key)
	}

	for _, zf := range zipped.File {
		if zf.Name != name {
			continue
		}
		r, err := zf.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s in %s", name, key)
		}
		defer r.Close()

		data, err := io.ReadAll(r)
		return data, errors.Wrapf(err, "reading %s in %s", name, key)
	}

	s.opts.Logger.WithFields(logrus.Fields{"tile": id.String(), "metatile": key}).Debug("Tile missing from metatile")
	return nil, errors.Wrapf(ErrTileNotFound, "%s not in metatile %s", name, key)
}
