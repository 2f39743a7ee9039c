package tilepack

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/cockroachdb/errors"

	"github.com/tilezen/go-tilemesh/tilemath"
)

type fakeDownloader struct {
	s3manageriface.DownloaderAPI
	objects map[string][]byte
	inputs  []*s3.GetObjectInput
}

func (d *fakeDownloader) DownloadWithContext(ctx aws.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*s3manager.Downloader)) (int64, error) {
	d.inputs = append(d.inputs, input)
	data, ok := d.objects[aws.StringValue(input.Key)]
	if !ok {
		return 0, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	n, err := w.WriteAt(data, 0)
	return int64(n), err
}

func TestS3Source_Fetch(t *testing.T) {
	d := &fakeDownloader{objects: map[string][]byte{
		"tiles/3/2/1.mvt": []byte("tile"),
	}}
	s, err := NewS3Source(S3SourceOptions{
		Bucket:        "bucket",
		PathTemplate:  "{l}/{z}/{x}/{y}.mvt",
		LayerName:     "tiles",
		RequesterPays: true,
		Downloader:    d,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Fetch(context.Background(), tilemath.NewTileID(3, 2, 1))
	if err != nil {
		t.Fatalf("Fetch() error = %+v", err)
	}
	if string(got) != "tile" {
		t.Errorf("Fetch() = %q", got)
	}
	if in := d.inputs[0]; aws.StringValue(in.Bucket) != "bucket" || aws.StringValue(in.RequestPayer) != "requester" {
		t.Errorf("GetObjectInput = %v", in)
	}

	if _, err := s.Fetch(context.Background(), tilemath.NewTileID(3, 2, 2)); !errors.Is(err, ErrTileNotFound) {
		t.Errorf("Fetch() of a missing key error = %v, want %v", err, ErrTileNotFound)
	}
}

func TestS3Source_Key(t *testing.T) {
	s, err := NewS3Source(S3SourceOptions{Bucket: "b", PathTemplate: "{h}/{z}/{x}/{y}.mvt", Downloader: &fakeDownloader{}})
	if err != nil {
		t.Fatal(err)
	}
	// md5("0/0/0.mvt") starts with 4d500
	if got, want := s.Key(tilemath.NewTileID(0, 0, 0)), "4d500/0/0/0.mvt"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestS3Source_Metatile(t *testing.T) {
	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, body := range map[string]string{
		"2/1/2.mvt": "wanted",
		"2/1/2.png": "raster",
		"3/2/4.mvt": "overzoomed",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	d := &fakeDownloader{objects: map[string][]byte{"3/2/1.zip": archive.Bytes()}}
	s, err := NewS3Source(S3SourceOptions{
		Bucket:        "bucket",
		PathTemplate:  "{z}/{x}/{y}.zip",
		MetatileSize:  8,
		MaxDetailZoom: 3,
		Downloader:    d,
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      tilemath.TileID
		want    string
		wantErr error
	}{
		{"tile inside metatile", tilemath.NewTileID(5, 9, 6), "wanted", nil},
		{"beyond max detail zoom", tilemath.NewTileID(6, 18, 12), "overzoomed", nil},
		{"absent from archive", tilemath.NewTileID(5, 8, 4), "", ErrTileNotFound},
		{"absent metatile", tilemath.NewTileID(5, 0, 0), "", ErrTileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Fetch(context.Background(), tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %+v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Fetch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewS3Source_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts S3SourceOptions
	}{
		{"no bucket", S3SourceOptions{Downloader: &fakeDownloader{}}},
		{"odd metatile size", S3SourceOptions{Bucket: "b", MetatileSize: 6, Downloader: &fakeDownloader{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewS3Source(tt.opts); err == nil {
				t.Error("NewS3Source() succeeded")
			}
		})
	}
}
