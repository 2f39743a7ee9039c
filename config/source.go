package config

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilepack"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSource builds the configured tile source. When cache.dir is set the
// source is fronted by a disk mirror. The returned closer releases any
// archive the source holds open.
func (c *Config) OpenSource(logger logrus.FieldLogger) (tilepack.Source, io.Closer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	src, closer, err := c.openUpstream(logger)
	if err != nil {
		return nil, nil, err
	}
	if c.Cache.Dir == "" {
		return src, closer, nil
	}

	mirror, err := tilepack.NewDiskMirror(c.Cache.Dir)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	if err := mirror.CreateTiles(); err != nil {
		closer.Close()
		return nil, nil, err
	}
	return &tilepack.MirroredSource{Mirror: mirror, Upstream: src, Logger: logger}, closer, nil
}

func (c *Config) openUpstream(logger logrus.FieldLogger) (tilepack.Source, io.Closer, error) {
	s := c.Source
	switch s.Kind {
	case SourceMbtiles:
		if s.Path == "" && (strings.HasPrefix(s.URL, "http://") || strings.HasPrefix(s.URL, "https://")) {
			src, err := tilepack.OpenRemoteMbtiles(s.URL, nil, logger)
			return src, src, err
		}
		src, err := tilepack.NewMbtilesSource(s.Path, logger)
		return src, src, err
	case SourcePmtiles:
		src, err := tilepack.NewPmtilesSource(s.Path)
		return src, src, err
	case SourceS3:
		src, err := tilepack.NewS3Source(tilepack.S3SourceOptions{
			Bucket:        s.Bucket,
			PathTemplate:  s.Path,
			RequesterPays: s.RequesterPays,
			MetatileSize:  s.MetatileSize,
			Logger:        logger,
		})
		return src, nopCloser{}, err
	}

	src, err := tilepack.NewHTTPSource(tilepack.HTTPSourceOptions{
		URLTemplate: s.URL,
		Timeout:     s.Timeout,
		Retries:     s.Retries,
		Logger:      logger,
	})
	return src, nopCloser{}, err
}
