// Package config loads the settings shared by the tilemesh commands from a
// TOML file, TILEMESH_* environment variables and defaults.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/tilezen/go-tilemesh/tilepack"
)

// Source kinds.
const (
	SourceHTTP    = "http"
	SourceMbtiles = "mbtiles"
	SourcePmtiles = "pmtiles"
	SourceS3      = "s3"
)

var sourceKinds = []string{SourceHTTP, SourceMbtiles, SourcePmtiles, SourceS3}

type Config struct {
	Cache  CacheConfig  `mapstructure:"cache"`
	Source SourceConfig `mapstructure:"source"`
	Style  StyleConfig  `mapstructure:"style"`
	Screen ScreenConfig `mapstructure:"screen"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

type CacheConfig struct {
	// Dir mirrors fetched tiles on disk. Empty disables the mirror.
	Dir        string `mapstructure:"dir"`
	MaxLoaders int    `mapstructure:"max_loaders"`
	Features   int    `mapstructure:"features"`
}

type SourceConfig struct {
	Kind string `mapstructure:"kind"`
	// URL is a {z}/{x}/{y} template for http, or the address of a remote
	// mbtiles archive.
	URL           string        `mapstructure:"url"`
	Path          string        `mapstructure:"path"`
	Bucket        string        `mapstructure:"bucket"`
	RequesterPays bool          `mapstructure:"requester_pays"`
	MetatileSize  uint32        `mapstructure:"metatile_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
}

type StyleConfig struct {
	Path          string   `mapstructure:"path"`
	SelectionTags []string `mapstructure:"selection_tags"`
}

type ScreenConfig struct {
	Width    float64 `mapstructure:"width"`
	Height   float64 `mapstructure:"height"`
	TileSize float64 `mapstructure:"tile_size"`
	Padding  float64 `mapstructure:"padding"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Dir      string `mapstructure:"dir"`
	Terminal bool   `mapstructure:"terminal"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.max_loaders", 0)
	v.SetDefault("cache.features", 4096)

	v.SetDefault("source.kind", SourceHTTP)
	v.SetDefault("source.url", "")
	v.SetDefault("source.path", "")
	v.SetDefault("source.bucket", "")
	v.SetDefault("source.requester_pays", false)
	v.SetDefault("source.metatile_size", 0)
	v.SetDefault("source.timeout", 60*time.Second)
	v.SetDefault("source.retries", 5)

	v.SetDefault("style.path", "")
	v.SetDefault("style.selection_tags", tilepack.DefaultSelectionTags)

	v.SetDefault("screen.width", 1280)
	v.SetDefault("screen.height", 720)
	v.SetDefault("screen.tile_size", 512)
	v.SetDefault("screen.padding", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.terminal", true)

	v.SetDefault("server.listen", ":8080")
}

// Load reads path, which may be empty to use only defaults and the
// environment. TILEMESH_SOURCE_URL overrides source.url and so on.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("tilemesh")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigType("toml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", v.ConfigFileUsed())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if !slices.Contains(sourceKinds, c.Source.Kind) {
		return errors.Newf("source.kind %q is not one of %s", c.Source.Kind, strings.Join(sourceKinds, ", "))
	}
	switch c.Source.Kind {
	case SourceHTTP:
		if c.Source.URL == "" {
			return errors.New("source.url is required for http sources")
		}
	case SourceMbtiles:
		if c.Source.Path == "" && c.Source.URL == "" {
			return errors.New("source.path or source.url is required for mbtiles sources")
		}
	case SourcePmtiles:
		if c.Source.Path == "" {
			return errors.New("source.path is required for pmtiles sources")
		}
	case SourceS3:
		if c.Source.Bucket == "" {
			return errors.New("source.bucket is required for s3 sources")
		}
	}
	if c.Cache.Features <= 0 {
		return errors.Newf("cache.features must be positive, got %d", c.Cache.Features)
	}
	if c.Cache.MaxLoaders < 0 {
		return errors.Newf("cache.max_loaders must not be negative, got %d", c.Cache.MaxLoaders)
	}
	if c.Screen.TileSize <= 0 {
		return errors.Newf("screen.tile_size must be positive, got %g", c.Screen.TileSize)
	}
	return nil
}
