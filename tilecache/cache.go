// Package tilecache loads decoded tiles in the background and keeps them
// in memory. Requests are deduplicated per tile id and never block; the
// owner moves finished loads into the cache with FinalizeLoadedTiles.
package tilecache

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"github.com/tilezen/go-tilemesh/feature"
	"github.com/tilezen/go-tilemesh/tilemath"
	"github.com/tilezen/go-tilemesh/tilepack"
)

// completionBuffer is how many finished loads can wait for
// FinalizeLoadedTiles before loaders block.
const completionBuffer = 64

type Options struct {
	Source tilepack.Source
	// MaxLoaders bounds the loaders running at once. Zero runs one
	// goroutine per requested tile.
	MaxLoaders int
	Logger     logrus.FieldLogger
	Metrics    *Metrics
}

// Handle shares a cached tile between the cache and its readers.
type Handle struct {
	mu   sync.RWMutex
	tile *tilepack.Tile
}

func (h *Handle) Read(fn func(t *tilepack.Tile)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn(h.tile)
}

func (h *Handle) Write(fn func(t *tilepack.Tile)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.tile)
}

type result struct {
	id     tilemath.TileID
	loader string
	tile   *tilepack.Tile
	err    error
}

// Cache is safe for concurrent use. Its tile map only changes in
// FinalizeLoadedTiles, Wait and Evict.
type Cache struct {
	source  tilepack.Source
	logger  logrus.FieldLogger
	metrics *Metrics
	slots   chan struct{}
	done    chan result

	mu       sync.RWMutex
	tiles    map[tilemath.TileID]*Handle
	inFlight map[tilemath.TileID]string
}

func New(opts Options) (*Cache, error) {
	if opts.Source == nil {
		return nil, errors.New("tile cache needs a source")
	}
	c := &Cache{
		source:   opts.Source,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		done:     make(chan result, completionBuffer),
		tiles:    make(map[tilemath.TileID]*Handle),
		inFlight: make(map[tilemath.TileID]string),
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if opts.MaxLoaders > 0 {
		c.slots = make(chan struct{}, opts.MaxLoaders)
	}
	return c, nil
}

// RequestTile starts loading id unless it is cached or already loading.
// It reports whether a loader was started. Features created while
// decoding go into features; selectionTags pick the tags that become
// part of feature selectors.
func (c *Cache) RequestTile(id tilemath.TileID, features *feature.Collection, selectionTags []string) bool {
	c.metrics.Requests.Inc()

	c.mu.Lock()
	if _, ok := c.tiles[id]; ok {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.inFlight[id]; ok {
		c.mu.Unlock()
		return false
	}
	loader, err := shortid.Generate()
	if err != nil {
		loader = id.String()
	}
	c.inFlight[id] = loader
	c.mu.Unlock()

	c.metrics.LoadsStarted.Inc()
	c.logger.WithFields(logrus.Fields{"tile": id.String(), "loader": loader}).Debug("Loading tile")

	dec := &tilepack.Decoder{Features: features, SelectionTags: selectionTags, Logger: c.logger}
	go c.load(id, loader, dec)
	return true
}

func (c *Cache) load(id tilemath.TileID, loader string, dec *tilepack.Decoder) {
	r := result{id: id, loader: loader}
	defer func() { c.done <- r }()

	if c.slots != nil {
		c.slots <- struct{}{}
		defer func() { <-c.slots }()
	}

	data, err := c.source.Fetch(context.Background(), id)
	if err != nil {
		r.err = err
		return
	}
	r.tile, r.err = dec.Decode(id, data)
}

func (c *Cache) finalize(r result) int {
	log := c.logger.WithFields(logrus.Fields{"tile": r.id.String(), "loader": r.loader})

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, r.id)
	switch {
	case errors.Is(r.err, tilepack.ErrTileNotFound):
		c.metrics.LoadsFailed.Inc()
		log.WithError(r.err).Debug("Tile not available")
		return 0
	case r.err != nil:
		c.metrics.LoadsFailed.Inc()
		log.WithError(r.err).Warn("Loading tile failed")
		return 0
	}

	c.tiles[r.id] = &Handle{tile: r.tile}
	c.metrics.Tiles.Set(float64(len(c.tiles)))
	log.Debug("Tile loaded")
	return 1
}

// FinalizeLoadedTiles moves every finished load into the cache without
// blocking and returns how many tiles were added. Failed loads are logged
// and forgotten, so a later RequestTile retries them.
func (c *Cache) FinalizeLoadedTiles() int {
	n := 0
	for {
		select {
		case r := <-c.done:
			n += c.finalize(r)
		default:
			return n
		}
	}
}

// Wait blocks until every loader started so far has finished, finalizes
// them and returns how many tiles were added.
func (c *Cache) Wait() int {
	n := 0
	for c.InFlight() > 0 {
		n += c.finalize(<-c.done)
	}
	return n
}

// TryGetTile returns the cached tile for id. It never blocks on a load
// and never starts one.
func (c *Cache) TryGetTile(id tilemath.TileID) (*Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.tiles[id]
	return h, ok
}

// Evict drops id from the cache. Handles already handed out stay valid.
func (c *Cache) Evict(id tilemath.TileID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tiles[id]; !ok {
		return false
	}
	delete(c.tiles, id)
	c.metrics.Tiles.Set(float64(len(c.tiles)))
	return true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tiles)
}

// InFlight is the number of loads started and not yet finalized.
func (c *Cache) InFlight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.inFlight)
}

// RequestField requests every tile of f and returns how many loaders were
// started.
func (c *Cache) RequestField(f tilemath.TileField, features *feature.Collection, selectionTags []string) int {
	n := 0
	for id := range f.All() {
		if c.RequestTile(id, features, selectionTags) {
			n++
		}
	}
	return n
}
