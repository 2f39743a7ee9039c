package feature

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/style"
)

// DefaultCapacity is the number of features a collection holds unless told
// otherwise.
const DefaultCapacity = 4096

// ErrCapacityExceeded is returned when a new feature would not fit.
var ErrCapacityExceeded = errors.New("feature collection is full")

// Collection is the fixed-capacity list of features shared by every tile.
// No two features have equal selectors. It is safe for concurrent use:
// decoders call GetOrCreate from many goroutines while the owner calls
// LoadStyles.
type Collection struct {
	mu       sync.RWMutex
	features []Feature
	index    map[string][]uint32
	capacity int
	logger   logrus.FieldLogger

	// last cascade applied, used to style features created afterwards
	zoom  float64
	rules *style.RulesCache
}

func NewCollection(capacity int, logger logrus.FieldLogger) *Collection {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collection{
		features: make([]Feature, 0, min(capacity, 1024)),
		index:    make(map[string][]uint32),
		capacity: capacity,
		logger:   logger,
	}
}

func (c *Collection) lookup(sel style.Selector, key string) (uint32, bool) {
	for _, id := range c.index[key] {
		if c.features[id].Selector.Equal(sel) {
			return id, true
		}
	}
	return 0, false
}

// GetOrCreate returns the id of the feature with a selector equal to sel,
// appending a new feature when there is none.
func (c *Collection) GetOrCreate(sel style.Selector, layerID uint32) (uint32, error) {
	key := sel.String()

	c.mu.RLock()
	id, ok := c.lookup(sel, key)
	zoom, rules := c.zoom, c.rules
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	// Resolve the style before taking the write lock.
	f := New(sel, layerID, 0)
	f.LoadStyle(zoom, rules, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.lookup(sel, key); ok {
		return id, nil
	}
	if len(c.features) >= c.capacity {
		return 0, errors.Wrapf(ErrCapacityExceeded, "adding %s (capacity %d)", key, c.capacity)
	}
	if c.rules != rules || c.zoom != zoom {
		f.LoadStyle(c.zoom, c.rules, c.logger)
	}

	f.ID = uint32(len(c.features))
	c.features = append(c.features, f)
	c.index[key] = append(c.index[key], f.ID)
	return f.ID, nil
}

// LoadStyles re-resolves every feature at zoom. Features created later are
// styled with the same zoom and rules.
func (c *Collection) LoadStyles(zoom float64, rules *style.RulesCache) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.zoom = zoom
	c.rules = rules
	for i := range c.features {
		c.features[i].LoadStyle(zoom, rules, c.logger)
	}
}

func (c *Collection) Get(id uint32) (Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if int(id) >= len(c.features) {
		return Feature{}, false
	}
	return c.features[id], true
}

func (c *Collection) style(id uint32) (Style, bool) {
	f, ok := c.Get(id)
	return f.Style, ok
}

func (c *Collection) IsVisible(id uint32) bool {
	s, ok := c.style(id)
	return ok && s.Visible()
}

func (c *Collection) HasAlpha(id uint32) bool {
	s, ok := c.style(id)
	return ok && s.HasAlpha()
}

func (c *Collection) HasOutline(id uint32) bool {
	s, ok := c.style(id)
	return ok && s.HasOutline()
}

// ZIndex returns the resolved z-index, or 0 for unknown ids.
func (c *Collection) ZIndex(id uint32) float32 {
	s, _ := c.style(id)
	return s.ZIndex
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.features)
}

func (c *Collection) Capacity() int {
	return c.capacity
}

// Snapshot copies the features out, ordered by id.
func (c *Collection) Snapshot() []Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Feature, len(c.features))
	copy(out, c.features)
	return out
}
