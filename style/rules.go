package style

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// RulesCache holds the rules of the current stylesheet in file order.
// A failed reload leaves the previous rules in place.
type RulesCache struct {
	mu     sync.RWMutex
	rules  []Rule
	path   string
	logger logrus.FieldLogger
}

func NewRulesCache(logger logrus.FieldLogger) *RulesCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RulesCache{logger: logger}
}

// Load parses text and swaps it in. On a parse error the error is logged
// and returned and the previous rule set stays active.
func (c *RulesCache) Load(text string) error {
	rules, err := Parse(text)
	if err != nil {
		fields := logrus.Fields{}
		var pe *ParseError
		if errors.As(err, &pe) {
			fields["offset"] = pe.Offset
			fields["line"] = pe.Line
			fields["column"] = pe.Column
		}
		c.logger.WithFields(fields).Errorf("Keeping previous stylesheet: %v", err)
		return err
	}

	c.mu.Lock()
	c.rules = rules
	c.mu.Unlock()

	c.logger.Debugf("Loaded %d style rules", len(rules))
	return nil
}

// LoadFile reads and loads the stylesheet at path and remembers the path
// for Reload.
func (c *RulesCache) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Errorf("Keeping previous stylesheet, couldn't read %s: %v", path, err)
		return errors.Wrapf(err, "reading stylesheet %s", path)
	}

	c.mu.Lock()
	c.path = path
	c.mu.Unlock()

	if err := c.Load(string(data)); err != nil {
		return errors.Wrapf(err, "parsing stylesheet %s", path)
	}
	return nil
}

// Reload re-reads the file last passed to LoadFile.
func (c *RulesCache) Reload() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()

	if path == "" {
		return errors.New("no stylesheet file has been loaded")
	}
	return c.LoadFile(path)
}

// MatchingRules returns every rule whose selector query matches, oldest
// declaration first.
func (c *RulesCache) MatchingRules(query Selector) []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Rule
	for _, r := range c.rules {
		if query.Matches(r.Selector) {
			out = append(out, r)
		}
	}
	return out
}

func (c *RulesCache) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *RulesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}
