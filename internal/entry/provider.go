package entry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrClosed is returned by providers that are locked or not yet opened.
var ErrClosed = errors.New("entries are not open")

// Query selects entries.
type Query struct {
	// Text is a case-insensitive substring of SearchText. Empty matches all.
	Text string

	// AutoType restricts results to entries with auto-type enabled.
	AutoType bool
}

// Provider supplies entries to the auto-type pipeline.
type Provider interface {
	EntriesByFilter(ctx context.Context, q Query) ([]*Entry, error)

	// HasOpenFiles reports whether any entries are available. A trigger
	// arriving while this is false is held until Changes fires.
	HasOpenFiles() bool
}

// Collection is an in-memory Provider.
type Collection struct {
	mu      sync.RWMutex
	entries []*Entry
	open    bool
	changes chan struct{}
}

// NewCollection returns an open collection holding entries.
func NewCollection(entries ...*Entry) *Collection {
	return &Collection{
		entries: entries,
		open:    true,
		changes: make(chan struct{}, 1),
	}
}

// LoadJSON reads a JSON array of entries into an open collection.
func LoadJSON(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, e := range entries {
		if e.ID == "" {
			e.ID = fmt.Sprintf("%d", i+1)
		}
	}
	return NewCollection(entries...), nil
}

// EntriesByFilter implements Provider.
func (c *Collection) EntriesByFilter(_ context.Context, q Query) ([]*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return nil, ErrClosed
	}
	var out []*Entry
	for _, e := range c.entries {
		if e.Matches(q) {
			out = append(out, e)
		}
	}
	return out, nil
}

// HasOpenFiles implements Provider.
func (c *Collection) HasOpenFiles() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open && len(c.entries) > 0
}

// Get returns the entry with id.
func (c *Collection) Get(id string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Add appends entries and signals Changes.
func (c *Collection) Add(entries ...*Entry) {
	c.mu.Lock()
	c.entries = append(c.entries, entries...)
	c.mu.Unlock()
	c.signal()
}

// SetOpen opens or closes the collection and signals Changes.
func (c *Collection) SetOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
	c.signal()
}

// Changes fires after every modification. Signals coalesce.
func (c *Collection) Changes() <-chan struct{} {
	return c.changes
}

func (c *Collection) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
