package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"burnledger/config"
	"burnledger/native/burn"
)

// ErrUnknownItem is returned when the registry holds no metadata for an item.
var ErrUnknownItem = errors.New("core: unknown item")

// StaticRegistry serves item metadata from an in-memory table, typically
// loaded from the operator's item fixture.
type StaticRegistry struct {
	mu           sync.RWMutex
	items        map[string]*burn.Metadata
	allowUnknown bool
}

// NewStaticRegistry copies items into a registry.
func NewStaticRegistry(items map[string]*burn.Metadata) *StaticRegistry {
	r := &StaticRegistry{items: make(map[string]*burn.Metadata, len(items))}
	for id, meta := range items {
		r.Set(id, meta)
	}
	return r
}

// LoadStaticRegistry reads an item fixture. An empty path yields a registry
// that resolves every item to bare metadata.
func LoadStaticRegistry(path string) (*StaticRegistry, error) {
	if strings.TrimSpace(path) == "" {
		r := NewStaticRegistry(nil)
		r.AllowUnknown(true)
		return r, nil
	}
	items, err := config.LoadItems(path)
	if err != nil {
		return nil, fmt.Errorf("load item registry: %w", err)
	}
	return NewStaticRegistry(items), nil
}

// AllowUnknown makes lookups of unlisted items return metadata carrying only
// the item id as name.
func (r *StaticRegistry) AllowUnknown(allow bool) {
	r.mu.Lock()
	r.allowUnknown = allow
	r.mu.Unlock()
}

// Set stores metadata for id.
func (r *StaticRegistry) Set(id string, meta *burn.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if meta == nil {
		delete(r.items, id)
		return
	}
	copied := *meta
	copied.Attributes = append([]burn.Trait(nil), meta.Attributes...)
	r.items[id] = &copied
}

// ItemMetadata implements burn.ItemRegistry.
func (r *StaticRegistry) ItemMetadata(itemID string) (*burn.Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.items[itemID]
	if !ok {
		if r.allowUnknown {
			return &burn.Metadata{Name: itemID}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	copied := *meta
	copied.Attributes = append([]burn.Trait(nil), meta.Attributes...)
	return &copied, nil
}
