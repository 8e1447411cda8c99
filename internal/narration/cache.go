package narration

import (
	"context"
	"fmt"
	"sync"
)

// Store persists cache entries between sessions
type Store interface {
	LoadAll(ctx context.Context) (map[Key]Entry, error)
	Save(ctx context.Context, key Key, entry Entry) error
	Delete(ctx context.Context, sceneID int, splitIndex *int) error
}

// Cache memoizes narration per Key. Safe for concurrent use; the synthesis
// completion path is its only writer.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	scenes  map[int]uint64
	splits  map[splitRef]uint64
	store   Store
	onError func(error)
}

// NewCache creates an empty in-memory cache
func NewCache() *Cache {
	return &Cache{
		entries: make(map[Key]Entry),
		scenes:  make(map[int]uint64),
		splits:  make(map[splitRef]uint64),
	}
}

// NewPersistentCache creates a cache that writes through to store.
// Store failures never fail a cache operation; they are reported to onError.
func NewPersistentCache(store Store, onError func(error)) *Cache {
	c := NewCache()
	c.store = store
	c.onError = onError
	return c
}

// Warm loads every persisted entry into memory
func (c *Cache) Warm(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	loaded, err := c.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("warm narration cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range loaded {
		c.entries[k] = e
	}
	return len(loaded), nil
}

// Get retrieves an entry by exact key
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Lookup returns Get as a Lookup func
func (c *Cache) Lookup() Lookup {
	return c.Get
}

// Put stores an entry, replacing any previous one (last write wins)
func (c *Cache) Put(key Key, entry Entry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.persist(func(ctx context.Context) error { return c.store.Save(ctx, key, entry) })
}

type splitRef struct{ scene, split int }

// Epoch is the invalidation generation of a (scene, sub-scene) pair
type Epoch struct {
	scene, split uint64
}

// Epoch returns the current generation for key. Capture it before starting a
// synthesis call and hand it to PutIfCurrent.
func (c *Cache) Epoch(key Key) Epoch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochLocked(key)
}

func (c *Cache) epochLocked(key Key) Epoch {
	return Epoch{
		scene: c.scenes[key.SceneID],
		split: c.splits[splitRef{key.SceneID, key.SplitIndex}],
	}
}

// PutIfCurrent stores the entry only if its scene was not invalidated since
// epoch was captured. Reports whether the entry landed.
func (c *Cache) PutIfCurrent(key Key, entry Entry, epoch Epoch) bool {
	c.mu.Lock()
	if c.epochLocked(key) != epoch {
		c.mu.Unlock()
		return false
	}
	c.entries[key] = entry
	c.mu.Unlock()

	c.persist(func(ctx context.Context) error { return c.store.Save(ctx, key, entry) })
	return true
}

// Invalidate removes every entry of a scene, all siblings included
func (c *Cache) Invalidate(sceneID int) {
	c.invalidate(sceneID, nil)
}

// InvalidateSplit removes the entries of one sub-scene
func (c *Cache) InvalidateSplit(sceneID, splitIndex int) {
	c.invalidate(sceneID, &splitIndex)
}

func (c *Cache) invalidate(sceneID int, splitIndex *int) {
	c.mu.Lock()
	if splitIndex == nil {
		c.scenes[sceneID]++
	} else {
		c.splits[splitRef{sceneID, *splitIndex}]++
	}
	for k := range c.entries {
		if k.SceneID != sceneID {
			continue
		}
		if splitIndex != nil && k.SplitIndex != *splitIndex {
			continue
		}
		delete(c.entries, k)
	}
	c.mu.Unlock()

	c.persist(func(ctx context.Context) error { return c.store.Delete(ctx, sceneID, splitIndex) })
}

// Size returns the number of cached entries
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) persist(op func(ctx context.Context) error) {
	if c.store == nil {
		return
	}
	if err := op(context.Background()); err != nil && c.onError != nil {
		c.onError(err)
	}
}
