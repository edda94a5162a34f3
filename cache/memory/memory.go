package memory

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shruggr/headerchain/models"
)

// Cache is an in-memory LRU cache of headers keyed by store position
type Cache struct {
	lru *lru.Cache[uint64, *models.Header]
	mu  sync.RWMutex
}

// New creates a new in-memory LRU cache with the specified size
func New(size int) (*Cache, error) {
	l, err := lru.New[uint64, *models.Header](size)
	if err != nil {
		return nil, err
	}

	return &Cache{
		lru: l,
	}, nil
}

// Get retrieves a cached header
func (c *Cache) Get(index uint64) (*models.Header, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lru.Get(index)
}

// Put stores a header at a position
func (c *Cache) Put(index uint64, header *models.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(index, header)
}

// PurgeFrom removes every cached header at or after position index
func (c *Cache) PurgeFrom(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.lru.Keys() {
		if k >= index {
			c.lru.Remove(k)
		}
	}
}

// Clear removes all cached entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
}

// Len returns the number of cached headers
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lru.Len()
}
