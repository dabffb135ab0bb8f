package raster

import "sync"

// BlockKey addresses one cached block of one band at one level.
type BlockKey struct {
	Band, Level, X, Y int
}

// BlockCache is the host-framework block cache the engine consults while
// assembling interleaved pages. The engine holds references only briefly and
// releases them as soon as the block is copied.
type BlockCache interface {
	// TryGetRef returns a read-locked reference to a resident block, or
	// ok=false without blocking or faulting the block in.
	TryGetRef(key BlockKey) (data []byte, release func(), ok bool)

	// GetRef returns a write-locked reference to the block, creating an
	// empty one of the given size if it is not resident.
	GetRef(key BlockKey, size int) (data []byte, release func())

	// Put stores a copy of data under key. The engine deposits assembled
	// blocks here during interleaved overview regeneration.
	Put(key BlockKey, data []byte)
}

// MapCache is a minimal in-memory BlockCache. It provides the locking the
// engine expects from the host framework; it does not evict.
type MapCache struct {
	mu     sync.Mutex
	blocks map[BlockKey][]byte
}

func NewMapCache() *MapCache {
	return &MapCache{blocks: make(map[BlockKey][]byte)}
}

func (c *MapCache) TryGetRef(key BlockKey) ([]byte, func(), bool) {
	c.mu.Lock()
	data, found := c.blocks[key]
	if !found {
		c.mu.Unlock()
		return nil, nil, false
	}
	return data, c.mu.Unlock, true
}

func (c *MapCache) GetRef(key BlockKey, size int) ([]byte, func()) {
	c.mu.Lock()
	data, found := c.blocks[key]
	if !found {
		data = make([]byte, size)
		c.blocks[key] = data
	}
	return data, c.mu.Unlock
}

// Put stores a copy of data under key.
func (c *MapCache) Put(key BlockKey, data []byte) {
	block, release := c.GetRef(key, len(data))
	copy(block, data)
	release()
}
