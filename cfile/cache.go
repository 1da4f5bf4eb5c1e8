// 解码后block的cache，rowset内的所有列共享一个
// 按LRU淘汰；扫描是主要读模式，不需要频率准入
package cfile

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type cacheKey struct {
	fileID   uint64
	blockIdx int
}

type cacheEntry struct {
	key   cacheKey
	block *Block
}

// BlockCache 容量按block个数计算
type BlockCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[cacheKey]*list.Element
}

const defaultCacheBlocks = 1024

func NewBlockCache(capacity int) *BlockCache {
	if capacity <= 0 {
		capacity = defaultCacheBlocks
	}
	return &BlockCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

// 文件路径hash出fileID，同一个cache可以放多个文件的block
func FileID(path string) uint64 {
	return xxhash.Sum64String(path)
}

func (c *BlockCache) get(fileID uint64, blockIdx int) *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[cacheKey{fileID, blockIdx}]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).block
	}
	return nil
}

func (c *BlockCache) set(fileID uint64, blockIdx int, b *Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{fileID, blockIdx}
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).block = b
		return
	}
	elem := c.order.PushFront(&cacheEntry{key: key, block: b})
	c.items[key] = elem
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*cacheEntry).key)
	}
}

// 文件被删除时把它的block都清掉
func (c *BlockCache) dropFile(fileID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, elem := range c.items {
		if key.fileID == fileID {
			c.order.Remove(elem)
			delete(c.items, key)
		}
	}
}
