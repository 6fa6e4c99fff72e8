package callseq

import (
	"log"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"
)

// nodeCostBytes is the approximate memory held by one cached node, used to convert the cache size into a cost.
const nodeCostBytes = 256

// Partition splits a tree by file: each result contains the root and the nodes located in that file. A node located
// in another file is dropped with its subtree, so declarations nested in a header namespace stay with the header.
func Partition(tree *Tree) map[string]*Tree {
	files := tree.Files()
	result := make(map[string]*Tree, len(files))
	for _, path := range files {
		part := tree.Filter(func(n *Node) bool {
			return n.ID == 0 || (n.Loc != nil && n.Loc.Path == path)
		})
		if part != nil && part.Len() > 1 {
			result[path] = part
		}
	}
	return result
}

// TreeCache holds the per-file partitions of parsed trees so that a header dumped as part of one translation unit is
// not parsed again for the next.
//
// Known risk: a cached header partition is reused by every later translation unit, even if that unit defines macros
// which would change how the header is parsed. Probes in such headers may be placed according to the first unit's view.
type TreeCache struct {
	cache  *ristretto.Cache[string, *Tree]
	locks  *stripedMutex
	logger *log.Logger
}

// NewTreeCache creates a cache bounded to roughly maxMB megabytes of nodes.
func NewTreeCache(maxMB int, logger *log.Logger) (*TreeCache, error) {
	if logger == nil {
		logger = log.Default()
	}
	maxCost := int64(max(maxMB, 1)) << 20 / nodeCostBytes
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Tree]{
		NumCounters: max(maxCost/10, 1000), // counters track roughly ten times the expected entry count
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &TreeCache{
		cache:  cache,
		locks:  newDefaultStripedMutex(),
		logger: logger,
	}, nil
}

func cacheKey(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// Get returns the cached partition for a path.
func (c *TreeCache) Get(path string) (*Tree, bool) {
	return c.cache.Get(cacheKey(path))
}

// Load partitions the tree and stores every file partition, returning the partition of path (nil when the tree has no
// nodes located in path).
func (c *TreeCache) Load(path string, tree *Tree) *Tree {
	key := cacheKey(path)
	var own *Tree
	for file, part := range Partition(tree) {
		fileKey := cacheKey(file)
		c.cache.Set(fileKey, part, int64(part.Len()))
		if fileKey == key {
			own = part
		}
	}
	c.cache.Wait()
	return own
}

// GetOrCompute returns the partition for path, invoking compute to produce the full tree when it is not cached.
// Population is serialized per path, lookups of already cached paths do not lock.
func (c *TreeCache) GetOrCompute(path string, compute func() (*Tree, error)) (*Tree, error) {
	if tree, ok := c.Get(path); ok {
		return tree, nil
	}
	mu := c.locks.Lock(cacheKey(path))
	defer mu.Unlock()
	if tree, ok := c.Get(path); ok {
		return tree, nil // populated while waiting
	}

	tree, err := compute()
	if err != nil {
		return nil, err
	}
	if own := c.Load(path, tree); own != nil {
		return own, nil
	}
	// nothing located in path, return the empty partition without caching
	return tree.Filter(func(n *Node) bool { return n.ID == 0 }), nil
}

// Invalidate removes the cached partition of path, used after the file content changed.
func (c *TreeCache) Invalidate(path string) {
	c.cache.Del(cacheKey(path))
	c.cache.Wait()
}

// LogMetrics writes the hit ratio of the cache.
func (c *TreeCache) LogMetrics() {
	if m := c.cache.Metrics; m != nil && (m.Hits() != 0 || m.Misses() != 0) {
		c.logger.Println("tree cache: " + m.String())
	}
}

// Close releases the cache.
func (c *TreeCache) Close() {
	c.cache.Close()
}
