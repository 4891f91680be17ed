package controller

import (
	"github.com/goydb/mrindex/pkg/port"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultScriptCacheSize is used if the cache size is not configured.
const DefaultScriptCacheSize = 256

type scriptKind byte

const (
	mapScript    scriptKind = 'M'
	reduceScript scriptKind = 'R'
)

// scriptKey identifies a compiled function. Compiled functions keep
// runtime state and are only used by the loop of one index, so the
// index name is part of the key.
type scriptKey struct {
	Database    string
	Index       string
	Fingerprint uint64
	Kind        scriptKind
	Collection  string
}

// ScriptCache keeps compiled map and reduce functions across restarts
// of index loops. Entries of an index are dropped with Invalidate when
// its definition changes or the index is removed.
type ScriptCache struct {
	cache *lru.Cache[scriptKey, interface{}]
}

func NewScriptCache(size int) *ScriptCache {
	if size <= 0 {
		size = DefaultScriptCacheSize
	}
	cache, err := lru.New[scriptKey, interface{}](size)
	if err != nil {
		panic(err) // only fails for size <= 0
	}
	return &ScriptCache{cache: cache}
}

func (c *ScriptCache) mapFunc(key scriptKey, compile func() (port.MapFunc, error)) (port.MapFunc, error) {
	key.Kind = mapScript
	if fn, ok := c.cache.Get(key); ok {
		return fn.(port.MapFunc), nil
	}
	fn, err := compile()
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, fn)
	return fn, nil
}

func (c *ScriptCache) reduceFunc(key scriptKey, compile func() (port.ReduceFunc, error)) (port.ReduceFunc, error) {
	key.Kind = reduceScript
	key.Collection = ""
	if fn, ok := c.cache.Get(key); ok {
		return fn.(port.ReduceFunc), nil
	}
	fn, err := compile()
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, fn)
	return fn, nil
}

// Invalidate removes all functions of the index.
func (c *ScriptCache) Invalidate(database, index string) {
	for _, key := range c.cache.Keys() {
		if key.Database == database && key.Index == index {
			c.cache.Remove(key)
		}
	}
}

func (c *ScriptCache) Len() int {
	return c.cache.Len()
}
