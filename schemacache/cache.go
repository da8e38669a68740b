// Package schemacache implements the process-local, concurrent Schema Cache
// of §4.B: a mapping from (project, collection) to the current Schema
// version. The cache is a latency optimization over the metastore, never the
// authority — it may lag a sibling process's update, corrected on the next
// unknown-field lookup.
package schemacache

import (
	"sync"

	"github.com/asaidimu/schemaflow/schema"
)

type key struct {
	project    string
	collection string
}

// Cache is a concurrent (project, collection) -> *schema.Schema map. Schema
// values are immutable once published; Put always replaces the value
// wholesale, so readers never observe a torn field list.
type Cache struct {
	mu sync.RWMutex
	m  map[key]*schema.Schema
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{m: make(map[key]*schema.Schema)}
}

// Get returns the cached schema for (project, collection), if any.
func (c *Cache) Get(project, collection string) (*schema.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.m[key{project, collection}]
	return s, ok
}

// Put records or replaces the schema for (project, collection).
func (c *Cache) Put(project, collection string, s *schema.Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key{project, collection}] = s
}
