package templating

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/valyala/fasttemplate"
)

// DefaultCacheSize is the number of compiled templates a
// Cache keeps when no size is configured.
const DefaultCacheSize = 128

// Cache keeps compiled templates, keyed by logical name
// and block. It is safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, *fasttemplate.Template]
}

// NewCache returns a Cache holding at most size compiled
// templates. A size of 0 selects DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	const errCtx = "creating template cache"

	if size == 0 {
		size = DefaultCacheSize
	}

	c, err := lru.New[string, *fasttemplate.Template](size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Cache{lru: c}, nil
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached template.
func (c *Cache) Purge() {
	c.lru.Purge()
}

func (c *Cache) get(key string) (*fasttemplate.Template, bool) {
	if c == nil {
		return nil, false
	}

	return c.lru.Get(key)
}

func (c *Cache) add(key string, tpl *fasttemplate.Template) {
	if c == nil {
		return
	}

	c.lru.Add(key, tpl)
}
