package extraction

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache remembers extracted invoices by content checksum so a byte-identical
// resubmission skips the providers. A nil *Cache is a disabled cache.
type Cache struct {
	entries *lru.Cache[string, ExtractedInvoice]
}

// NewCache returns nil when size is not positive.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, ExtractedInvoice](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

func (c *Cache) Get(checksum string) (ExtractedInvoice, bool) {
	if c == nil || checksum == "" {
		return ExtractedInvoice{}, false
	}
	return c.entries.Get(checksum)
}

func (c *Cache) Add(checksum string, inv ExtractedInvoice) {
	if c == nil || checksum == "" {
		return
	}
	c.entries.Add(checksum, inv)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
