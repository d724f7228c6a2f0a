// Package cache holds recently computed month snapshots. Entries are keyed
// by (user, year, month) and carry the plan version they were computed
// from: a lookup with a newer version is a miss and evicts the stale entry,
// so a snapshot can never outlive the grid state it summarizes.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"budgetgrid/internal/core"
)

type SnapshotCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type snapshotEntry struct {
	key       string
	version   int64
	snapshot  core.MonthSnapshot
	expiresAt time.Time
}

// NewSnapshotCache creates a snapshot cache with size- and TTL-based
// eviction.
func NewSnapshotCache(maxSize int, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Key builds the canonical cache key for a plan month.
func Key(userID string, year, month int) string {
	return fmt.Sprintf("%s|%04d-%02d", userID, year, month)
}

// Get returns the cached snapshot if it was computed from exactly the given
// plan version and has not expired.
func (c *SnapshotCache) Get(key string, version int64) (core.MonthSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return core.MonthSnapshot{}, false
	}
	entry := elem.Value.(*snapshotEntry)
	if entry.version != version || time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return core.MonthSnapshot{}, false
	}
	c.lru.MoveToFront(elem)
	return entry.snapshot, true
}

// Put stores a snapshot computed from the given plan version, replacing any
// older entry for the same key.
func (c *SnapshotCache) Put(key string, version int64, snap core.MonthSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &snapshotEntry{
		key:       key,
		version:   version,
		snapshot:  snap,
		expiresAt: time.Now().Add(c.ttl),
	}
	if elem, exists := c.items[key]; exists {
		elem.Value = entry
		c.lru.MoveToFront(elem)
		return
	}
	elem := c.lru.PushFront(entry)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Invalidate drops the entry for a key, if present.
func (c *SnapshotCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

// Size returns the current number of cached snapshots.
func (c *SnapshotCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CleanExpired removes all expired entries and returns how many were
// dropped. A periodic sweep in the daemon calls this.
func (c *SnapshotCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*snapshotEntry).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

func (c *SnapshotCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*snapshotEntry)
	delete(c.items, entry.key)
	c.lru.Remove(elem)
}
