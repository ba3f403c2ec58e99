// Package stmtcache implements the prepared-statement cache (SPEC_FULL.md
// §4.6): a bounded `sql -> PreparedEntry` map that promotes a query to a
// server-side PREPARE once it has run `threshold` times, and evicts the
// least-recently-used entry once the cache is full.
//
// The cache never touches the network itself — Touch (for an entry it
// evicts) and Invalidate return the server-side name (if any) that the
// caller must DEALLOCATE, the
// same division of labour pkg/tds/prepared.go's PreparedStatementCache
// keeps between handle bookkeeping and the PreparedStatementExecutor that
// actually runs things.
package stmtcache

import (
	"container/list"
	"fmt"
	"sync"
)

// PreparedEntry is one cached statement's bookkeeping.
type PreparedEntry struct {
	SQL           string
	ServerName    string // "" until promoted to a server-side PREPARE
	ParamOIDs     []uint32
	ResultOIDs    []uint32
	ResultFormats []int16
	Uses          uint64
}

// TouchResult is what Touch reports back to the Execution Façade (C7).
type TouchResult struct {
	Entry      *PreparedEntry
	MustParse  bool   // the façade must emit a Parse message this round
	Promote    bool   // this Parse should register Entry.ServerName server-side
	Deallocate string // a server-side statement evicted to make room, "" if none
}

// Cache is a bounded, mutex-guarded sql->PreparedEntry map with usage-
// threshold promotion and LRU eviction. Safe for concurrent use; the sync
// transport adapter may call it from its background reader thread while an
// execute is also consulting it only across the mutex it already holds
// (SPEC_FULL.md §4.9), so Cache's own lock is a second, finer-grained one.
type Cache struct {
	mu        sync.Mutex
	threshold uint64
	capacity  int
	counter   uint64

	entries map[string]*list.Element // sql -> element in lru (front = most recent)
	lru     *list.List
}

// lruNode is the payload stored in each list.Element.
type lruNode struct {
	entry *PreparedEntry
}

// New constructs a Cache. threshold==0 or capacity==0 disables caching
// entirely, per SPEC_FULL.md §4.6 ("threshold=0 disables caching entirely.
// cache_size=0 likewise.") — Touch on a disabled cache always reports
// MustParse=true, Promote=false, and never retains an entry.
func New(threshold uint64, capacity int) *Cache {
	return &Cache{
		threshold: threshold,
		capacity:  capacity,
		entries:   make(map[string]*list.Element),
		lru:       list.New(),
	}
}

// Enabled reports whether this cache retains anything at all.
func (c *Cache) Enabled() bool { return c.threshold > 0 && c.capacity > 0 }

// Touch implements the §4.6 `touch(sql) -> (entry, must_parse)` operation.
// Per the resolved Open Question (b) — see DESIGN.md — this is called
// exactly once per execute, at Parse-decision time; a Bind-only
// re-execution of an already-promoted statement looks up Entry directly
// and never calls Touch a second time for that call.
func (c *Cache) Touch(sql string) TouchResult {
	if !c.Enabled() {
		return TouchResult{Entry: &PreparedEntry{SQL: sql}, MustParse: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[sql]; ok {
		c.lru.MoveToFront(elem)
		node := elem.Value.(*lruNode)
		node.entry.Uses++
		switch {
		case node.entry.Uses < c.threshold:
			return TouchResult{Entry: node.entry, MustParse: true}
		case node.entry.Uses == c.threshold:
			node.entry.ServerName = c.nextServerName()
			return TouchResult{Entry: node.entry, MustParse: true, Promote: true}
		default:
			return TouchResult{Entry: node.entry, MustParse: false}
		}
	}

	entry := &PreparedEntry{SQL: sql, Uses: 1}
	promote := entry.Uses == c.threshold
	if promote {
		entry.ServerName = c.nextServerName()
	}
	var deallocate string
	if c.lru.Len() >= c.capacity {
		deallocate = c.evictLocked()
	}
	elem := c.lru.PushFront(&lruNode{entry: entry})
	c.entries[sql] = elem

	return TouchResult{Entry: entry, MustParse: true, Promote: promote, Deallocate: deallocate}
}

// Lookup returns the entry for sql without affecting recency or the use
// count. The execution façade does not call it; it works from the Entry
// that Touch returns.
func (c *Cache) Lookup(sql string) (*PreparedEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[sql]
	if !ok {
		return nil, false
	}
	return elem.Value.(*lruNode).entry, true
}

// Invalidate implements §4.6 `invalidate(sql)`: drop the entry and, if it
// had been promoted, report the server name that needs a DEALLOCATE.
func (c *Cache) Invalidate(sql string) (deallocate string, hadEntry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[sql]
	if !ok {
		return "", false
	}
	node := elem.Value.(*lruNode)
	c.lru.Remove(elem)
	delete(c.entries, sql)
	return node.entry.ServerName, true
}

// evictLocked removes the least-recently-used entry (the back of the lru
// list) and reports its server name if it had been promoted. Caller must
// hold c.mu.
func (c *Cache) evictLocked() string {
	back := c.lru.Back()
	if back == nil {
		return ""
	}
	node := back.Value.(*lruNode)
	c.lru.Remove(back)
	delete(c.entries, node.entry.SQL)
	return node.entry.ServerName
}

func (c *Cache) nextServerName() string {
	c.counter++
	return fmt.Sprintf("pgwire_%d", c.counter)
}

// Len reports the current number of cached entries (diagnostics/tests).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
