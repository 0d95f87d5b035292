package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

type entry struct {
	id           flag.ID
	def          *flag.Definition
	cachedAt     time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	hitCount     int64
}

// memoryTier is a bounded LRU with per-entry TTL. A background sweep removes
// expired entries so quiet keys do not pin memory until their next read.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[flag.ID]*list.Element
	order    *list.List // front = most recently used
	counters *counters

	done chan struct{}
	once sync.Once
}

func newMemoryTier(capacity int, ttl, sweepInterval time.Duration, counters *counters) *memoryTier {
	t := &memoryTier{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[flag.ID]*list.Element),
		order:    list.New(),
		counters: counters,
		done:     make(chan struct{}),
	}
	go t.sweep(sweepInterval)
	return t
}

func (t *memoryTier) get(id flag.ID) (*flag.Definition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.items[id]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*entry)
	now := time.Now()
	if now.After(ent.expiresAt) {
		t.removeElement(elem)
		t.counters.expirations.Add(1)
		return nil, false
	}
	ent.lastAccessed = now
	ent.hitCount++
	t.order.MoveToFront(elem)
	return ent.def, true
}

func (t *memoryTier) set(def *flag.Definition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if elem, ok := t.items[def.ID]; ok {
		ent := elem.Value.(*entry)
		ent.def = def
		ent.cachedAt = now
		ent.expiresAt = now.Add(t.ttl)
		ent.lastAccessed = now
		t.order.MoveToFront(elem)
		return
	}

	if t.order.Len() >= t.capacity {
		if oldest := t.order.Back(); oldest != nil {
			t.removeElement(oldest)
			t.counters.evictions.Add(1)
		}
	}

	elem := t.order.PushFront(&entry{
		id:           def.ID,
		def:          def,
		cachedAt:     now,
		expiresAt:    now.Add(t.ttl),
		lastAccessed: now,
	})
	t.items[def.ID] = elem
}

func (t *memoryTier) remove(id flag.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.items[id]; ok {
		t.removeElement(elem)
	}
}

func (t *memoryTier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[flag.ID]*list.Element)
	t.order.Init()
}

func (t *memoryTier) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// removeElement requires t.mu held.
func (t *memoryTier) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(t.items, ent.id)
	t.order.Remove(elem)
}

func (t *memoryTier) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.removeExpired()
		}
	}
}

func (t *memoryTier) removeExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for elem := t.order.Back(); elem != nil; {
		prev := elem.Prev()
		if ent := elem.Value.(*entry); now.After(ent.expiresAt) {
			t.removeElement(elem)
			t.counters.expirations.Add(1)
		}
		elem = prev
	}
}

func (t *memoryTier) close() {
	t.once.Do(func() { close(t.done) })
}
