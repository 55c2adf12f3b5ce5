package cache

import (
	"container/list"
	"hash/fnv"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const memoryShardCount = 16

type memoryItem struct {
	entry Entry
	seq   uint64
	elem  *list.Element
}

type memoryShard struct {
	mu    sync.Mutex
	items map[string]*memoryItem
	// order holds *memoryItem in insertion order, oldest at the front.
	order *list.List
}

// memory is the bounded L1 tier. Keys are spread over shards with their own
// locks; capacity and FIFO order are global through an atomic size counter and
// a global insertion sequence.
type memory struct {
	shards [memoryShardCount]*memoryShard
	max    int64

	size      atomic.Int64
	seq       atomic.Uint64
	evictions atomic.Int64
	expired   atomic.Int64
}

func newMemory(maxEntries int) *memory {
	if maxEntries < 1 {
		maxEntries = 1
	}
	m := &memory{max: int64(maxEntries)}
	for i := range m.shards {
		m.shards[i] = &memoryShard{
			items: make(map[string]*memoryItem),
			order: list.New(),
		}
	}
	return m
}

func (m *memory) get(key string, now time.Time) (Entry, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	if item.entry.Expired(now) {
		s.removeLocked(key, item)
		m.size.Add(-1)
		m.expired.Add(1)
		return Entry{}, false
	}
	return item.entry, true
}

// set inserts or refreshes key. A refreshed key moves to the back of the
// insertion order.
func (m *memory) set(entry Entry) {
	if m.replace(entry) {
		return
	}

	m.reserve()

	s := m.shardFor(entry.Key)
	s.mu.Lock()
	if item, exists := s.items[entry.Key]; exists {
		// Another writer inserted the same key while the slot was reserved.
		m.size.Add(-1)
		s.refreshLocked(item, entry, m.seq.Add(1))
		s.mu.Unlock()
		return
	}
	item := &memoryItem{entry: entry, seq: m.seq.Add(1)}
	item.elem = s.order.PushBack(item)
	s.items[entry.Key] = item
	s.mu.Unlock()
}

func (m *memory) replace(entry Entry) bool {
	s := m.shardFor(entry.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[entry.Key]
	if !exists {
		return false
	}
	s.refreshLocked(item, entry, m.seq.Add(1))
	return true
}

// reserve claims one slot, evicting the globally oldest entry while full.
func (m *memory) reserve() {
	for {
		current := m.size.Load()
		if current < m.max {
			if m.size.CompareAndSwap(current, current+1) {
				return
			}
			continue
		}
		if !m.evictOldest() {
			// Slots are held by in-flight inserts that have not linked their
			// items yet.
			runtime.Gosched()
		}
	}
}

func (m *memory) evictOldest() bool {
	var (
		oldestShard *memoryShard
		oldestItem  *memoryItem
	)
	for _, s := range m.shards {
		s.mu.Lock()
		if front := s.order.Front(); front != nil {
			item := front.Value.(*memoryItem)
			if oldestItem == nil || item.seq < oldestItem.seq {
				oldestShard, oldestItem = s, item
			}
		}
		s.mu.Unlock()
	}
	if oldestItem == nil {
		return false
	}

	oldestShard.mu.Lock()
	defer oldestShard.mu.Unlock()
	current, ok := oldestShard.items[oldestItem.entry.Key]
	if !ok || current != oldestItem || current.seq != oldestItem.seq {
		return false
	}
	oldestShard.removeLocked(current.entry.Key, current)
	m.size.Add(-1)
	m.evictions.Add(1)
	return true
}

func (m *memory) delete(key string) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeLocked(key, item)
	m.size.Add(-1)
	return true
}

func (m *memory) clear() int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n := len(s.items)
		s.items = make(map[string]*memoryItem)
		s.order.Init()
		s.mu.Unlock()
		removed += n
		m.size.Add(int64(-n))
	}
	return removed
}

func (m *memory) len() int {
	return int(m.size.Load())
}

func (m *memory) shardFor(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%memoryShardCount]
}

func (s *memoryShard) removeLocked(key string, item *memoryItem) {
	s.order.Remove(item.elem)
	delete(s.items, key)
}

func (s *memoryShard) refreshLocked(item *memoryItem, entry Entry, seq uint64) {
	item.entry = entry
	item.seq = seq
	s.order.MoveToBack(item.elem)
}
