package nbmap

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// HashFunc computes a key's hash. The map never inspects key contents
// itself — hashing, like equality and destruction, is an external
// capability supplied to New.
type HashFunc[K any] func(key *K) uint32

// EqualsFunc reports whether two keys are equivalent for lookup purposes.
// A reader still probing a superseded table may call it with a key that a
// resize has already passed to destroy, so it must still read such a key
// safely.
type EqualsFunc[K any] func(a, b *K) bool

// DestroyFunc releases whatever a key holds (a file handle, a reference
// count, anything the caller's allocation scheme needs released) once the
// map has determined that exact key object is no longer reachable from any
// slot. The map never destroys values — those are borrowed, not owned.
type DestroyFunc[K any] func(key *K)

// Map is a concurrent associative container built on a single open
// addressing slot array with linear probing, cooperative block-wise
// resize, and no locks on the read or write fast paths. It corresponds to
// nbhashmap.h/.c's HashMap.
//
// The leading pad byte array isolates the hot atomic fields below from
// whatever a caller places immediately before a Map value (e.g. in a
// containing struct), so a tight Get/PutIf loop on one goroutine doesn't
// fight false sharing against an unrelated field touched by another. Sized
// to a full cache line rather than computed via a struct-packing formula,
// since unsafe.Sizeof of a generic type's fields isn't a constant
// expression Go will accept as an array length.
//
// The zero Map is not usable; construct one with New.
type Map[K any, V any] struct {
	_pad [CacheLineSize]byte

	table     atomic.Pointer[table[K, V]]
	nextTable atomic.Pointer[table[K, V]]
	size      atomic.Int64
	changes   atomic.Uint32

	reprobeLimit uint32
	blockSize    uint32
	retention    time.Duration

	hash    HashFunc[K]
	equals  EqualsFunc[K]
	destroy DestroyFunc[K]
}

// New constructs a Map. hash, equals, and destroy must all be non-nil:
// hash and equals together define key identity, and destroy is invoked
// exactly once for every key the map determines is no longer reachable
// from any slot (see PutIf and Free).
func New[K any, V any](hash HashFunc[K], equals EqualsFunc[K], destroy DestroyFunc[K], opts ...Option) *Map[K, V] {
	if hash == nil || equals == nil || destroy == nil {
		panic("nbmap: hash, equals, and destroy must all be non-nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Map[K, V]{}
	m.hash = hash
	m.equals = equals
	m.destroy = destroy
	m.reprobeLimit = cfg.reprobeLimit
	m.blockSize = cfg.blockSize
	m.retention = cfg.retention

	t := newTable[K, V](cfg.initialCapacity, cfg.blockSize)
	m.table.Store(t)

	return m
}

// computeHash evaluates the caller-supplied hash function and remaps a
// zero result to 1: slot.go's PARTIAL state uses hash == 0 to mean
// "claimed, not yet published", so a real key must never hash to zero.
func (m *Map[K, V]) computeHash(key *K) uint32 {
	h := m.hash(key)
	if h == 0 {
		h = 1
	}
	return h
}

func (m *Map[K, V]) addSize(delta int64) {
	m.size.Add(delta)
}

// Size returns the map's current element count. Because it is read from a
// single atomic counter updated by every concurrent PutIf, a racing writer
// can make this transiently negative (e.g. a delete's decrement overtaking
// a not-yet-visible insert's increment); Size clamps that to zero rather
// than surface an impossible negative count.
func (m *Map[K, V]) Size() int {
	s := m.size.Load()
	if s < 0 {
		return 0
	}
	return int(s)
}

// Free destroys every key still reachable from the map's current table (and
// drops its reference to any retired tables so they become ordinary
// garbage). It is not safe to call concurrently with any other method, nor
// to use the map afterward. Values are never destroyed, matching PutIf and
// Get's borrowed-value contract.
func (m *Map[K, V]) Free() {
	t := m.table.Load()
	t.prev.Store(nil)

	for i := range t.slots {
		s := &t.slots[i]
		k := s.loadKey()
		if k == nil || k == sizedKey[K]() {
			continue
		}
		m.destroy(k)
	}
}

// Stats reports a snapshot of the map's current table for capacity
// planning and diagnostics. It supplements the original's `hashmap_debug`,
// which only printed this information; Stats returns it as data instead.
type Stats struct {
	Length         int
	Size           int
	LoadFactor     float64
	EstimatedBytes uintptr
}

func (m *Map[K, V]) Stats() Stats {
	t := m.table.Load()
	size := m.Size()
	length := int(t.length)

	var loadFactor float64
	if length > 0 {
		loadFactor = float64(size) / float64(length)
	}

	return Stats{
		Length:         length,
		Size:           size,
		LoadFactor:     loadFactor,
		EstimatedBytes: uintptr(length) * unsafe.Sizeof(slot[K, V]{}),
	}
}
