package nbmap

import (
	"sync/atomic"
)

// sizedKey/sizedVal/deletedVal (and Ignore, below) materialize the package-level
// sentinel tags (sentinel.go) as typed pointers for a given instantiation
// of the map. Each is a single unsafe cast of a fixed, non-nil,
// never-dereferenced address; comparisons against them are pure pointer
// identity checks, exactly like the C original's void* sentinels.
func sizedKey[K any]() *K { return (*K)(sizedPtr) }
func sizedVal[V any]() *V { return (*V)(sizedPtr) }
func deletedVal[V any]() *V { return (*V)(deletedPtr) }

// Ignore returns the sentinel oldval that requests an unconditional update
// from PutIf, regardless of the value currently mapped. It corresponds to
// the IGNORE marker of the underlying entry state machine.
func Ignore[V any]() *V { return (*V)(ignorePtr) }

// slot holds one (key, hash, value) triple. All three fields are read and
// written with atomic accesses; the legal states and transitions are:
//
//	FREE        (nil, _, _)          claim -> PARTIAL; resize-copy -> SIZED-FREE
//	PARTIAL     (k, 0, _)            wait-hash -> VALUE
//	VALUE       (k, h, v)            update -> VALUE; resize-start -> SIZED-VALUE
//	SIZED-FREE  (SIZED, _, _)        terminal
//	SIZED-VALUE (k, h, SIZED)        terminal
type slot[K any, V any] struct {
	key  atomic.Pointer[K]
	val  atomic.Pointer[V]
	hash atomic.Uint32
}

// loadKey reads the key field. Returns nil (FREE), sizedKey[K]() (SIZED),
// or a caller-owned key pointer.
func (s *slot[K, V]) loadKey() *K {
	return s.key.Load()
}

// tryClaim attempts the FREE -> PARTIAL transition: publish key with a
// release barrier (Go's atomic CAS already provides that), then claim the
// slot. Returns false if the slot was no longer FREE.
func (s *slot[K, V]) tryClaim(key *K) bool {
	return s.key.CompareAndSwap(nil, key)
}

// confirmStillFree is a no-op CAS(nil, nil) used to confirm — with the same
// memory ordering as a real claim — that the slot is still FREE before
// treating a delete-of-absent-key request as a no-op. A plain load would
// work too, but the CAS form mirrors the original's `cas(&e->_key, null,
// null)` exactly.
func (s *slot[K, V]) confirmStillFree() bool {
	return s.key.CompareAndSwap(nil, nil)
}

// publishHash performs the PARTIAL -> VALUE transition's second half: the
// hash is written only after the key, so waiters that spin on a nonzero
// hash are guaranteed to observe a fully published key first.
func (s *slot[K, V]) publishHash(h uint32) {
	s.hash.Store(h)
}

// waitHash spins (with yield/backoff) until the hash has been published by
// whichever goroutine won the claim race on this slot: hash 0 means "key
// claimed, hash not yet published".
func (s *slot[K, V]) waitHash() uint32 {
	spins := 0
	for {
		if h := s.hash.Load(); h != 0 {
			return h
		}
		delay(&spins)
	}
}

// loadVal reads the value field. nil means tombstone (deleted / never set);
// sizedVal[V]() means the slot has migrated.
func (s *slot[K, V]) loadVal() *V {
	return s.val.Load()
}

func (s *slot[K, V]) casVal(old, new *V) bool {
	return s.val.CompareAndSwap(old, new)
}

// finalizeEmptyKey performs the FREE -> SIZED-FREE transition during a
// resize copy pass.
func (s *slot[K, V]) finalizeEmptyKey() bool {
	return s.key.CompareAndSwap(nil, sizedKey[K]())
}

// finalizeDeletedKey performs the k -> SIZED transition once a tombstone
// key has finished migrating and is no longer needed.
func (s *slot[K, V]) finalizeDeletedKey(k *K) bool {
	return s.key.CompareAndSwap(k, sizedKey[K]())
}

// zero resets a slot to FREE. Used by the resize coordinator's zero-work
// pass; see zeroBlock in resize.go for why this exists even though make() already
// zero-initializes a freshly allocated Go slice.
func (s *slot[K, V]) zero() {
	s.key.Store(nil)
	s.val.Store(nil)
	s.hash.Store(0)
}
