package nbmap

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

type intKey struct{ v int }

func hashIntKey(k *intKey) uint32 {
	// A simple multiplicative mix; good enough for test distribution, not
	// meant as a production default — hashing is always caller-supplied.
	return uint32(k.v)*2654435761 + 1
}

func equalIntKey(a, b *intKey) bool {
	return a.v == b.v
}

// destroyTracker records every key passed to destroy exactly once and
// fails the test if the same key pointer is destroyed twice.
type destroyTracker struct {
	mu    sync.Mutex
	seen  map[*intKey]bool
	t     *testing.T
	count atomic.Int64
}

func newDestroyTracker(t *testing.T) *destroyTracker {
	return &destroyTracker{seen: make(map[*intKey]bool), t: t}
}

func (d *destroyTracker) destroy(k *intKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[k] {
		d.t.Fatalf("key %v destroyed more than once", k.v)
	}
	d.seen[k] = true
	d.count.Add(1)
}

func newIntMap(t *testing.T, opts ...Option) (*Map[intKey, int], *destroyTracker) {
	dt := newDestroyTracker(t)
	m := New[intKey, int](hashIntKey, equalIntKey, dt.destroy, opts...)
	return m, dt
}

func TestNewPanicsOnMissingCapability(t *testing.T) {
	cases := []struct {
		name string
		fn   func()
	}{
		{"nil hash", func() { New[intKey, int](nil, equalIntKey, func(*intKey) {}) }},
		{"nil equals", func() { New[intKey, int](hashIntKey, nil, func(*intKey) {}) }},
		{"nil destroy", func() { New[intKey, int](hashIntKey, equalIntKey, nil) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			c.fn()
		})
	}
}

func TestPutGetDelete(t *testing.T) {
	m, dt := newIntMap(t)

	k := &intKey{v: 42}
	v := 100
	if prev := m.Put(k, &v); prev != nil {
		t.Fatalf("Put on fresh key returned %v, want nil", prev)
	}
	if got := m.Get(&intKey{v: 42}); got == nil || *got != 100 {
		t.Fatalf("Get = %v, want 100", got)
	}
	if m.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", m.Size())
	}

	prev := m.Delete(&intKey{v: 42})
	if prev == nil || *prev != 100 {
		t.Fatalf("Delete returned %v, want 100", prev)
	}
	if got := m.Get(&intKey{v: 42}); got != nil {
		t.Fatalf("Get after delete = %v, want nil", got)
	}
	if m.Size() != 0 {
		t.Fatalf("Size() after delete = %d, want 0", m.Size())
	}

	m.Free()
	// One destroy from Delete's own call-boundary key (it matched the
	// resident key by value, so ownership of the argument transfers and is
	// released immediately); one more from Free destroying the resident
	// tombstone key left behind by the delete.
	if got := dt.count.Load(); got != 2 {
		t.Fatalf("destroy count = %d, want 2", got)
	}
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	m, _ := newIntMap(t)
	if got := m.Get(&intKey{v: 7}); got != nil {
		t.Fatalf("Get on empty map = %v, want nil", got)
	}
}

func TestPutIfConditionalUpdate(t *testing.T) {
	m, _ := newIntMap(t)

	k := &intKey{v: 1}
	v1, v2, v3 := 10, 20, 30

	// Insert unconditionally.
	m.Put(k, &v1)

	// Wrong oldval: no-op, returns current value.
	prev := m.PutIf(&intKey{v: 1}, &v2, &v3)
	if prev == nil || *prev != 10 {
		t.Fatalf("PutIf with wrong oldval returned %v, want 10", prev)
	}
	if got := m.Get(&intKey{v: 1}); got == nil || *got != 10 {
		t.Fatalf("value changed despite oldval mismatch: %v", got)
	}

	// Correct oldval: succeeds.
	prev = m.PutIf(&intKey{v: 1}, &v2, &v1)
	if prev == nil || *prev != 10 {
		t.Fatalf("PutIf with correct oldval returned %v, want 10", prev)
	}
	if got := m.Get(&intKey{v: 1}); got == nil || *got != 20 {
		t.Fatalf("value after matching PutIf = %v, want 20", got)
	}
}

func TestDeleteOfAbsentKeyDestroysCallersKey(t *testing.T) {
	m, dt := newIntMap(t)

	k := &intKey{v: 99}
	prev := m.Delete(k)
	if prev != nil {
		t.Fatalf("Delete of absent key returned %v, want nil", prev)
	}
	dt.mu.Lock()
	destroyed := dt.seen[k]
	dt.mu.Unlock()
	if !destroyed {
		t.Fatalf("Delete of an absent key must still destroy the caller's key")
	}
}

func TestRedundantKeyIsDestroyedNotPlanted(t *testing.T) {
	m, dt := newIntMap(t)

	k1 := &intKey{v: 5}
	v1 := 1
	m.Put(k1, &v1)

	k2 := &intKey{v: 5} // equal key, distinct object
	v2 := 2
	m.Put(k2, &v2)

	dt.mu.Lock()
	destroyedK2 := dt.seen[k2]
	destroyedK1 := dt.seen[k1]
	dt.mu.Unlock()

	if !destroyedK2 {
		t.Fatalf("the redundant key object (k2) must be destroyed once it's found to already be resident")
	}
	if destroyedK1 {
		t.Fatalf("the resident key object (k1) must not be destroyed while still live")
	}
}

// TestPutIfOwnershipOnMismatch checks the Open Question #1 decision
// recorded in DESIGN.md: a PutIf whose oldval doesn't match must destroy
// its own call-boundary key argument, leaving the resident key untouched.
func TestPutIfOwnershipOnMismatch(t *testing.T) {
	m, dt := newIntMap(t)

	resident := &intKey{v: 1}
	v1 := 10
	m.Put(resident, &v1)

	mismatchKey := &intKey{v: 1}
	v2, wrongOld := 20, 999
	prev := m.PutIf(mismatchKey, &v2, &wrongOld)
	if prev == nil || *prev != 10 {
		t.Fatalf("PutIf mismatch returned %v, want 10", prev)
	}

	dt.mu.Lock()
	destroyedMismatch := dt.seen[mismatchKey]
	destroyedResident := dt.seen[resident]
	dt.mu.Unlock()

	if !destroyedMismatch {
		t.Fatalf("call-boundary key must be destroyed on an oldval mismatch")
	}
	if destroyedResident {
		t.Fatalf("resident key must remain live after a mismatch")
	}
}

// TestEqualsToleratesDestroyedKey documents a hazard carried forward from
// the original algorithm: destroy is a caller hook, not deallocation, so a
// key already passed to destroy must remain safe for equals to read.
func TestEqualsToleratesDestroyedKey(t *testing.T) {
	dt := newDestroyTracker(t)
	k := &intKey{v: 3}
	dt.destroy(k)

	if !equalIntKey(k, &intKey{v: 3}) {
		t.Fatalf("equals must still read a destroyed key's fields correctly")
	}
}

// TestConditionalDeleteOfAbsentKeyWithWrongOldvalPlantsTombstone documents
// an edge case inherited from the original algorithm (DESIGN.md open
// question #4): a delete guarded by a specific expected value, issued
// against a key that isn't present, still claims a slot (as a val-nil
// tombstone) instead of being recognized as a pure no-op. That slot is
// only reclaimed the next time the table is copied during a resize.
func TestConditionalDeleteOfAbsentKeyWithWrongOldvalPlantsTombstone(t *testing.T) {
	m, dt := newIntMap(t, WithInitialCapacity(4))

	absentKey := &intKey{v: 1}
	wrongOld := 999
	prev := m.PutIf(absentKey, nil, &wrongOld)
	if prev != nil {
		t.Fatalf("PutIf returned %v, want nil (key was absent)", prev)
	}
	if m.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", m.Size())
	}

	dt.mu.Lock()
	destroyed := dt.seen[absentKey]
	dt.mu.Unlock()
	if destroyed {
		t.Fatalf("absentKey should have been planted as a tombstone, not destroyed")
	}

	// Force a resize; the planted tombstone should be reclaimed rather
	// than carried forward into the new table.
	for i := 0; i < 64; i++ {
		v := i
		m.Put(&intKey{v: i + 1000}, &v)
	}

	dt.mu.Lock()
	destroyedAfterResize := dt.seen[absentKey]
	dt.mu.Unlock()
	if !destroyedAfterResize {
		t.Fatalf("the planted tombstone should be destroyed once its table is copied during a resize")
	}
}

func TestSizeClampsTransientNegative(t *testing.T) {
	m, _ := newIntMap(t)
	m.size.Store(-5)
	if got := m.Size(); got != 0 {
		t.Fatalf("Size() = %d, want 0 when the raw counter is negative", got)
	}
}

func TestStatsReportsLoadFactor(t *testing.T) {
	m, _ := newIntMap(t, WithInitialCapacity(8))
	for i := 0; i < 4; i++ {
		v := i
		m.Put(&intKey{v: i}, &v)
	}
	st := m.Stats()
	if st.Length != 8 {
		t.Fatalf("Stats().Length = %d, want 8", st.Length)
	}
	if st.Size != 4 {
		t.Fatalf("Stats().Size = %d, want 4", st.Size)
	}
	if st.LoadFactor != 0.5 {
		t.Fatalf("Stats().LoadFactor = %v, want 0.5", st.LoadFactor)
	}
}

func TestFreeDestroysEveryLiveKeyExactlyOnce(t *testing.T) {
	m, dt := newIntMap(t)
	const n = 64
	for i := 0; i < n; i++ {
		v := i
		m.Put(&intKey{v: i}, &v)
	}
	m.Free()
	if got := dt.count.Load(); got != n {
		t.Fatalf("destroy count after Free = %d, want %d", got, n)
	}
}

// TestGrowthPreservesAllEntries forces the table through several resizes
// by inserting well past the initial capacity and the reprobe limit, then
// verifies every key is still reachable.
func TestGrowthPreservesAllEntries(t *testing.T) {
	m, _ := newIntMap(t, WithInitialCapacity(4))
	const n = 5000
	for i := 0; i < n; i++ {
		v := i * 2
		m.Put(&intKey{v: i}, &v)
	}
	if m.Size() != n {
		t.Fatalf("Size() = %d, want %d", m.Size(), n)
	}
	for i := 0; i < n; i++ {
		got := m.Get(&intKey{v: i})
		if got == nil || *got != i*2 {
			t.Fatalf("Get(%d) = %v, want %d", i, got, i*2)
		}
	}
}

func TestConcurrentPutGetDelete(t *testing.T) {
	m, _ := newIntMap(t, WithInitialCapacity(4))
	const numWorkers = 8
	const numIters = 5000
	const numKeys = 200

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(seed)))
			for i := 0; i < numIters; i++ {
				j := r.Intn(numKeys)
				switch r.Intn(3) {
				case 0:
					v := j
					m.Put(&intKey{v: j}, &v)
				case 1:
					m.Delete(&intKey{v: j})
				case 2:
					if got := m.Get(&intKey{v: j}); got != nil && *got != j {
						t.Errorf("Get(%d) = %d, want %d", j, *got, j)
					}
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestConcurrentGrowthHelpers(t *testing.T) {
	m, _ := newIntMap(t, WithInitialCapacity(4), WithBlockSize(8))
	const numWorkers = 6
	const perWorker = 2000

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v := base*perWorker + i
				m.Put(&intKey{v: base*perWorker + i}, &v)
			}
		}(w)
	}
	wg.Wait()

	if got := m.Size(); got != numWorkers*perWorker {
		t.Fatalf("Size() = %d, want %d", got, numWorkers*perWorker)
	}
	for w := 0; w < numWorkers; w++ {
		for i := 0; i < perWorker; i++ {
			key := w*perWorker + i
			got := m.Get(&intKey{v: key})
			if got == nil || *got != key {
				t.Fatalf("Get(%d) = %v, want %d", key, got, key)
			}
		}
	}
}

// TestStringKeysSmoke exercises the map with a non-struct key type and a
// hash drawn from the string, mirroring pb's own string-keyed tests.
func TestStringKeysSmoke(t *testing.T) {
	type strKey struct{ s string }
	hash := func(k *strKey) uint32 {
		var h uint32 = 2166136261
		for i := 0; i < len(k.s); i++ {
			h ^= uint32(k.s[i])
			h *= 16777619
		}
		return h
	}
	equals := func(a, b *strKey) bool { return a.s == b.s }

	m := New[strKey, string](hash, equals, func(*strKey) {})
	for i := 0; i < 100; i++ {
		s := "key-" + strconv.Itoa(i)
		v := fmt.Sprintf("value-%d", i)
		m.Put(&strKey{s: s}, &v)
	}
	for i := 0; i < 100; i++ {
		s := "key-" + strconv.Itoa(i)
		got := m.Get(&strKey{s: s})
		want := fmt.Sprintf("value-%d", i)
		if got == nil || *got != want {
			t.Fatalf("Get(%q) = %v, want %q", s, got, want)
		}
	}
}
