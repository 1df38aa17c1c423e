package nbmap

// promiseTable materializes the PROMISE sentinel (the original's
// `kvs_promise = (header*)1`) as a *table[K,V]: a fixed, non-nil,
// never-dereferenced address occupying Map.nextTable while the resize
// winner is still allocating the replacement table, so late arrivals know
// to wait rather than race to start their own resize.
func promiseTable[K any, V any]() *table[K, V] { return (*table[K, V])(promisePtr) }

// resize is the coordinator: the first caller to observe REPROBE_LIMIT
// consecutive occupied slots without a match wins the right to build the
// next table generation; everyone else (including this call, if it loses
// the race) falls through to helpResize. Ported from the non-blocking
// hashmap's `_resize`.
func (m *Map[K, V]) resize(old *table[K, V]) *V {
	if m.nextTable.Load() != nil {
		return sizedVal[V]()
	}
	if m.table.Load() != old {
		return sizedVal[V]()
	}

	if !m.nextTable.CompareAndSwap(nil, promiseTable[K, V]()) {
		return sizedVal[V]()
	}

	if m.table.Load() != old {
		if !m.nextTable.CompareAndSwap(promiseTable[K, V](), nil) {
			panic("nbmap: invariant violation: could not withdraw a stale resize promise")
		}
		return sizedVal[V]()
	}

	newLen := m.nextLength(old)
	nt := newTable[K, V](newLen, m.blockSize)

	// old.btodo/bdone are reused (after this reset) as the claim counters
	// for the copy-work pass below; nt's own counters serve the zero-work
	// pass and start at zero from allocation.
	old.btodo.Store(0)
	old.bdone.Store(0)

	m.nextTable.Store(nt)

	for zeroBlock(nt) {
	}
	for copyBlock(m, old, nt) {
	}

	now := m.wallClockSeconds()
	old.retiredAt.Store(now)
	nt.prev.Store(old)
	m.retire(nt)

	if !m.table.CompareAndSwap(old, nt) {
		panic("nbmap: invariant violation: failed to publish the resized table")
	}
	if !m.nextTable.CompareAndSwap(nt, nil) {
		panic("nbmap: invariant violation: failed to clear the in-progress resize marker")
	}
	m.changes.Store(0)

	return sizedVal[V]()
}

// nextLength picks the new table's slot count. A table that has
// accumulated a lot of churn (tombstones/overwrites) relative to its
// occupancy is compacted at the same length instead of grown, rather than
// grown further when churn is high but live occupancy is low.
func (m *Map[K, V]) nextLength(old *table[K, V]) uint32 {
	size := uint64(m.Size())
	changes := uint64(m.changes.Load())
	length := uint64(old.length)

	if changes > length/4 && length > 0 && size*10 < length*3 {
		return old.length
	}
	return old.length * 2
}

// zeroBlock claims and executes one chunk of nt's zero-work pass. Returns
// false once all chunks are claimed (by this call or another goroutine);
// a caller that gets false but arrived before the last chunk finished
// blocks until it has, so it never returns to its caller with partially
// zeroed table state in flight.
//
// A freshly made() Go slice of slot[K,V] is already zero-valued, so this
// pass has no observable effect on memory content — it exists to preserve
// the same cooperative claim/execute/acknowledge block protocol the copy
// pass relies on, so helpers arriving mid-resize see one consistent
// coordination mechanism rather than two.
func zeroBlock[K any, V any](nt *table[K, V]) bool {
	total := nt.totalBlocks()
	block := nt.btodo.Add(1) - 1
	if block >= total {
		spins := 0
		for nt.bdone.Load() < total {
			delay(&spins)
		}
		return false
	}

	start, end := nt.blockBounds(block)
	for i := start; i < end; i++ {
		nt.slots[i].zero()
	}

	done := nt.bdone.Add(1)
	return done < total
}

// copyBlock claims and executes one chunk of old's copy-work pass,
// migrating every live key into nt and finalizing every old slot: an empty
// slot or a migrated tombstone gets a SIZED key, a live slot keeps its key
// and gets a SIZED value.
// Ported from the non-blocking hashmap's `_copy_block`.
func copyBlock[K any, V any](m *Map[K, V], old, nt *table[K, V]) bool {
	total := old.totalBlocks()
	block := old.btodo.Add(1) - 1
	if block >= total {
		spins := 0
		for old.bdone.Load() < total {
			delay(&spins)
		}
		return false
	}

	start, end := old.blockBounds(block)
	for i := start; i < end; i++ {
		s := &old.slots[i]

		for {
			k := s.loadKey()

			if k != nil {
				v := s.loadVal()
				if !s.casVal(v, sizedVal[V]()) {
					continue
				}
				hash := s.waitHash()
				res := putifInternal[K, V](m, true, nt, k, hash, v, nil)
				if res == deletedVal[V]() {
					if !s.finalizeDeletedKey(k) {
						panic("nbmap: invariant violation: could not finalize a migrated tombstone key")
					}
					m.destroy(k)
				}
				break
			}

			if s.finalizeEmptyKey() {
				break
			}
			// lost the race for this empty slot; somebody else claimed or
			// finalized it concurrently — reread and retry.
		}
	}

	done := old.bdone.Add(1)
	return done < total
}

// helpResize cooperates with an in-flight resize of old: it waits for the
// winner to publish the replacement table (or starts one itself if the
// resize promise appears to have lapsed), then drains zero- and copy-work
// chunks alongside everyone else until old has been fully superseded.
// Ported from the non-blocking hashmap's `_help_resize`.
func (m *Map[K, V]) helpResize(old *table[K, V]) {
	if m.table.Load() != old {
		return
	}

	spins := 0
	var nt *table[K, V]
	for {
		p := m.nextTable.Load()
		if p != nil && p != promiseTable[K, V]() {
			nt = p
			break
		}
		if m.table.Load() != old {
			return
		}
		if p == nil {
			m.resize(old)
			return
		}
		delay(&spins)
	}

	for m.table.Load() == old && zeroBlock(nt) {
	}
	for m.table.Load() == old && copyBlock(m, old, nt) {
	}

	spins = 0
	for m.table.Load() == old {
		delay(&spins)
	}
}
