package nbmap

// putifInternal is the conditional upsert at the heart of the map. It
// claims (or finds) the slot for key in t, then — subject to the oldval
// guard — stores val there. Ported from the non-blocking hashmap's
// `_putif`.
//
// resizing distinguishes two callers:
//   - false: an ordinary public PutIf against the live table. Reprobing
//     past reprobeLimit triggers (or joins) a resize instead of continuing
//     to linearly probe forever.
//   - true: the resize coordinator replaying one slot of the old table
//     into the new one (resize.go's copyBlock). Reprobing never triggers a
//     nested resize; a FREE slot found while migrating a tombstone reports
//     deletedVal[V]() instead of planting a dead key in the new table.
//
// Return values:
//
//	sizedVal[V]()   - t has migrated; caller must help-resize and retry
//	               against the current table
//	deletedVal[V]() - (resizing only) key was a tombstone; nothing was
//	               written, and the caller must destroy key
//	otherwise    - the value previously mapped to key (nil if key was
//	               absent), matching the common compare-and-swap idiom
func putifInternal[K any, V any](m *Map[K, V], resizing bool, t *table[K, V], key *K, hash uint32, val *V, oldval *V) *V {
	idx := hash & t.mask
	mustFreeKey := false
	var tries uint32
	var s *slot[K, V]

claim:
	for {
		s = &t.slots[idx]
		k := s.loadKey()

		if k == nil {
			if val == nil && (oldval == Ignore[V]() || oldval == nil) {
				if resizing {
					return deletedVal[V]()
				}
				if s.confirmStillFree() {
					// delete of an absent key: nothing to do.
					m.destroy(key)
					return nil
				}
				k = s.loadKey()
			} else if s.tryClaim(key) {
				s.publishHash(hash)
				break claim
			} else {
				k = s.loadKey()
			}
		}

		if k == sizedKey[K]() {
			return sizedVal[V]()
		}

		h := s.waitHash()
		if h == hash && m.equals(k, key) {
			mustFreeKey = true
			break claim
		}

		if !resizing {
			tries++
			if tries >= m.reprobeLimit {
				return m.resize(t)
			}
		}
		idx = (idx + 1) & t.mask
	}

	v := s.loadVal()
	if v == sizedVal[V]() {
		return sizedVal[V]()
	}
	if !resizing && v != nil {
		if next := m.nextTable.Load(); next != nil && next != t {
			return sizedVal[V]()
		}
		if m.table.Load() != t {
			return sizedVal[V]()
		}
	}

	for {
		if oldval != Ignore[V]() && v != oldval {
			if resizing {
				panic("nbmap: invariant violation: value changed under a migrating slot")
			}
			if mustFreeKey {
				m.destroy(key)
			}
			return v
		}

		if s.casVal(v, val) {
			if !resizing {
				if v == nil && val != nil {
					m.addSize(1)
				} else if v != nil && val == nil {
					m.addSize(-1)
				}
				m.changes.Add(1)
			}
			if mustFreeKey {
				m.destroy(key)
			}
			return v
		}

		v = s.loadVal()
		if v == sizedVal[V]() {
			return sizedVal[V]()
		}
	}
}

// PutIf stores val for key if the currently mapped value compares equal to
// oldval — or unconditionally if oldval is Ignore[V](). It returns the
// value that was mapped immediately before the call (nil if key was
// absent). key's ownership always transfers to the call: the map either
// plants it in a FREE slot, or — on every other outcome (value mismatch,
// an equal key already resident, delete-of-absent) — destroys the caller's
// copy via the destroy capability given to New.
func (m *Map[K, V]) PutIf(key *K, val *V, oldval *V) *V {
	if key == nil {
		panic("nbmap: key must not be nil")
	}

	hash := m.computeHash(key)
	t := m.table.Load()

	for {
		v := putifInternal[K, V](m, false, t, key, hash, val, oldval)
		if v != sizedVal[V]() {
			return v
		}
		m.helpResize(t)
		t = m.table.Load()
	}
}

// Put unconditionally maps key to val, returning the previously mapped
// value (nil if key was absent).
func (m *Map[K, V]) Put(key *K, val *V) *V {
	return m.PutIf(key, val, Ignore[V]())
}

// Delete unconditionally removes key, returning the value it was mapped to
// (nil if key was already absent).
func (m *Map[K, V]) Delete(key *K) *V {
	return m.PutIf(key, nil, Ignore[V]())
}
