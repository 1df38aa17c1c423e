package nbmap

// getInternal walks the probe sequence for hash/key starting at its home
// slot in t, returning:
//
//	nil          - key not present in t
//	sizedVal[V]()  - this slot (or an earlier one on the probe sequence)
//	               has migrated; caller must help the resize and retry
//	               against the current table
//	otherwise    - the live value pointer mapped to key
//
// Ported from the non-blocking hashmap's `_get`.
func getInternal[K any, V any](t *table[K, V], m *Map[K, V], key *K, hash uint32) *V {
	idx := hash & t.mask
	var tries uint32

	for {
		s := &t.slots[idx]
		k := s.loadKey()

		if k == nil {
			return nil
		}
		if k == sizedKey[K]() {
			return sizedVal[V]()
		}

		h := s.waitHash()
		if h == hash && m.equals(k, key) {
			return s.loadVal()
		}

		tries++
		if tries >= t.length {
			return nil
		}
		idx = (idx + 1) & t.mask
	}
}

// Get returns the value currently mapped to key, or nil if key is absent.
// The returned pointer is borrowed: the map never destroys values, so it
// remains valid for as long as the caller needs it.
func (m *Map[K, V]) Get(key *K) *V {
	if key == nil {
		panic("nbmap: key must not be nil")
	}

	hash := m.computeHash(key)
	t := m.table.Load()

	for {
		v := getInternal[K, V](t, m, key, hash)
		if v != sizedVal[V]() {
			return v
		}
		m.helpResize(t)
		t = m.table.Load()
	}
}
