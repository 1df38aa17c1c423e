package nbmap

import "time"

// retire sweeps the retirement chain rooted at nt (the caller has already
// linked nt.prev to the table it replaces), severing anything at the tail of
// the chain old enough to have outlived every goroutine that
// might still be probing it. Ported from the non-blocking hashmap's
// `push_old_kvs` + `free_old_kvs`.
//
// This is a wall-clock heuristic, not hazard pointers or an epoch scheme: a
// goroutine that pauses for longer than the retention window while still
// holding a reference to a superseded table risks that table's tail being
// severed out from under the chain it walked in from. The original has the
// same limitation (a fixed 30-second `current_time()` cutoff); this carries
// it forward rather than redesigning reclamation.
func (m *Map[K, V]) retire(nt *table[K, V]) {
	m.sweepRetired(nt)
}

// sweepRetired walks back from nt and severs the chain at the first table
// whose retirement timestamp is older than the configured retention
// window, letting Go's garbage collector reclaim everything beyond that
// point once no other goroutine holds a reference to it.
func (m *Map[K, V]) sweepRetired(nt *table[K, V]) {
	cutoff := m.wallClockSeconds() - int64(m.retention/time.Second)

	cur := nt
	for {
		prev := cur.prev.Load()
		if prev == nil {
			return
		}
		if prev.retiredAt.Load() <= cutoff {
			cur.prev.Store(nil)
			return
		}
		cur = prev
	}
}

func (m *Map[K, V]) wallClockSeconds() int64 {
	return time.Now().Unix()
}
