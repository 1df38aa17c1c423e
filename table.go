package nbmap

import (
	"sync/atomic"
)

// blockPad separates two hot atomic counters onto different cache lines so
// independent goroutines racing to claim zero-work and copy-work chunks
// don't ping-pong the same line between cores. Sized to a full cache line
// rather than the minimal byte count a struct-packing formula would give,
// since we only need "far enough apart", not "tightly packed".
type blockPad [CacheLineSize]byte

// table is one generation of the slot array: a fixed-length, power-of-two
// sized open-addressing table plus the bookkeeping a resize needs to hand
// its zero and copy work out in claimable chunks and to retire the table it
// replaced. Based on the non-blocking hashmap's `header` struct:
//
//	struct header {
//	    volatile AO_t _btodo;
//	    unsigned long len;
//	    header *prev;
//	    volatile AO_t _bdone;
//	    entry kvs[0];
//	};
type table[K any, V any] struct {
	length    uint32 // power of two; slot count
	mask      uint32 // length - 1
	blockSize uint32 // slots per claimable resize chunk

	_pad0 blockPad
	btodo atomic.Uint32 // next unclaimed resize chunk index
	_pad1 blockPad
	bdone atomic.Uint32 // chunks fully finished

	prev      atomic.Pointer[table[K, V]] // retirement chain, newest-first
	retiredAt atomic.Int64                // unix seconds this table was superseded; 0 = still current or not yet retired

	slots []slot[K, V]
}

// newTable allocates a table of the given slot count, rounded up to the
// next power of two, with at least 1 slot. blockSize is clamped to the
// table length so a table smaller than one block still gets exactly one
// resize chunk (nbhashmap.c: "if (todo == 0) todo = 1").
func newTable[K any, V any](length uint32, blockSize uint32) *table[K, V] {
	length = nextPowOf2(length)
	if length == 0 {
		length = 1
	}
	if blockSize == 0 || blockSize > length {
		blockSize = length
	}

	return &table[K, V]{
		length:    length,
		mask:      length - 1,
		blockSize: blockSize,
		slots:     make([]slot[K, V], length),
	}
}

// totalBlocks returns the number of resize chunks this table is divided
// into for the cooperative zero/copy passes (nbhashmap.c: "1 + (len-1) /
// BLOCK_SIZE").
func (t *table[K, V]) totalBlocks() uint32 {
	return 1 + (t.length-1)/t.blockSize
}

// blockBounds returns the half-open slot range [start, end) for chunk
// index i, clamped to the table length.
func (t *table[K, V]) blockBounds(i uint32) (start, end uint32) {
	start = i * t.blockSize
	end = start + t.blockSize
	if end > t.length {
		end = t.length
	}
	return start, end
}

func nextPowOf2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
