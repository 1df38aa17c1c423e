package nbmap

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to pad hot atomic fields so they don't share a
// cache line with unrelated fields. It's derived from golang.org/x/sys/cpu
// so the value tracks the architectures that package already knows about.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})
