package nbmap

import (
	"time"
	_ "unsafe" // for go:linkname
)

// delay backs a thread off when it must wait for another goroutine's
// in-flight promise: a claimed-but-unpublished hash, a resize winner that
// hasn't published the new table yet, or a block cohort that hasn't
// finished. It spins briefly on architectures where that's productive and
// otherwise falls back to a short sleep, using the same
// delay/runtime_canSpin/runtime_doSpin spin-then-park pattern pb's MapOf
// uses for its own wait loops.
func delay(spins *int) {
	const backoffSleep = 500 * time.Microsecond
	if runtime_canSpin(*spins) {
		runtime_doSpin()
		*spins++
	} else {
		time.Sleep(backoffSleep)
		*spins = 0
	}
}

//go:linkname runtime_canSpin sync.runtime_canSpin
//go:nosplit
func runtime_canSpin(i int) bool

//go:linkname runtime_doSpin sync.runtime_doSpin
//go:nosplit
func runtime_doSpin()
