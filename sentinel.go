package nbmap

import "unsafe"

// Sentinel tags. Each is a unique, non-nil, never-dereferenced pointer used
// purely for identity comparisons against slot/Map fields. They stand in
// for the original's `(void*)"__SIZED__"`-style string-literal addresses and
// its `(header*)1` resize promise: any stable, non-nil address that can
// never coincide with a real boxed key, boxed value, or table pointer works
// equally well.
var (
	sizedTag   byte
	ignoreTag  byte
	deletedTag byte
	promiseTag byte
)

var (
	// sizedPtr marks a slot as migrated to a new table. Occupies the key or
	// value field.
	sizedPtr = unsafe.Pointer(&sizedTag)

	// ignorePtr is passed by callers as oldval to request an unconditional
	// update, matching the IGNORE sentinel of the entry state machine.
	ignorePtr = unsafe.Pointer(&ignoreTag)

	// deletedPtr is the internal return code from putif when running in
	// resize-copy mode, signalling the migrated key should be destroyed.
	deletedPtr = unsafe.Pointer(&deletedTag)

	// promisePtr occupies Map.nextTable while the resize winner is still
	// allocating the new table, so late helpers know to wait rather than
	// attempt to win the resize race themselves.
	promisePtr = unsafe.Pointer(&promiseTag)
)
