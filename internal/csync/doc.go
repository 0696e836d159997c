// Package csync provides thread-safe concurrent data structures.
//
// This package implements a generic, thread-safe set protected by a
// read-write mutex, safe for concurrent access from multiple goroutines.
// Mutating operations report whether they actually changed membership,
// which lets callers persist only on effective change.
//
// The set also implements JSON marshaling/unmarshaling for persistence;
// serialized form is a sorted array so output is deterministic.
//
// Example usage:
//
//	apps := csync.NewSet[uint32]()
//	if apps.AddRange(730, 440) {
//		// Membership changed, persist.
//	}
//	apps.Range(func(id uint32) bool {
//		fmt.Println(id)
//		return true // Continue iteration
//	})
//
// Iteration operates on a snapshot taken at call time, so the callback may
// mutate the set and concurrent writers never invalidate an iteration in
// progress.
package csync
