// Package flock provides cross-platform file locking utilities.
//
// taskpanel holds one exclusive lock per workflow for the lifetime of the
// process so that two panels cannot drive the same workflow (and race each
// other's state file). The locks are exclusive and non-blocking: a second
// panel fails fast instead of queueing behind the first.
//
// Usage:
//
//	file, _ := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
//	if err := flock.Exclusive(file.Fd()); err != nil {
//	    // Lock not acquired - workflow is in use
//	}
//	defer flock.Unlock(file.Fd())
package flock
