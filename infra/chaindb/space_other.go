//go:build !linux

package chaindb

// Free-space probing is best effort and only wired up on Linux.
func warnIfLowSpace(string) {}
