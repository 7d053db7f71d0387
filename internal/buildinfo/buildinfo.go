// Package buildinfo carries version metadata stamped at link time.
package buildinfo

// Version is overridden via -ldflags "-X tally/internal/buildinfo.Version=...".
var Version = "dev"

// Commit is the short VCS revision, when stamped.
var Commit = ""
