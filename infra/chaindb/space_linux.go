//go:build linux

package chaindb

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// lowSpaceBytes is the free-space floor below which opening the database
// logs a warning. The database stays usable; running a ledger store into
// a full disk is what the warning is for.
const lowSpaceBytes = 256 << 20

func warnIfLowSpace(dir string) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < lowSpaceBytes {
		slog.Warn("low disk space for chain db", "dir", dir, "free_bytes", free)
	}
}
