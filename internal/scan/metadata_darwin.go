package scan

import (
	"os"
	"syscall"
	"time"

	"github.com/arlens/burrow/internal/node"
)

// fillTimes attaches access, change, and birth times from the
// underlying stat.
func fillTimes(meta *node.Metadata, info os.FileInfo) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		meta.ATime = info.ModTime()
		meta.CTime = info.ModTime()
		return
	}
	meta.ATime = time.Unix(stat.Atimespec.Sec, stat.Atimespec.Nsec)
	meta.CTime = time.Unix(stat.Ctimespec.Sec, stat.Ctimespec.Nsec)
	meta.BirthTime = time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec)
}
