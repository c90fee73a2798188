package scan

import (
	"os"
	"syscall"
	"time"

	"github.com/arlens/burrow/internal/node"
)

// fillTimes attaches access and change times from the underlying stat.
// Linux does not expose a birth time through Stat_t, so it stays zero.
func fillTimes(meta *node.Metadata, info os.FileInfo) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		meta.ATime = info.ModTime()
		meta.CTime = info.ModTime()
		return
	}
	meta.ATime = time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	meta.CTime = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
