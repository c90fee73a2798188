package scan

import (
	"os"

	"github.com/arlens/burrow/internal/node"
)

// collectMetadata builds the optional metadata bundle for an entry that
// has already been stat'd. Failures while resolving extra detail attach
// an error code to the bundle instead of discarding the node.
func collectMetadata(path string, info os.FileInfo) *node.Metadata {
	meta := &node.Metadata{
		Size:  info.Size(),
		MTime: info.ModTime(),
	}
	fillTimes(meta, info)

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			meta.Error = Classify(err)
			return meta
		}
		meta.LinkTarget = target
		resolved, err := os.Stat(path)
		if err != nil {
			meta.Error = Classify(err)
			return meta
		}
		meta.ResolvedType = string(node.KindFromMode(resolved.Mode()))
	}
	return meta
}
