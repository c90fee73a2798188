package scan

import (
	"errors"
	"strings"
	"syscall"
)

// Classified error codes attached to error-bearing nodes and to the
// rename/delete pass-through responses.
const (
	CodeAccess      = "EACCES"
	CodeNotExist    = "ENOENT"
	CodeNotDir      = "ENOTDIR"
	CodeExist       = "EEXIST"
	CodeInvalid     = "EINVAL"
	CodeNoSpace     = "ENOSPC"
	CodeTooManyOpen = "EMFILE"
	CodeUnknown     = "UNKNOWN"
)

// Classify maps a filesystem error onto the normalised code set. The
// original message stays with the node; only the code is derived here.
func Classify(err error) string {
	if err == nil {
		return CodeUnknown
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EACCES, syscall.EPERM:
			return CodeAccess
		case syscall.ENOENT:
			return CodeNotExist
		case syscall.ENOTDIR:
			return CodeNotDir
		case syscall.EEXIST:
			return CodeExist
		case syscall.EINVAL:
			return CodeInvalid
		case syscall.ENOSPC:
			return CodeNoSpace
		case syscall.EMFILE, syscall.ENFILE:
			return CodeTooManyOpen
		}
	}

	// Fall back on the human message for errors that arrive without an
	// errno, e.g. relayed from another process.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "access is denied"):
		return CodeAccess
	case strings.Contains(msg, "no such file"), strings.Contains(msg, "cannot find"):
		return CodeNotExist
	case strings.Contains(msg, "not a directory"):
		return CodeNotDir
	case strings.Contains(msg, "file exists"), strings.Contains(msg, "already exists"):
		return CodeExist
	case strings.Contains(msg, "invalid argument"):
		return CodeInvalid
	case strings.Contains(msg, "no space left"):
		return CodeNoSpace
	case strings.Contains(msg, "too many open files"):
		return CodeTooManyOpen
	}
	return CodeUnknown
}
