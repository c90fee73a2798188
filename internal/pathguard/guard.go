// Package pathguard classifies externally supplied path strings before
// they reach the scan engine or the persistent stores.
package pathguard

import (
	"path"
	"path/filepath"
	"strings"
)

// reservedChars are stripped by Sanitize. The colon is handled separately
// so a leading drive designator survives on platforms that use one.
const reservedChars = "<>:\"|?*"

// shellMetaChars cause Sanitize to reject the input outright.
const shellMetaChars = ";&|`$()"

// Normalize returns a canonical filesystem path string. It removes
// trailing slashes, collapses "." and "..", and preserves relative paths
// when provided.
func Normalize(p string) string {
	if p == "" {
		return p
	}
	return filepath.Clean(p)
}

// SafeRelative reports whether p is a safe relative path: non-empty,
// free of null bytes, not absolute, without parent traversal and without
// multi-slash artefacts.
func SafeRelative(p string) bool {
	if strings.TrimSpace(p) == "" {
		return false
	}
	if strings.ContainsRune(p, 0) {
		return false
	}
	if isAbsolute(p) {
		return false
	}
	slashed := strings.ReplaceAll(p, "\\", "/")
	if strings.Contains(slashed, "//") {
		return false
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." || seg == "." {
			return false
		}
	}
	// Normalisation must not leave any way back up the tree.
	cleaned := path.Clean(slashed)
	if cleaned == ".." || strings.Contains(cleaned, "..") {
		return false
	}
	return true
}

// SafePath reports whether p may be used as a filesystem target. Absolute
// paths are accepted as-is; reachability is the caller's concern. Relative
// paths must be safe and must stay inside base once resolved.
func SafePath(p, base string) bool {
	if strings.TrimSpace(p) == "" || strings.ContainsRune(p, 0) {
		return false
	}
	if isAbsolute(p) {
		return true
	}
	if !SafeRelative(p) {
		return false
	}
	baseClean := filepath.Clean(base)
	if baseClean == "." {
		// A safe relative path resolved against the working directory
		// cannot escape it.
		return true
	}
	resolved := filepath.Clean(filepath.Join(base, p))
	if resolved == baseClean {
		return true
	}
	return strings.HasPrefix(resolved, baseClean+string(filepath.Separator))
}

// Sanitize scrubs p into a canonical safe-relative form, preserving a
// leading drive designator when present. It strips reserved filesystem
// characters, rejects shell metacharacters, and collapses separators to
// forward slashes. The second return value is false when p cannot be
// made safe.
func Sanitize(p string) (string, bool) {
	if strings.TrimSpace(p) == "" {
		return "", false
	}
	if strings.ContainsAny(p, shellMetaChars) {
		return "", false
	}

	drive := ""
	rest := p
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		drive = p[:2]
		rest = p[2:]
	}

	var b strings.Builder
	for _, r := range rest {
		if r < 0x20 || strings.ContainsRune(reservedChars, r) {
			continue
		}
		if r == '\\' {
			b.WriteRune('/')
			continue
		}
		b.WriteRune(r)
	}

	cleaned := b.String()
	for strings.Contains(cleaned, "//") {
		cleaned = strings.ReplaceAll(cleaned, "//", "/")
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	cleaned = strings.TrimSuffix(cleaned, "/")

	if !SafeRelative(cleaned) {
		return "", false
	}
	return drive + cleaned, true
}

func isAbsolute(p string) bool {
	if filepath.IsAbs(p) {
		return true
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return true
	}
	// Windows-style drive-absolute, checked on every platform so inputs
	// ferried across machines classify the same way.
	if len(p) >= 3 && p[1] == ':' && isDriveLetter(p[0]) && (p[2] == '/' || p[2] == '\\') {
		return true
	}
	return false
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
