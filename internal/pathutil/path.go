// Package pathutil implements the path-name utilities shared by every
// other index component: normalization, parent/filename splitting,
// reverse-map marshalling, ancestor enumeration, and blob ID generation.
package pathutil

import (
	"strings"

	"github.com/google/uuid"
)

// Root is the implicit root directory. It is never stored as a PathMap row.
const Root = "/"

// Normalize concatenates a parent path and a filename with a single
// separator, collapsing any duplicate slashes produced by naive joins.
func Normalize(parent, filename string) string {
	if parent == "" {
		parent = Root
	}
	joined := parent
	if !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	joined += strings.TrimPrefix(filename, "/")
	return collapseSlashes(joined)
}

func collapseSlashes(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// ParentPath returns everything up to and including the last '/' before
// the final path component, or Root for top-level entries. It returns
// ("", false) for the root path itself, which has no parent.
func ParentPath(p string) (string, bool) {
	p = collapseSlashes(p)
	if p == "" || p == Root {
		return "", false
	}

	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", false
	}
	if idx == 0 {
		return Root, true
	}
	return trimmed[:idx+1], true
}

// Filename returns the final path component. For directory paths ending
// in '/', the trailing slash is retained. Returns ("", false) for the
// root path, which has no filename.
func Filename(p string) (string, bool) {
	p = collapseSlashes(p)
	if p == "" || p == Root {
		return "", false
	}

	isDir := strings.HasSuffix(p, "/")
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")

	name := trimmed
	if idx >= 0 {
		name = trimmed[idx+1:]
	}
	if isDir {
		name += "/"
	}
	return name, true
}

// NormalizeParentPath ensures p ends in a trailing slash, suitable for
// use as a range-query prefix key over (filesystem, parentPath).
func NormalizeParentPath(p string) string {
	p = collapseSlashes(p)
	if p == "" {
		return Root
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// IsDirectoryPath reports whether p denotes a directory by spec
// convention (trailing slash), treating Root as a directory.
func IsDirectoryPath(p string) bool {
	return p == Root || strings.HasSuffix(p, "/")
}

// Marshall produces the stable string stored as a ReverseMap set
// element for a given (filesystem, path) pair. The format round-trips
// through Unmarshall.
func Marshall(filesystem, path string) string {
	return filesystem + ":" + path
}

// Unmarshall splits a ReverseMap element back into (filesystem, path).
// The filesystem is taken up to the first ':'; ok is false if the
// marshalled string does not contain a separator.
func Unmarshall(marshalled string) (filesystem, path string, ok bool) {
	idx := strings.Index(marshalled, ":")
	if idx < 0 {
		return "", "", false
	}
	return marshalled[:idx], marshalled[idx+1:], true
}

// ParentsBottomUp returns the ordered sequence of ancestor directory
// paths for entry, from its immediate parent up to (but not including)
// Root. factory converts each ancestor directory path into the
// caller's row type, e.g. a PathMap directory entry.
func ParentsBottomUp[T any](entry string, factory func(dirPath string) T) []T {
	var dirs []string

	current, ok := ParentPath(entry)
	for ok && current != Root {
		dirs = append(dirs, current)
		current, ok = ParentPath(strings.TrimSuffix(current, "/"))
	}

	result := make([]T, len(dirs))
	for i, d := range dirs {
		result[i] = factory(d)
	}
	return result
}

// ShardPrefixLen is the number of leading characters of a RandomFileID
// the physical store uses as a two-level sharding prefix.
const ShardPrefixLen = 4

// RandomFileID generates an opaque blob identifier. Its first
// ShardPrefixLen characters double as the physical store's sharding
// prefix, so the identifier's leading characters must be well
// distributed — a UUID's hex digits satisfy that without any extra
// bookkeeping.
func RandomFileID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ShardPrefix returns the sharding prefix a physical store would use
// for the given blob ID.
func ShardPrefix(fileID string) string {
	if len(fileID) < ShardPrefixLen {
		return fileID
	}
	return fileID[:ShardPrefixLen]
}
