// Package payload moves large field groups of an object out of its archive and into
// files of their own, and pages them back in on request.
//
// A payload is in one of three states:
//
//	InMemory         never offloaded; the in-memory buffer is authoritative
//	ExternalUnloaded offloaded; the buffer is empty and the file is authoritative
//	ExternalCached   offloaded and read back; the buffer mirrors the file
//
// ConvertToExternalStorage moves InMemory to ExternalUnloaded, Load moves
// ExternalUnloaded to ExternalCached and Unload moves back again.
package payload

import "strings"

// IsAbsolute reports whether name is treated as an absolute payload path. A name is
// absolute when it starts with '/' or when its second and third characters are a drive
// letter separator such as "C:\". Archives written on any platform rely on exactly this
// rule, so it does not consult the host OS.
func IsAbsolute(name string) bool {
	if name == "" {
		return false
	}
	if name[0] == '/' {
		return true
	}
	return len(name) >= 3 && name[1] == ':' && name[2] == '\\'
}

// ResolvePath turns a payload name into the path its file lives at. Absolute names are
// returned as is; relative names are joined to baseDir with a single '/' unless baseDir
// already ends in a separator. An empty baseDir leaves the name relative to the working
// directory.
func ResolvePath(baseDir, name string) string {
	if IsAbsolute(name) || baseDir == "" {
		return name
	}
	if strings.HasSuffix(baseDir, "/") || strings.HasSuffix(baseDir, "\\") {
		return baseDir + name
	}
	return baseDir + "/" + name
}
