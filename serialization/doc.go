// Package serialization implements a polymorphic, versioned binary archive.
//
// Types that want to travel through an Archive implement Serializable and register a
// factory under a stable class name. Writing an object emits its class name and current
// version followed by whatever its Encode method writes. Reading looks the class name up
// in a Registry, builds a blank instance and hands it the declared version so it can
// interpret any layout it ever wrote.
//
// Wire format (little endian):
//
//	object    := nameLen:u32 name version:u16 payload
//	null      := 0:u32
//	backref   := 0xFFFFFFFF:u32 ordinal:u32
//	buffer    := count:u32 count*element
//
// An Archive is meant for sequential use by a single goroutine. A Registry is safe for
// concurrent use.
package serialization
