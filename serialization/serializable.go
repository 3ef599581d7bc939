package serialization

// Serializable is implemented by every type that can be written to and read from an
// Archive.
//
// Encode always writes the layout of SerializationVersion. Decode must accept every
// version from 0 up to SerializationVersion and fill defaults for fields that did not
// exist yet. A layout, once shipped, is never changed; new fields are appended to a new
// version instead.
type Serializable interface {
	// ClassName is the stable name stored on the wire and used for registry lookup.
	ClassName() string
	// SerializationVersion is the current layout version of this build.
	SerializationVersion() uint16
	Encode(ar *Archive) error
	Decode(ar *Archive, version uint16) error
}

// A Factory returns a blank, default-valued instance of one concrete type.
type Factory func() Serializable
