package serialization

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"reflect"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/perception/utils"
)

const (
	nullObjectTag = uint32(0)
	backRefTag    = uint32(math.MaxUint32)

	// maxClassNameLen bounds the class name read from an object header.
	maxClassNameLen = 1024

	// DefaultMaxBufferBytes is the largest single buffer an Archive will allocate while
	// reading unless configured otherwise.
	DefaultMaxBufferBytes = uint64(1 << 30)

	// reads above this size grow their buffer as bytes actually arrive.
	directReadLimit = 1 << 16
)

// An Option configures an Archive.
type Option func(*Archive)

// WithRegistry makes the Archive resolve class names against reg instead of the
// DefaultRegistry.
func WithRegistry(reg *Registry) Option {
	return func(ar *Archive) {
		ar.registry = reg
	}
}

// WithMaxBufferBytes bounds the size of any single length-prefixed buffer.
func WithMaxBufferBytes(n uint64) Option {
	return func(ar *Archive) {
		if n > 0 {
			ar.maxBufferBytes = n
		}
	}
}

// Archive is a read/write session over one byte stream. It is not safe for concurrent
// use. Shared objects written more than once through the same Archive are emitted as
// back-references after the first time.
type Archive struct {
	r io.Reader
	w io.Writer

	registry       *Registry
	maxBufferBytes uint64
	scratch        [8]byte

	nextOrdinal uint32
	written     map[Serializable]uint32
	encoding    map[Serializable]struct{}
	decoded     []Serializable
}

// New returns an Archive that can both read from and write to rw.
func New(rw io.ReadWriter, opts ...Option) *Archive {
	return newArchive(rw, rw, opts)
}

// NewReader returns an Archive that reads from r.
func NewReader(r io.Reader, opts ...Option) *Archive {
	return newArchive(r, nil, opts)
}

// NewWriter returns an Archive that writes to w.
func NewWriter(w io.Writer, opts ...Option) *Archive {
	return newArchive(nil, w, opts)
}

func newArchive(r io.Reader, w io.Writer, opts []Option) *Archive {
	ar := &Archive{
		r:              r,
		w:              w,
		registry:       DefaultRegistry,
		maxBufferBytes: DefaultMaxBufferBytes,
		written:        map[Serializable]uint32{},
		encoding:       map[Serializable]struct{}{},
	}
	for _, opt := range opts {
		opt(ar)
	}
	return ar
}

// Registry returns the registry this archive resolves classes with.
func (ar *Archive) Registry() *Registry {
	return ar.registry
}

func (ar *Archive) write(p []byte) error {
	if ar.w == nil {
		return errors.New("archive is not open for writing")
	}
	_, err := ar.w.Write(p)
	return err
}

func (ar *Archive) readFull(p []byte) error {
	if ar.r == nil {
		return errors.New("archive is not open for reading")
	}
	if _, err := io.ReadFull(ar.r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return NewDecodeError("stream truncated reading %d bytes", len(p))
		}
		return err
	}
	return nil
}

type lengther interface {
	Len() int
}

// remaining reports how many bytes are left in the stream when the stream can tell.
func (ar *Archive) remaining() (uint64, bool) {
	switch s := ar.r.(type) {
	case lengther:
		return uint64(s.Len()), true
	case io.Seeker:
		cur, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		end, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, false
		}
		if _, err := s.Seek(cur, io.SeekStart); err != nil {
			return 0, false
		}
		if end < cur {
			return 0, true
		}
		return uint64(end - cur), true
	default:
		return 0, false
	}
}

// checkCount validates a declared element count before anything is allocated for it.
func (ar *Archive) checkCount(count uint64, elemSize uint64) (uint64, error) {
	total := count * elemSize
	if elemSize != 0 && total/elemSize != count {
		return 0, NewDecodeError("buffer of %d elements of %d bytes overflows", count, elemSize)
	}
	if total > ar.maxBufferBytes {
		return 0, NewDecodeError("buffer of %d bytes exceeds limit of %d bytes", total, ar.maxBufferBytes)
	}
	if left, ok := ar.remaining(); ok && total > left {
		return 0, NewDecodeError("buffer of %d bytes exceeds the %d bytes left in the stream", total, left)
	}
	return total, nil
}

// readRaw reads exactly n bytes. Large reads grow as data arrives so that a corrupt
// count on a stream of unknown length cannot force a huge allocation.
func (ar *Archive) readRaw(n uint64) ([]byte, error) {
	if n <= directReadLimit {
		buf := make([]byte, n)
		if err := ar.readFull(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	if ar.r == nil {
		return nil, errors.New("archive is not open for reading")
	}
	var buf bytes.Buffer
	buf.Grow(directReadLimit)
	got, err := io.CopyN(&buf, ar.r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, NewDecodeError("stream truncated: wanted %d bytes, got %d", n, got)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteBool writes a boolean as a single 0 or 1 byte.
func (ar *Archive) WriteBool(v bool) error {
	if v {
		return ar.WriteUint8(1)
	}
	return ar.WriteUint8(0)
}

// ReadBool reads a boolean; any byte other than 0 or 1 is a decode error.
func (ar *Archive) ReadBool() (bool, error) {
	b, err := ar.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, NewDecodeError("invalid boolean byte 0x%02x", b)
	}
}

func (ar *Archive) WriteUint8(v uint8) error {
	ar.scratch[0] = v
	return ar.write(ar.scratch[:1])
}

func (ar *Archive) ReadUint8() (uint8, error) {
	if err := ar.readFull(ar.scratch[:1]); err != nil {
		return 0, err
	}
	return ar.scratch[0], nil
}

func (ar *Archive) WriteUint16(v uint16) error {
	binary.LittleEndian.PutUint16(ar.scratch[:2], v)
	return ar.write(ar.scratch[:2])
}

func (ar *Archive) ReadUint16() (uint16, error) {
	if err := ar.readFull(ar.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(ar.scratch[:2]), nil
}

func (ar *Archive) WriteUint32(v uint32) error {
	binary.LittleEndian.PutUint32(ar.scratch[:4], v)
	return ar.write(ar.scratch[:4])
}

func (ar *Archive) ReadUint32() (uint32, error) {
	if err := ar.readFull(ar.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(ar.scratch[:4]), nil
}

func (ar *Archive) WriteUint64(v uint64) error {
	binary.LittleEndian.PutUint64(ar.scratch[:8], v)
	return ar.write(ar.scratch[:8])
}

func (ar *Archive) ReadUint64() (uint64, error) {
	if err := ar.readFull(ar.scratch[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(ar.scratch[:8]), nil
}

func (ar *Archive) WriteInt16(v int16) error {
	return ar.WriteUint16(uint16(v))
}

func (ar *Archive) ReadInt16() (int16, error) {
	v, err := ar.ReadUint16()
	return int16(v), err
}

func (ar *Archive) WriteInt32(v int32) error {
	return ar.WriteUint32(uint32(v))
}

func (ar *Archive) ReadInt32() (int32, error) {
	v, err := ar.ReadUint32()
	return int32(v), err
}

func (ar *Archive) WriteInt64(v int64) error {
	return ar.WriteUint64(uint64(v))
}

func (ar *Archive) ReadInt64() (int64, error) {
	v, err := ar.ReadUint64()
	return int64(v), err
}

func (ar *Archive) WriteFloat32(v float32) error {
	return ar.WriteUint32(math.Float32bits(v))
}

func (ar *Archive) ReadFloat32() (float32, error) {
	v, err := ar.ReadUint32()
	return math.Float32frombits(v), err
}

func (ar *Archive) WriteFloat64(v float64) error {
	return ar.WriteUint64(math.Float64bits(v))
}

func (ar *Archive) ReadFloat64() (float64, error) {
	v, err := ar.ReadUint64()
	return math.Float64frombits(v), err
}

// zeroTimeNanos stands for the zero time.Time, which is too far back for UnixNano.
const zeroTimeNanos = math.MinInt64

// WriteTime writes t as signed nanoseconds since the unix epoch.
func (ar *Archive) WriteTime(t time.Time) error {
	if t.IsZero() {
		return ar.WriteInt64(zeroTimeNanos)
	}
	return ar.WriteInt64(t.UnixNano())
}

// ReadTime reads a timestamp written by WriteTime. Times come back in UTC.
func (ar *Archive) ReadTime() (time.Time, error) {
	ns, err := ar.ReadInt64()
	if err != nil || ns == zeroTimeNanos {
		return time.Time{}, err
	}
	return time.Unix(0, ns).UTC(), nil
}

// WriteBytes writes a length-prefixed byte buffer.
func (ar *Archive) WriteBytes(p []byte) error {
	if uint64(len(p)) > math.MaxUint32 {
		return errors.Errorf("buffer of %d bytes is too large to encode", len(p))
	}
	if err := ar.WriteUint32(uint32(len(p))); err != nil {
		return err
	}
	return ar.write(p)
}

// ReadBytes reads a length-prefixed byte buffer.
func (ar *Archive) ReadBytes() ([]byte, error) {
	n, err := ar.ReadUint32()
	if err != nil {
		return nil, err
	}
	return ar.ReadRawBytes(int(n))
}

// ReadRawBytes reads n bytes whose count was stored elsewhere. Empty buffers read back
// as nil, as do all empty arrays.
func (ar *Archive) ReadRawBytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	total, err := ar.checkCount(uint64(n), 1)
	if err != nil {
		return nil, err
	}
	return ar.readRaw(total)
}

// WriteString writes a length-prefixed string.
func (ar *Archive) WriteString(s string) error {
	return ar.WriteBytes([]byte(s))
}

// ReadString reads a length-prefixed string.
func (ar *Archive) ReadString() (string, error) {
	p, err := ar.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// WriteFloat32s writes a length-prefixed float32 array.
func (ar *Archive) WriteFloat32s(vs []float32) error {
	if uint64(len(vs)) > math.MaxUint32 {
		return errors.Errorf("array of %d elements is too large to encode", len(vs))
	}
	if err := ar.WriteUint32(uint32(len(vs))); err != nil {
		return err
	}
	return ar.WriteRawFloat32s(vs)
}

// ReadFloat32s reads a length-prefixed float32 array.
func (ar *Archive) ReadFloat32s() ([]float32, error) {
	n, err := ar.ReadUint32()
	if err != nil {
		return nil, err
	}
	return ar.ReadRawFloat32s(int(n))
}

// WriteRawFloat32s writes the elements of vs without a count.
func (ar *Archive) WriteRawFloat32s(vs []float32) error {
	if len(vs) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return ar.write(buf)
}

// ReadRawFloat32s reads n float32 elements whose count was stored elsewhere.
func (ar *Archive) ReadRawFloat32s(n int) ([]float32, error) {
	if n == 0 {
		return nil, nil
	}
	total, err := ar.checkCount(uint64(n), 4)
	if err != nil {
		return nil, err
	}
	raw, err := ar.readRaw(total)
	if err != nil {
		return nil, err
	}
	vs := make([]float32, n)
	for i := range vs {
		vs[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vs, nil
}

// WriteFloat64s writes a length-prefixed float64 array.
func (ar *Archive) WriteFloat64s(vs []float64) error {
	if uint64(len(vs)) > math.MaxUint32 {
		return errors.Errorf("array of %d elements is too large to encode", len(vs))
	}
	if err := ar.WriteUint32(uint32(len(vs))); err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return ar.write(buf)
}

// ReadFloat64s reads a length-prefixed float64 array.
func (ar *Archive) ReadFloat64s() ([]float64, error) {
	n, err := ar.ReadUint32()
	if err != nil || n == 0 {
		return nil, err
	}
	total, err := ar.checkCount(uint64(n), 8)
	if err != nil {
		return nil, err
	}
	raw, err := ar.readRaw(total)
	if err != nil {
		return nil, err
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return vs, nil
}

// identity returns the key used for back-reference bookkeeping. Only pointers have a
// stable identity; everything else is always written in full.
func identity(obj Serializable) (Serializable, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer {
		return nil, false
	}
	return obj, true
}

func isNil(obj Serializable) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// WriteObject writes obj with its class header, or a null tag when obj is nil. An object
// already written through this archive is emitted as a back-reference.
func (ar *Archive) WriteObject(obj Serializable) error {
	if isNil(obj) {
		return ar.WriteUint32(nullObjectTag)
	}
	key, tracked := identity(obj)
	if tracked {
		if ordinal, ok := ar.written[key]; ok {
			if err := ar.WriteUint32(backRefTag); err != nil {
				return err
			}
			return ar.WriteUint32(ordinal)
		}
		if _, busy := ar.encoding[key]; busy {
			return errors.Errorf("object of class %q refers to itself while being written; cycles are not supported",
				obj.ClassName())
		}
		ar.encoding[key] = struct{}{}
		defer delete(ar.encoding, key)
	}

	name := obj.ClassName()
	if name == "" || len(name) > maxClassNameLen {
		return errors.Errorf("invalid class name %q for %T", name, obj)
	}
	if err := ar.WriteUint32(uint32(len(name))); err != nil {
		return err
	}
	if err := ar.write([]byte(name)); err != nil {
		return err
	}
	if err := ar.WriteUint16(obj.SerializationVersion()); err != nil {
		return err
	}
	if err := obj.Encode(ar); err != nil {
		return errors.Wrapf(err, "encoding %q", name)
	}

	if tracked {
		ar.written[key] = ar.nextOrdinal
	}
	ar.nextOrdinal++
	return nil
}

type objectHeader struct {
	null     bool
	backRef  Serializable
	class    ClassDescriptor
	declared uint16
}

func (ar *Archive) readHeader() (objectHeader, error) {
	tag, err := ar.ReadUint32()
	if err != nil {
		return objectHeader{}, err
	}
	switch {
	case tag == nullObjectTag:
		return objectHeader{null: true}, nil
	case tag == backRefTag:
		ordinal, err := ar.ReadUint32()
		if err != nil {
			return objectHeader{}, err
		}
		if uint64(ordinal) >= uint64(len(ar.decoded)) {
			return objectHeader{}, NewDecodeError("back-reference to object %d but only %d objects are decoded",
				ordinal, len(ar.decoded))
		}
		return objectHeader{backRef: ar.decoded[ordinal]}, nil
	case tag > maxClassNameLen:
		return objectHeader{}, NewDecodeError("class name length %d exceeds %d", tag, maxClassNameLen)
	}

	raw, err := ar.ReadRawBytes(int(tag))
	if err != nil {
		return objectHeader{}, err
	}
	name := string(raw)
	class, ok := ar.registry.Lookup(name)
	if !ok {
		return objectHeader{}, errors.Wrapf(ErrUnknownClass, "%q", name)
	}
	declared, err := ar.ReadUint16()
	if err != nil {
		return objectHeader{}, err
	}
	if declared > class.Version {
		return objectHeader{}, NewUnsupportedVersionError(name, declared, class.Version)
	}
	return objectHeader{class: class, declared: declared}, nil
}

func (ar *Archive) decodeInto(obj Serializable, hdr objectHeader) error {
	if err := obj.Decode(ar, hdr.declared); err != nil {
		return errors.Wrapf(err, "decoding %q version %d", hdr.class.Name, hdr.declared)
	}
	ar.decoded = append(ar.decoded, obj)
	return nil
}

// ReadObject reads the next object, which is nil if a null tag was written. On any error
// no object is returned.
func (ar *Archive) ReadObject() (Serializable, error) {
	hdr, err := ar.readHeader()
	if err != nil {
		return nil, err
	}
	switch {
	case hdr.null:
		return nil, nil
	case hdr.backRef != nil:
		return hdr.backRef, nil
	}
	obj := hdr.class.Factory()
	if err := ar.decodeInto(obj, hdr); err != nil {
		return nil, err
	}
	return obj, nil
}

// ReadObjectInto reads the next object into dst, which must be of the same class. It is
// used for owned sub-objects stored by value.
func (ar *Archive) ReadObjectInto(dst Serializable) error {
	hdr, err := ar.readHeader()
	if err != nil {
		return err
	}
	switch {
	case hdr.null:
		return NewDecodeError("expected an object of class %q but found none", dst.ClassName())
	case hdr.backRef != nil:
		src := reflect.ValueOf(hdr.backRef)
		dstV := reflect.ValueOf(dst)
		if dstV.Kind() != reflect.Pointer || src.Type() != dstV.Type() {
			return NewDecodeError("%v", utils.NewUnexpectedTypeError(dst, hdr.backRef))
		}
		dstV.Elem().Set(src.Elem())
		return nil
	}
	if hdr.class.Name != dst.ClassName() {
		return NewDecodeError("expected an object of class %q but found %q", dst.ClassName(), hdr.class.Name)
	}
	return ar.decodeInto(dst, hdr)
}

// Relocate points back-references that resolve to from at to instead. A codec that
// decodes sub-objects into a scratch value and then copies it into place calls this for
// each sub-object it moved.
func (ar *Archive) Relocate(from, to Serializable) {
	for i, obj := range ar.decoded {
		if obj == from {
			ar.decoded[i] = to
		}
	}
}

// ReadObjectAs reads the next object and asserts it is a T. A null object yields the
// zero T.
func ReadObjectAs[T Serializable](ar *Archive) (T, error) {
	var zero T
	obj, err := ar.ReadObject()
	if err != nil || obj == nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, NewDecodeError("%v", utils.NewUnexpectedTypeError(zero, obj))
	}
	return typed, nil
}
