package serialization

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestMemoryStream(t *testing.T) {
	ms := NewMemoryStream(nil)
	n, err := ms.Write([]byte("hello world"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 11)
	test.That(t, ms.Len(), test.ShouldEqual, 0)

	pos, err := ms.Seek(6, io.SeekStart)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 6)
	test.That(t, ms.Len(), test.ShouldEqual, 5)

	_, err = ms.Write([]byte("gophers"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(ms.Bytes()), test.ShouldEqual, "hello gophers")

	_, err = ms.Seek(-7, io.SeekEnd)
	test.That(t, err, test.ShouldBeNil)
	p := make([]byte, 3)
	n, err = ms.Read(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(p[:n]), test.ShouldEqual, "gop")

	_, err = ms.Seek(-100, io.SeekCurrent)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ms.Seek(100, io.SeekStart)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ms.Seek(0, io.SeekEnd)
	test.That(t, err, test.ShouldBeNil)
	_, err = ms.Read(p)
	test.That(t, err, test.ShouldEqual, io.EOF)
}

func TestObjectFiles(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()

	for _, compress := range []bool{false, true} {
		path := filepath.Join(dir, "pair.bin")
		in := &pair{left: &foo{value: 3}, right: &foo{value: 4}, label: "lr"}
		test.That(t, SaveObjectToFile(path, in, compress, WithRegistry(reg)), test.ShouldBeNil)

		raw, err := os.ReadFile(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, bytes.HasPrefix(raw, gzipMagic[:]), test.ShouldEqual, compress)

		obj, err := LoadObjectFromFile(path, WithRegistry(reg))
		test.That(t, err, test.ShouldBeNil)
		out, ok := obj.(*pair)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, out.label, test.ShouldEqual, "lr")
		test.That(t, out.left.value, test.ShouldEqual, 3)
		test.That(t, out.right.value, test.ShouldEqual, 4)
	}

	_, err := LoadObjectFromFile(filepath.Join(dir, "missing.bin"))
	test.That(t, err, test.ShouldNotBeNil)

	// the whole file has to be the object
	plain := filepath.Join(dir, "plain.bin")
	test.That(t, SaveObjectToFile(plain, &foo{value: 9}, false, WithRegistry(reg)), test.ShouldBeNil)
	raw, err := os.ReadFile(plain)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(plain, append(raw, 0), 0o600), test.ShouldBeNil)
	_, err = LoadObjectFromFile(plain, WithRegistry(reg))
	test.That(t, errors.Is(err, ErrDecode), test.ShouldBeTrue)

	empty := filepath.Join(dir, "empty.bin")
	test.That(t, os.WriteFile(empty, nil, 0o600), test.ShouldBeNil)
	_, err = LoadObjectFromFile(empty, WithRegistry(reg))
	test.That(t, errors.Is(err, ErrDecode), test.ShouldBeTrue)
}

func TestDamagedCompressedFiles(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pair.bin")
	in := &pair{left: &foo{value: 3}, right: &foo{value: 4}, label: "lr"}
	test.That(t, SaveObjectToFile(path, in, true, WithRegistry(reg)), test.ShouldBeNil)
	raw, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		damage func(raw []byte) []byte
	}{
		{"missing trailer", func(raw []byte) []byte { return raw[:len(raw)-8] }},
		{"bad checksum", func(raw []byte) []byte {
			raw[len(raw)-8] ^= 0xff
			return raw
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			damaged := tc.damage(append([]byte(nil), raw...))
			test.That(t, os.WriteFile(path, damaged, 0o600), test.ShouldBeNil)
			obj, err := LoadObjectFromFile(path, WithRegistry(reg))
			test.That(t, obj, test.ShouldBeNil)
			test.That(t, errors.Is(err, ErrDecode), test.ShouldBeTrue)
		})
	}
}

func TestTruncatedCompressedBuffer(t *testing.T) {
	vals := make([]float32, 20000)
	for i := range vals {
		vals[i] = float32(i) * 0.125
	}
	var buf bytes.Buffer
	cw := CompressingWriter(&buf, true)
	test.That(t, NewWriter(cw).WriteFloat32s(vals), test.ShouldBeNil)
	test.That(t, cw.Close(), test.ShouldBeNil)

	r, err := DecompressingReader(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	test.That(t, err, test.ShouldBeNil)
	got, err := NewReader(r).ReadFloat32s()
	test.That(t, got, test.ShouldBeNil)
	test.That(t, errors.Is(err, ErrDecode), test.ShouldBeTrue)
}
