package payload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/perception/logging"
	"go.viam.com/perception/serialization"
)

type floats struct {
	vals []float32
}

func (f *floats) EncodePayload(ar *serialization.Archive) error {
	return ar.WriteFloat32s(f.vals)
}

func (f *floats) DecodePayload(ar *serialization.Archive) error {
	vals, err := ar.ReadFloat32s()
	if err != nil {
		return err
	}
	f.vals = vals
	return nil
}

func (f *floats) Clear() { f.vals = nil }

func (f *floats) Empty() bool { return len(f.vals) == 0 }

func ramp(n int) []float32 {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i)*0.5 - 7
	}
	return vals
}

func TestResolvePath(t *testing.T) {
	for _, tc := range []struct {
		base, name, expected string
	}{
		{"/data", "scan1.bin", "/data/scan1.bin"},
		{"/data", "/tmp/x.bin", "/tmp/x.bin"},
		{"/data/", "scan1.bin", "/data/scan1.bin"},
		{`D:\data\`, "scan1.bin", `D:\data\scan1.bin`},
		{"/data", `C:\scans\x.bin`, `C:\scans\x.bin`},
		{"/data", "C:x.bin", "/data/C:x.bin"},
		{"/data", "sub/scan1.bin", "/data/sub/scan1.bin"},
		{"", "scan1.bin", "scan1.bin"},
	} {
		t.Run(tc.base+"+"+tc.name, func(t *testing.T) {
			test.That(t, ResolvePath(tc.base, tc.name), test.ShouldEqual, tc.expected)
		})
	}
	test.That(t, IsAbsolute(""), test.ShouldBeFalse)
	test.That(t, IsAbsolute("/"), test.ShouldBeTrue)
	test.That(t, IsAbsolute("a:"), test.ShouldBeFalse)
}

func TestExternalRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		for _, n := range []int{0, 1, 100000} {
			store := &Store{BaseDir: t.TempDir(), Compress: compress, Logger: logging.NewTestLogger(t)}
			original := ramp(n)
			data := &floats{vals: append([]float32(nil), original...)}

			var p Payload
			test.That(t, p.State(), test.ShouldEqual, InMemory)
			test.That(t, p.ConvertToExternalStorage(store, data, "points.bin", ""), test.ShouldBeNil)
			test.That(t, p.State(), test.ShouldEqual, ExternalUnloaded)
			test.That(t, p.Path, test.ShouldEqual, "points.bin")
			test.That(t, data.Empty(), test.ShouldBeTrue)
			test.That(t, p.AbsolutePath(store), test.ShouldEqual, store.BaseDir+"/points.bin")

			test.That(t, p.Load(store, data), test.ShouldBeNil)
			test.That(t, p.State(), test.ShouldEqual, ExternalCached)
			test.That(t, len(data.vals), test.ShouldEqual, n)
			for i := range original {
				if data.vals[i] != original[i] {
					t.Fatalf("element %d: got %v, want %v", i, data.vals[i], original[i])
				}
			}

			// loading again is a no-op
			test.That(t, p.Load(store, data), test.ShouldBeNil)
			test.That(t, len(data.vals), test.ShouldEqual, n)

			test.That(t, p.Unload(data), test.ShouldBeNil)
			test.That(t, p.State(), test.ShouldEqual, ExternalUnloaded)
			test.That(t, data.Empty(), test.ShouldBeTrue)
		}
	}
}

func TestConvertTwice(t *testing.T) {
	store := NewStore(t.TempDir(), logging.NewTestLogger(t))
	data := &floats{vals: ramp(10)}
	var p Payload
	test.That(t, p.ConvertToExternalStorage(store, data, "a.bin", ""), test.ShouldBeNil)
	test.That(t, p.Load(store, data), test.ShouldBeNil)

	err := p.ConvertToExternalStorage(store, data, "b.bin", "")
	test.That(t, errors.Is(err, serialization.ErrAlreadyExternal), test.ShouldBeTrue)
	test.That(t, p.Path, test.ShouldEqual, "a.bin")
	test.That(t, len(data.vals), test.ShouldEqual, 10)
	_, err = os.Stat(filepath.Join(store.BaseDir, "b.bin"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestConvertFailureLeavesState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	test.That(t, os.WriteFile(blocker, []byte("x"), 0o600), test.ShouldBeNil)

	// the parent of the target is a regular file so nothing can be created there
	store := NewStore(blocker, logging.NewTestLogger(t))
	data := &floats{vals: ramp(5)}
	var p Payload
	err := p.ConvertToExternalStorage(store, data, "points.bin", "")
	test.That(t, errors.Is(err, serialization.ErrIO), test.ShouldBeTrue)
	test.That(t, p.State(), test.ShouldEqual, InMemory)
	test.That(t, p.Path, test.ShouldEqual, "")
	test.That(t, data.vals, test.ShouldResemble, ramp(5))
}

func TestBaseDirOverride(t *testing.T) {
	storeDir := t.TempDir()
	overrideDir := t.TempDir()
	store := NewStore(storeDir, logging.NewTestLogger(t))
	data := &floats{vals: ramp(3)}

	var p Payload
	test.That(t, p.ConvertToExternalStorage(store, data, "scan.bin", overrideDir), test.ShouldBeNil)
	test.That(t, store.BaseDir, test.ShouldEqual, storeDir)
	_, err := os.Stat(filepath.Join(overrideDir, "scan.bin"))
	test.That(t, err, test.ShouldBeNil)

	// the override is not remembered: the store's base directory is used from now on
	test.That(t, p.AbsolutePath(store), test.ShouldEqual, storeDir+"/scan.bin")
	err = p.Load(store, data)
	test.That(t, errors.Is(err, serialization.ErrIO), test.ShouldBeTrue)
	test.That(t, p.Ref, test.ShouldResemble, Ref{Path: "scan.bin", StoredExternally: true})

	test.That(t, p.Load(NewStore(overrideDir, nil), data), test.ShouldBeNil)
	test.That(t, data.vals, test.ShouldResemble, ramp(3))
}

func TestLoadFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		store := NewStore(t.TempDir(), logging.NewTestLogger(t))
		p := Payload{Ref: Ref{Path: "gone.bin", StoredExternally: true}}
		data := &floats{}
		err := p.Load(store, data)
		test.That(t, errors.Is(err, serialization.ErrIO), test.ShouldBeTrue)
		test.That(t, p.State(), test.ShouldEqual, ExternalUnloaded)
		test.That(t, p.Ref, test.ShouldResemble, Ref{Path: "gone.bin", StoredExternally: true})
	})

	for _, compress := range []bool{false, true} {
		t.Run("truncated file", func(t *testing.T) {
			store := &Store{BaseDir: t.TempDir(), Compress: compress, Logger: logging.NewTestLogger(t)}
			data := &floats{vals: ramp(1000)}
			var p Payload
			test.That(t, p.ConvertToExternalStorage(store, data, "cut.bin", ""), test.ShouldBeNil)

			path := p.AbsolutePath(store)
			raw, err := os.ReadFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, os.WriteFile(path, raw[:len(raw)/2], 0o600), test.ShouldBeNil)

			err = p.Load(store, data)
			test.That(t, errors.Is(err, serialization.ErrIO), test.ShouldBeTrue)
			test.That(t, data.Empty(), test.ShouldBeTrue)
			test.That(t, p.State(), test.ShouldEqual, ExternalUnloaded)
		})
	}

	for _, tc := range []struct {
		name   string
		damage func(raw []byte) []byte
	}{
		{"missing gzip trailer", func(raw []byte) []byte { return raw[:len(raw)-8] }},
		{"bad gzip checksum", func(raw []byte) []byte {
			raw[len(raw)-8] ^= 0xff
			return raw
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := &Store{BaseDir: t.TempDir(), Compress: true, Logger: logging.NewTestLogger(t)}
			data := &floats{vals: ramp(1000)}
			var p Payload
			test.That(t, p.ConvertToExternalStorage(store, data, "damaged.bin", ""), test.ShouldBeNil)

			path := p.AbsolutePath(store)
			raw, err := os.ReadFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, os.WriteFile(path, tc.damage(raw), 0o600), test.ShouldBeNil)

			err = p.Load(store, data)
			test.That(t, errors.Is(err, serialization.ErrIO), test.ShouldBeTrue)
			test.That(t, data.Empty(), test.ShouldBeTrue)
			test.That(t, p.State(), test.ShouldEqual, ExternalUnloaded)
		})
	}

	t.Run("trailing bytes", func(t *testing.T) {
		store := &Store{BaseDir: t.TempDir(), Logger: logging.NewTestLogger(t)}
		data := &floats{vals: ramp(4)}
		var p Payload
		test.That(t, p.ConvertToExternalStorage(store, data, "long.bin", ""), test.ShouldBeNil)

		f, err := os.OpenFile(p.AbsolutePath(store), os.O_APPEND|os.O_WRONLY, 0o600)
		test.That(t, err, test.ShouldBeNil)
		_, err = f.Write([]byte{1, 2, 3})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f.Close(), test.ShouldBeNil)

		err = p.Load(store, data)
		test.That(t, errors.Is(err, serialization.ErrIO), test.ShouldBeTrue)
	})
}

func TestUnloadInMemory(t *testing.T) {
	data := &floats{vals: ramp(3)}
	var p Payload
	err := p.Unload(data)
	test.That(t, errors.Is(err, serialization.ErrNotExternal), test.ShouldBeTrue)
	test.That(t, data.vals, test.ShouldResemble, ramp(3))

	// loading an in-memory payload does nothing
	test.That(t, p.Load(nil, data), test.ShouldBeNil)
	test.That(t, data.vals, test.ShouldResemble, ramp(3))
}

func TestRefCodec(t *testing.T) {
	ms := serialization.NewMemoryStream(nil)
	ar := serialization.New(ms)
	p := Payload{Ref: Ref{Path: "x.bin", StoredExternally: true}}
	test.That(t, p.EncodeRef(ar), test.ShouldBeNil)

	_, err := ms.Seek(0, 0)
	test.That(t, err, test.ShouldBeNil)
	var got Payload
	test.That(t, got.DecodeRef(ar, &floats{}), test.ShouldBeNil)
	test.That(t, got.Ref, test.ShouldResemble, p.Ref)
	test.That(t, got.State(), test.ShouldEqual, ExternalUnloaded)

	_, err = ms.Seek(0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.DecodeRef(ar, &floats{vals: ramp(1)}), test.ShouldBeNil)
	test.That(t, got.State(), test.ShouldEqual, ExternalCached)

	got.Reset()
	test.That(t, got.State(), test.ShouldEqual, InMemory)
	test.That(t, ExternalCached.String(), test.ShouldEqual, "external_cached")
}
