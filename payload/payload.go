package payload

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/perception/serialization"
	"go.viam.com/perception/utils"
)

// State is where the authoritative copy of a payload lives.
type State int

// The payload states.
const (
	InMemory State = iota
	ExternalUnloaded
	ExternalCached
)

func (s State) String() string {
	switch s {
	case InMemory:
		return "in_memory"
	case ExternalUnloaded:
		return "external_unloaded"
	case ExternalCached:
		return "external_cached"
	default:
		return fmt.Sprintf("unknown_state_%d", int(s))
	}
}

// Ref records whether a field group lives in a file and under which name. Path is the
// name as given at conversion time, usually relative to a Store's base directory.
type Ref struct {
	Path             string
	StoredExternally bool
}

// Data is a field group that can be written to and read back from a payload file. The
// file holds only what EncodePayload writes, with no class header.
type Data interface {
	EncodePayload(ar *serialization.Archive) error
	// DecodePayload replaces the contents of the group. It should return a decode error
	// when what it read is structurally inconsistent.
	DecodePayload(ar *serialization.Archive) error
	Clear()
	Empty() bool
}

// Payload tracks the external storage state of one field group. The zero value is an
// in-memory payload.
type Payload struct {
	Ref
	cached bool
}

// State returns the current state of the payload.
func (p *Payload) State() State {
	switch {
	case !p.StoredExternally:
		return InMemory
	case p.cached:
		return ExternalCached
	default:
		return ExternalUnloaded
	}
}

// AbsolutePath returns the path the payload file lives at in store. It is empty for a
// payload that was never offloaded.
func (p *Payload) AbsolutePath(store *Store) string {
	if !p.StoredExternally {
		return ""
	}
	return store.Resolve(p.Path)
}

func ioError(err error, format string, args ...interface{}) error {
	return errors.Wrapf(serialization.ErrIO, "%s: %v", fmt.Sprintf(format, args...), err)
}

// ConvertToExternalStorage writes data to the file called relativeName and releases the
// in-memory copy. The name is resolved against baseDirOverride when it is not empty and
// against store otherwise; the override is used for this call only and is not recorded.
// On failure nothing changes and the error wraps serialization.ErrIO.
func (p *Payload) ConvertToExternalStorage(store *Store, data Data, relativeName, baseDirOverride string) error {
	if p.StoredExternally {
		return errors.Wrapf(serialization.ErrAlreadyExternal, "payload already stored as %q", p.Path)
	}
	if relativeName == "" {
		return errors.New("payload file name cannot be empty")
	}
	path := store.Resolve(relativeName)
	if baseDirOverride != "" {
		path = ResolvePath(baseDirOverride, relativeName)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ioError(err, "creating payload directory %q", dir)
		}
	}

	if err := utils.AtomicWriteFile(path, func(f io.Writer) (err error) {
		bw := bufio.NewWriter(f)
		cw := serialization.CompressingWriter(bw, store.compress())
		defer func() {
			err = multierr.Combine(err, cw.Close())
			if err == nil {
				err = bw.Flush()
			}
		}()
		return data.EncodePayload(serialization.NewWriter(cw, store.archiveOptions()...))
	}); err != nil {
		return ioError(err, "writing payload %q", path)
	}

	store.logger().Debugw("payload offloaded", "path", path, "compressed", store.compress())
	data.Clear()
	p.Path = relativeName
	p.StoredExternally = true
	p.cached = false
	return nil
}

// Load reads the payload file into data. It does nothing for an in-memory payload or
// one that is already cached. On failure data is left empty, the Ref is left untouched
// and the error wraps serialization.ErrIO.
func (p *Payload) Load(store *Store, data Data) error {
	if !p.StoredExternally || p.cached {
		return nil
	}
	path := p.AbsolutePath(store)
	if err := readPayloadFile(path, store, data); err != nil {
		data.Clear()
		return ioError(err, "loading payload %q", path)
	}
	store.logger().Debugw("payload loaded", "path", path)
	p.cached = true
	return nil
}

func readPayloadFile(path string, store *Store, data Data) error {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	r, err := serialization.DecompressingReader(f)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(r.Close)

	if err := data.DecodePayload(serialization.NewReader(r, store.archiveOptions()...)); err != nil {
		return err
	}
	return serialization.ExpectEnd(r)
}

// Unload drops the in-memory copy of an offloaded payload. Unloading a payload that has
// no backing file would lose its data, so it fails with serialization.ErrNotExternal and
// leaves data alone.
func (p *Payload) Unload(data Data) error {
	if !p.StoredExternally {
		return serialization.ErrNotExternal
	}
	data.Clear()
	p.cached = false
	return nil
}

// EncodeRef writes the external storage flag and the payload name.
func (p *Payload) EncodeRef(ar *serialization.Archive) error {
	if err := ar.WriteBool(p.StoredExternally); err != nil {
		return err
	}
	return ar.WriteString(p.Path)
}

// DecodeRef reads what EncodeRef wrote. data must already hold whatever was decoded
// inline for the group: a non-empty group of an external payload counts as cached.
func (p *Payload) DecodeRef(ar *serialization.Archive, data Data) error {
	external, err := ar.ReadBool()
	if err != nil {
		return err
	}
	path, err := ar.ReadString()
	if err != nil {
		return err
	}
	p.Ref = Ref{Path: path, StoredExternally: external}
	p.cached = external && !data.Empty()
	return nil
}

// Reset returns the payload to the in-memory state without touching any file.
func (p *Payload) Reset() {
	*p = Payload{}
}
